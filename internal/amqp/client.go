// Package amqp publishes and consumes job change events on RabbitMQ. The
// API server publishes; the mirror worker consumes.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"board/internal/jobs"
	applog "board/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var (
	ErrCircuitOpen   = errors.New("circuit breaker is open")
	ErrChannelClosed = errors.New("message channel closed")
)

var _ jobs.EventPublisher = (*Client)(nil)

// Handler processes consumed messages. Returning an error requeues the
// delivery.
type Handler interface {
	HandleSync(ctx context.Context, msg *JobSyncMessage) error
	HandleDelete(ctx context.Context, msg *JobDeleteMessage) error
}

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	failMu       sync.Mutex
	lastFailure  time.Time
}

// NewClient connects and declares a durable direct exchange with one queue
// bound under its own name.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := &Client{url: url, exchangeName: exchangeName, queueName: queueName}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := setup(ch, c.exchangeName, c.queueName); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	c.conn, c.channel = conn, ch
	return nil
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// liveChannel returns an open channel, reconnecting when the previous one
// was closed by the broker.
func (c *Client) liveChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil && !c.channel.IsClosed() && c.conn != nil && !c.conn.IsClosed() {
		return c.channel, nil
	}
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c.channel, nil
}

func (c *Client) PublishJobSync(ctx context.Context, id string) error {
	body, err := NewJobSyncMessage(id).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.publish(ctx, MessageTypeJobSync, id, body)
}

func (c *Client) PublishJobDelete(ctx context.Context, id, jobNumber string) error {
	body, err := NewJobDeleteMessage(id, jobNumber).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.publish(ctx, MessageTypeJobDelete, id, body)
}

func (c *Client) publish(ctx context.Context, msgType, id string, body []byte) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: %w", msgType, ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch, err := c.liveChannel()
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish %s: %w", msgType, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(ctx, c.exchangeName, c.queueName, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Type:         msgType,
		MessageId:    id,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish %s: %w", msgType, err)
	}
	c.recordSuccess()

	slog.DebugContext(ctx, "Published job message",
		applog.FieldComponent, applog.ComponentAMQP,
		"type", msgType,
		applog.FieldJobID, id,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// Consume delivers messages to h until ctx is done or the channel closes.
// Undecodable messages are dropped; handler errors requeue.
func (c *Client) Consume(ctx context.Context, h Handler) error {
	ch, err := c.liveChannel()
	if err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming job messages",
		applog.FieldComponent, applog.ComponentAMQP, "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption",
				applog.FieldComponent, applog.ComponentAMQP, "reason", ctx.Err())
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return ErrChannelClosed
			}
			settle(d, dispatch(ctx, d.Type, d.Body, h))
		}
	}
}

// ConsumeWithReconnect keeps consuming across broker restarts, backing off
// between attempts. Non-connection errors are returned.
func (c *Client) ConsumeWithReconnect(ctx context.Context, h Handler) error {
	for attempt := 0; ; attempt++ {
		err := c.Consume(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, ErrChannelClosed) && !isConnectionError(err) {
			return err
		}
		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP consumer lost connection, retrying",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldError, err, "retry_in", wait.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if err := c.connect(); err != nil {
			slog.WarnContext(ctx, "AMQP reconnect failed",
				applog.FieldComponent, applog.ComponentAMQP, applog.FieldError, err)
		} else {
			attempt = -1
		}
	}
}

type outcome int

const (
	ack outcome = iota
	requeue
	drop
)

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(d acknowledger, o outcome) {
	switch o {
	case ack:
		_ = d.Ack(false)
	case requeue:
		_ = d.Nack(false, true)
	default:
		_ = d.Nack(false, false)
	}
}

// dispatch decodes one delivery body by message type and runs h.
func dispatch(ctx context.Context, msgType string, body []byte, h Handler) outcome {
	var err error
	switch msgType {
	case MessageTypeJobSync, "":
		msg, derr := JobSyncMessageFromJSON(body)
		if derr != nil {
			slog.ErrorContext(ctx, "Failed to decode message",
				applog.FieldComponent, applog.ComponentAMQP, applog.FieldError, derr)
			return drop
		}
		err = h.HandleSync(ctx, msg)
	case MessageTypeJobDelete:
		msg, derr := JobDeleteMessageFromJSON(body)
		if derr != nil {
			slog.ErrorContext(ctx, "Failed to decode message",
				applog.FieldComponent, applog.ComponentAMQP, applog.FieldError, derr)
			return drop
		}
		err = h.HandleDelete(ctx, msg)
	default:
		slog.WarnContext(ctx, "Dropping message of unknown type",
			applog.FieldComponent, applog.ComponentAMQP, "type", msgType)
		return drop
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to handle message",
			applog.FieldComponent, applog.ComponentAMQP, "type", msgType, applog.FieldError, err)
		return requeue
	}
	return ack
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.failMu.Lock()
	last := c.lastFailure
	c.failMu.Unlock()
	if time.Since(last) >= openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	c.failMu.Lock()
	c.lastFailure = time.Now()
	c.failMu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "dial"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}
