package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"board/internal/amqp"
	"board/internal/core"
	"board/internal/jobs"
	applog "board/internal/log"
)

var _ amqp.Handler = (*MirrorWorker)(nil)

// JobSource is the read side of the job store the worker needs.
type JobSource interface {
	jobs.JobLister
	GetJob(ctx context.Context, id string) (core.Job, error)
}

// MirrorWorker keeps the board mirror in step with the job store. Events
// update single rows; Reconcile rewrites the whole mirror.
type MirrorWorker struct {
	source JobSource
	mirror jobs.BoardMirror
}

func NewMirrorWorker(source JobSource, mirror jobs.BoardMirror) *MirrorWorker {
	return &MirrorWorker{source: source, mirror: mirror}
}

// HandleSync refreshes the mirror row of one job. A job that was deleted
// before the message arrived is acknowledged; its delete event follows.
func (w *MirrorWorker) HandleSync(ctx context.Context, msg *amqp.JobSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldJobID, msg.ID,
		"timestamp", msg.Timestamp)

	j, err := w.source.GetJob(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Job no longer exists, skipping sync",
			applog.FieldComponent, applog.ComponentWorker, applog.FieldJobID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get job from storage: %w", err)
	}

	if err := w.mirror.UpsertJob(ctx, j); err != nil {
		return fmt.Errorf("upsert mirror row: %w", err)
	}

	slog.InfoContext(ctx, "Successfully synced job",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldJobID, j.ID,
		applog.FieldJobNumber, j.JobNumber)
	return nil
}

// HandleDelete removes the mirror row of a deleted job.
func (w *MirrorWorker) HandleDelete(ctx context.Context, msg *amqp.JobDeleteMessage) error {
	slog.InfoContext(ctx, "Processing delete message",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldJobID, msg.ID,
		applog.FieldJobNumber, msg.JobNumber)

	if msg.ID == "" && msg.JobNumber == "" {
		slog.WarnContext(ctx, "Delete message names no job, skipping",
			applog.FieldComponent, applog.ComponentWorker)
		return nil
	}
	if err := w.mirror.DeleteJob(ctx, msg.ID, msg.JobNumber); err != nil {
		return fmt.Errorf("delete mirror row: %w", err)
	}
	return nil
}

// Reconcile replaces the mirror with the current store contents. It recovers
// from lost messages and from worker downtime.
func (w *MirrorWorker) Reconcile(ctx context.Context) error {
	list, err := w.source.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if err := w.mirror.ReplaceAll(ctx, list); err != nil {
		return fmt.Errorf("replace mirror: %w", err)
	}
	slog.InfoContext(ctx, "Board mirror reconciled",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldCount, len(list))
	return nil
}

// RunReconciler reconciles once at startup and then every interval until ctx
// is done. A non-positive interval disables the periodic pass only. Failures
// are logged and retried on the next tick.
func (w *MirrorWorker) RunReconciler(ctx context.Context, interval time.Duration) error {
	if err := w.Reconcile(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup reconcile failed",
			applog.FieldComponent, applog.ComponentWorker, applog.FieldError, err)
	}
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Reconcile(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic reconcile failed",
					applog.FieldComponent, applog.ComponentWorker, applog.FieldError, err)
			}
		}
	}
}
