package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message types, sent in the AMQP Type property.
const (
	MessageTypeJobSync   = "job.sync"
	MessageTypeJobDelete = "job.delete"
)

var errMissingID = errors.New("message has no job id")

// JobSyncMessage asks the worker to refresh the mirror row of one job. It
// carries only the id; the worker reads the current job from the store.
type JobSyncMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// JobDeleteMessage asks the worker to drop the mirror row of a deleted job.
// The job number is included because the job can no longer be read.
type JobDeleteMessage struct {
	ID        string    `json:"id"`
	JobNumber string    `json:"jobNumber"`
	Timestamp time.Time `json:"timestamp"`
}

func NewJobSyncMessage(id string) *JobSyncMessage {
	return &JobSyncMessage{ID: id, Timestamp: time.Now().UTC()}
}

func NewJobDeleteMessage(id, jobNumber string) *JobDeleteMessage {
	return &JobDeleteMessage{ID: id, JobNumber: jobNumber, Timestamp: time.Now().UTC()}
}

func (m *JobSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *JobDeleteMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func JobSyncMessageFromJSON(data []byte) (*JobSyncMessage, error) {
	var msg JobSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", MessageTypeJobSync, err)
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("decode %s: %w", MessageTypeJobSync, errMissingID)
	}
	return &msg, nil
}

func JobDeleteMessageFromJSON(data []byte) (*JobDeleteMessage, error) {
	var msg JobDeleteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", MessageTypeJobDelete, err)
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("decode %s: %w", MessageTypeJobDelete, errMissingID)
	}
	return &msg, nil
}
