package tasks

import (
	"encoding/json"
	"fmt"
	"time"
)

// taskJSON is the stored and wire form of a Task. Durations are milliseconds
// and timestamps are RFC 3339 in UTC.
type taskJSON struct {
	TaskID               string          `json:"taskId"`
	Status               Status          `json:"status"`
	StatusMessage        string          `json:"statusMessage,omitempty"`
	TTL                  *int64          `json:"ttl"`
	PollInterval         int64           `json:"pollInterval"`
	CreatedAt            string          `json:"createdAt"`
	LastUpdatedAt        string          `json:"lastUpdatedAt"`
	OriginatingRequestID string          `json:"originatingRequestId,omitempty"`
	OriginatingRequest   json.RawMessage `json:"originatingRequest,omitempty"`
	Result               json.RawMessage `json:"result,omitempty"`
}

// MarshalJSON encodes the task in its wire form.
func (t *Task) MarshalJSON() ([]byte, error) {
	w := taskJSON{
		TaskID:               t.TaskID,
		Status:               t.Status,
		StatusMessage:        t.StatusMessage,
		PollInterval:         t.PollInterval.Milliseconds(),
		CreatedAt:            t.CreatedAt.UTC().Format(time.RFC3339Nano),
		LastUpdatedAt:        t.LastUpdatedAt.UTC().Format(time.RFC3339Nano),
		OriginatingRequestID: t.OriginatingRequestID,
		OriginatingRequest:   t.OriginatingRequest,
		Result:               t.Result,
	}
	if t.TTL != nil {
		ms := t.TTL.Milliseconds()
		w.TTL = &ms
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w taskJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.TaskID == "" {
		return fmt.Errorf("task record missing taskId")
	}
	if !w.Status.Valid() {
		return fmt.Errorf("task record %s has unknown status %q", w.TaskID, w.Status)
	}

	created, err := time.Parse(time.RFC3339Nano, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("task record %s createdAt: %w", w.TaskID, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, w.LastUpdatedAt)
	if err != nil {
		return fmt.Errorf("task record %s lastUpdatedAt: %w", w.TaskID, err)
	}

	*t = Task{
		TaskID:               w.TaskID,
		Status:               w.Status,
		StatusMessage:        w.StatusMessage,
		PollInterval:         time.Duration(w.PollInterval) * time.Millisecond,
		CreatedAt:            created,
		LastUpdatedAt:        updated,
		OriginatingRequestID: w.OriginatingRequestID,
		OriginatingRequest:   w.OriginatingRequest,
		Result:               w.Result,
	}
	if w.TTL != nil {
		ttl := time.Duration(*w.TTL) * time.Millisecond
		t.TTL = &ttl
	}
	return nil
}
