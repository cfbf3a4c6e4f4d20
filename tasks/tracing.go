package tasks

import (
	"context"
	"encoding/json"

	"github.com/vinayprograms/taskstate/telemetry"
)

// tracedStore wraps a TaskStore with one span per operation.
type tracedStore struct {
	next    TaskStore
	tracer  *telemetry.Tracer
	backend string
}

// WithTracing decorates next so every operation emits a "tasks.<op>" span
// tagged with backend. A nil tracer uses the global tracer.
func WithTracing(next TaskStore, tracer *telemetry.Tracer, backend string) TaskStore {
	if tracer == nil {
		tracer = telemetry.GetTracer()
	}
	return &tracedStore{next: next, tracer: tracer, backend: backend}
}

func (s *tracedStore) CreateTask(ctx context.Context, opts CreateOptions, requestID string, request json.RawMessage) (*Task, error) {
	ctx, span := s.tracer.StartStoreSpan(ctx, s.backend, "create")
	t, err := s.next.CreateTask(ctx, opts, requestID, request)
	so := telemetry.StoreSpanOptions{Status: string(StatusWorking)}
	if t != nil {
		so.TaskID = t.TaskID
	}
	s.tracer.EndStoreSpan(span, so, err)
	return t, err
}

func (s *tracedStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	ctx, span := s.tracer.StartStoreSpan(ctx, s.backend, "get")
	t, err := s.next.GetTask(ctx, taskID)
	so := telemetry.StoreSpanOptions{TaskID: taskID}
	if t != nil {
		so.Status = string(t.Status)
		so.StatusMessage = t.StatusMessage
	}
	s.tracer.EndStoreSpan(span, so, err)
	return t, err
}

func (s *tracedStore) UpdateTaskStatus(ctx context.Context, taskID string, status Status, message string) error {
	ctx, span := s.tracer.StartStoreSpan(ctx, s.backend, "update_status")
	err := s.next.UpdateTaskStatus(ctx, taskID, status, message)
	s.tracer.EndStoreSpan(span, telemetry.StoreSpanOptions{
		TaskID:        taskID,
		Status:        string(status),
		StatusMessage: message,
	}, err)
	return err
}

func (s *tracedStore) StoreTaskResult(ctx context.Context, taskID string, status Status, result json.RawMessage) error {
	ctx, span := s.tracer.StartStoreSpan(ctx, s.backend, "store_result")
	err := s.next.StoreTaskResult(ctx, taskID, status, result)
	s.tracer.EndStoreSpan(span, telemetry.StoreSpanOptions{TaskID: taskID, Status: string(status)}, err)
	return err
}

func (s *tracedStore) GetTaskResult(ctx context.Context, taskID string) (json.RawMessage, error) {
	ctx, span := s.tracer.StartStoreSpan(ctx, s.backend, "get_result")
	res, err := s.next.GetTaskResult(ctx, taskID)
	s.tracer.EndStoreSpan(span, telemetry.StoreSpanOptions{TaskID: taskID}, err)
	return res, err
}

func (s *tracedStore) ListTasks(ctx context.Context, cursor string) (*ListResult, error) {
	ctx, span := s.tracer.StartStoreSpan(ctx, s.backend, "list")
	res, err := s.next.ListTasks(ctx, cursor)
	so := telemetry.StoreSpanOptions{Cursor: cursor}
	if res != nil {
		so.Count = len(res.Tasks)
	}
	s.tracer.EndStoreSpan(span, so, err)
	return res, err
}

func (s *tracedStore) DeleteTask(ctx context.Context, taskID string) error {
	ctx, span := s.tracer.StartStoreSpan(ctx, s.backend, "delete")
	err := s.next.DeleteTask(ctx, taskID)
	s.tracer.EndStoreSpan(span, telemetry.StoreSpanOptions{TaskID: taskID}, err)
	return err
}

func (s *tracedStore) ClearAllTasks(ctx context.Context) error {
	ctx, span := s.tracer.StartStoreSpan(ctx, s.backend, "clear")
	err := s.next.ClearAllTasks(ctx)
	s.tracer.EndStoreSpan(span, telemetry.StoreSpanOptions{}, err)
	return err
}
