package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vinayprograms/taskstate/logging"
)

func TestMemoryTaskStore_Contract(t *testing.T) {
	runTaskStoreSuite(t, func(t *testing.T, opts ...Option) TaskStore {
		s := NewMemoryTaskStore(opts...)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMemoryTaskStore_Count(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryTaskStore(WithClock(clock.Now), WithLogger(logging.Discard()))
	defer s.Close()
	ctx := context.Background()

	if n := s.Count(); n != 0 {
		t.Fatalf("expected 0 tasks, got %d", n)
	}

	a, _ := s.CreateTask(ctx, CreateOptions{TTL: DurationPtr(time.Minute)}, "", nil)
	s.CreateTask(ctx, CreateOptions{}, "", nil)
	if n := s.Count(); n != 2 {
		t.Errorf("expected 2 tasks, got %d", n)
	}

	clock.Advance(2 * time.Minute)
	if n := s.Count(); n != 1 {
		t.Errorf("expired task should not be counted, got %d", n)
	}

	s.DeleteTask(ctx, a.TaskID)
	s.ClearAllTasks(ctx)
	if n := s.Count(); n != 0 {
		t.Errorf("expected 0 after clear, got %d", n)
	}
}

func TestMemoryTaskStore_PurgeExpired(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryTaskStore(WithClock(clock.Now), WithLogger(logging.Discard()))
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.CreateTask(ctx, CreateOptions{TTL: DurationPtr(time.Second)}, "", nil)
	}
	s.CreateTask(ctx, CreateOptions{}, "", nil)

	clock.Advance(time.Minute)
	n, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 purged, got %d", n)
	}
	if n, _ := s.PurgeExpired(ctx); n != 0 {
		t.Errorf("second purge should find nothing, got %d", n)
	}
}

func TestMemoryTaskStore_Closed(t *testing.T) {
	s := NewMemoryTaskStore(WithLogger(logging.Discard()))
	ctx := context.Background()
	task, _ := s.CreateTask(ctx, CreateOptions{}, "", nil)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.GetTask(ctx, task.TaskID); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if _, err := s.CreateTask(ctx, CreateOptions{}, "", nil); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestMemoryTaskStore_DuplicateID(t *testing.T) {
	s := NewMemoryTaskStore(WithIDGenerator(func() string { return "task_fixed" }), WithLogger(logging.Discard()))
	defer s.Close()
	ctx := context.Background()

	if _, err := s.CreateTask(ctx, CreateOptions{}, "", nil); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := s.CreateTask(ctx, CreateOptions{}, "", nil); err == nil {
		t.Error("expected duplicate id to be rejected")
	}
}

func TestMemoryTaskStore_ForeignCursor(t *testing.T) {
	s := NewMemoryTaskStore(WithLogger(logging.Discard()))
	defer s.Close()

	_, err := s.ListTasks(context.Background(), encodeCursor(cursorStorage, "task_1"))
	if !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("expected ErrInvalidCursor for a storage cursor, got %v", err)
	}
}
