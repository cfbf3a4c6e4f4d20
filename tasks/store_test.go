package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vinayprograms/taskstate/logging"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// seqIDs returns an ID generator whose IDs sort in creation order.
func seqIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("task_%06d", n.Add(1))
	}
}

// newStoreFunc builds a fresh, empty store with the given options.
type newStoreFunc func(t *testing.T, opts ...Option) TaskStore

// runTaskStoreSuite exercises the TaskStore contract against a store.
func runTaskStoreSuite(t *testing.T, newStore newStoreFunc) {
	ctx := context.Background()

	setup := func(t *testing.T, extra ...Option) (TaskStore, *fakeClock) {
		clock := newFakeClock()
		opts := []Option{
			WithClock(clock.Now),
			WithIDGenerator(seqIDs()),
			WithPageSize(2),
			WithLogger(logging.Discard()),
		}
		return newStore(t, append(opts, extra...)...), clock
	}

	mustCreate := func(t *testing.T, s TaskStore, opts CreateOptions) *Task {
		t.Helper()
		task, err := s.CreateTask(ctx, opts, "req-1", json.RawMessage(`{"method":"tools/call"}`))
		if err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
		return task
	}

	// ========================================================================
	// LEVEL 1: Create and read
	// ========================================================================

	t.Run("Create_Defaults", func(t *testing.T) {
		s, clock := setup(t)
		task := mustCreate(t, s, CreateOptions{})

		got, err := s.GetTask(ctx, task.TaskID)
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		if got.Status != StatusWorking {
			t.Errorf("expected status working, got %s", got.Status)
		}
		if got.TTL != nil {
			t.Errorf("expected no TTL by default, got %v", *got.TTL)
		}
		if got.PollInterval != DefaultPollInterval {
			t.Errorf("expected poll interval %v, got %v", DefaultPollInterval, got.PollInterval)
		}
		if !got.CreatedAt.Equal(clock.Now()) || !got.LastUpdatedAt.Equal(clock.Now()) {
			t.Errorf("unexpected timestamps: created=%v updated=%v", got.CreatedAt, got.LastUpdatedAt)
		}
		if got.OriginatingRequestID != "req-1" {
			t.Errorf("expected request id req-1, got %q", got.OriginatingRequestID)
		}
		if string(got.OriginatingRequest) != `{"method":"tools/call"}` {
			t.Errorf("unexpected request %s", got.OriginatingRequest)
		}
		if got.HasResult() {
			t.Error("new task should have no result")
		}
	})

	t.Run("Create_Overrides", func(t *testing.T) {
		s, _ := setup(t)
		task := mustCreate(t, s, CreateOptions{
			TTL:          DurationPtr(30 * time.Second),
			PollInterval: DurationPtr(250 * time.Millisecond),
		})

		got, err := s.GetTask(ctx, task.TaskID)
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		if got.TTL == nil || *got.TTL != 30*time.Second {
			t.Errorf("expected TTL 30s, got %v", got.TTL)
		}
		if got.PollInterval != 250*time.Millisecond {
			t.Errorf("expected poll interval 250ms, got %v", got.PollInterval)
		}
	})

	t.Run("Create_SubMillisecond", func(t *testing.T) {
		s, clock := setup(t)
		task := mustCreate(t, s, CreateOptions{
			TTL:          DurationPtr(time.Minute + 500*time.Microsecond),
			PollInterval: DurationPtr(1500 * time.Microsecond),
		})
		if task.TTL == nil || *task.TTL != time.Minute+time.Millisecond {
			t.Errorf("expected TTL rounded up to 1m0.001s, got %v", task.TTL)
		}
		if task.PollInterval != 2*time.Millisecond {
			t.Errorf("expected poll interval rounded up to 2ms, got %v", task.PollInterval)
		}

		got, err := s.GetTask(ctx, task.TaskID)
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		if got.TTL == nil || *got.TTL != *task.TTL || got.PollInterval != task.PollInterval {
			t.Errorf("stored durations differ: ttl=%v poll=%v", got.TTL, got.PollInterval)
		}

		clock.Advance(time.Minute)
		if _, err := s.GetTask(ctx, task.TaskID); err != nil {
			t.Errorf("task should outlive the unrounded TTL, got %v", err)
		}
		clock.Advance(time.Millisecond)
		if _, err := s.GetTask(ctx, task.TaskID); !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("expected expiry at the rounded TTL, got %v", err)
		}
	})

	t.Run("Create_DefaultTTL", func(t *testing.T) {
		s, _ := setup(t, WithDefaultTTL(time.Minute))

		task := mustCreate(t, s, CreateOptions{})
		if task.TTL == nil || *task.TTL != time.Minute {
			t.Errorf("expected default TTL 1m, got %v", task.TTL)
		}

		forever := mustCreate(t, s, CreateOptions{TTL: DurationPtr(0)})
		if forever.TTL != nil {
			t.Errorf("explicit zero TTL should never expire, got %v", *forever.TTL)
		}
	})

	t.Run("Create_InvalidRequest", func(t *testing.T) {
		s, _ := setup(t)
		_, err := s.CreateTask(ctx, CreateOptions{}, "req", json.RawMessage(`{broken`))
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		s, _ := setup(t)
		if _, err := s.GetTask(ctx, "task_missing"); !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
		if _, err := s.GetTask(ctx, ""); !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound for empty id, got %v", err)
		}
	})

	t.Run("Get_ReturnsCopy", func(t *testing.T) {
		s, _ := setup(t)
		task := mustCreate(t, s, CreateOptions{})

		got, _ := s.GetTask(ctx, task.TaskID)
		got.Status = StatusCompleted
		got.OriginatingRequest[0] = 'X'

		again, _ := s.GetTask(ctx, task.TaskID)
		if again.Status != StatusWorking || string(again.OriginatingRequest) != `{"method":"tools/call"}` {
			t.Error("mutating a returned task changed the stored record")
		}
	})

	// ========================================================================
	// LEVEL 2: Status transitions
	// ========================================================================

	t.Run("Update_Progress", func(t *testing.T) {
		s, _ := setup(t)
		task := mustCreate(t, s, CreateOptions{})
		last := task.LastUpdatedAt

		for i, msg := range []string{"step 1", "step 2", "step 3"} {
			if err := s.UpdateTaskStatus(ctx, task.TaskID, StatusWorking, msg); err != nil {
				t.Fatalf("update %d failed: %v", i, err)
			}
			got, _ := s.GetTask(ctx, task.TaskID)
			if got.StatusMessage != msg {
				t.Errorf("expected message %q, got %q", msg, got.StatusMessage)
			}
			if !got.LastUpdatedAt.After(last) {
				t.Errorf("lastUpdatedAt did not advance: %v -> %v", last, got.LastUpdatedAt)
			}
			last = got.LastUpdatedAt
		}
	})

	t.Run("Update_Terminal", func(t *testing.T) {
		s, _ := setup(t)
		task := mustCreate(t, s, CreateOptions{})

		if err := s.UpdateTaskStatus(ctx, task.TaskID, StatusCancelled, "user cancelled"); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
		got, _ := s.GetTask(ctx, task.TaskID)
		if got.Status != StatusCancelled || got.StatusMessage != "user cancelled" {
			t.Errorf("unexpected task after cancel: %s %q", got.Status, got.StatusMessage)
		}

		for _, status := range []Status{StatusWorking, StatusCompleted, StatusFailed, StatusCancelled} {
			err := s.UpdateTaskStatus(ctx, task.TaskID, status, "")
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("update to %s: expected ErrInvalidTransition, got %v", status, err)
				continue
			}
			if !strings.Contains(err.Error(), "terminal status") {
				t.Errorf("error should mention terminal status: %v", err)
			}
		}

		after, _ := s.GetTask(ctx, task.TaskID)
		if after.Status != StatusCancelled || !after.LastUpdatedAt.Equal(got.LastUpdatedAt) {
			t.Error("rejected update changed the task")
		}
	})

	t.Run("Update_NotFound", func(t *testing.T) {
		s, _ := setup(t)
		err := s.UpdateTaskStatus(ctx, "task_missing", StatusWorking, "x")
		if !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
	})

	t.Run("Update_UnknownStatus", func(t *testing.T) {
		s, _ := setup(t)
		task := mustCreate(t, s, CreateOptions{})
		err := s.UpdateTaskStatus(ctx, task.TaskID, Status("paused"), "")
		if !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("expected ErrInvalidStatus, got %v", err)
		}
	})

	// ========================================================================
	// LEVEL 3: Results
	// ========================================================================

	t.Run("Result_StoreAndGet", func(t *testing.T) {
		s, _ := setup(t)
		task := mustCreate(t, s, CreateOptions{})

		if _, err := s.GetTaskResult(ctx, task.TaskID); !errors.Is(err, ErrNoResultStored) {
			t.Errorf("expected ErrNoResultStored before result, got %v", err)
		}

		if err := s.StoreTaskResult(ctx, task.TaskID, StatusCompleted, json.RawMessage(` { "answer" : 42 } `)); err != nil {
			t.Fatalf("StoreTaskResult failed: %v", err)
		}

		got, _ := s.GetTask(ctx, task.TaskID)
		if got.Status != StatusCompleted {
			t.Errorf("expected status completed, got %s", got.Status)
		}
		res, err := s.GetTaskResult(ctx, task.TaskID)
		if err != nil {
			t.Fatalf("GetTaskResult failed: %v", err)
		}
		if string(res) != `{"answer":42}` {
			t.Errorf("unexpected result %s", res)
		}
	})

	t.Run("Result_Failed", func(t *testing.T) {
		s, _ := setup(t)
		task := mustCreate(t, s, CreateOptions{})

		if err := s.StoreTaskResult(ctx, task.TaskID, StatusFailed, json.RawMessage(`{"error":"boom"}`)); err != nil {
			t.Fatalf("StoreTaskResult failed: %v", err)
		}
		got, _ := s.GetTask(ctx, task.TaskID)
		if got.Status != StatusFailed {
			t.Errorf("expected status failed, got %s", got.Status)
		}
	})

	t.Run("Result_Empty", func(t *testing.T) {
		s, _ := setup(t)
		task := mustCreate(t, s, CreateOptions{})

		if err := s.StoreTaskResult(ctx, task.TaskID, StatusCompleted, nil); err != nil {
			t.Fatalf("StoreTaskResult failed: %v", err)
		}
		res, err := s.GetTaskResult(ctx, task.TaskID)
		if err != nil {
			t.Fatalf("GetTaskResult failed: %v", err)
		}
		if string(res) != "null" {
			t.Errorf("expected null result, got %s", res)
		}
	})

	t.Run("Result_AlreadyStored", func(t *testing.T) {
		s, _ := setup(t)
		task := mustCreate(t, s, CreateOptions{})
		s.StoreTaskResult(ctx, task.TaskID, StatusCompleted, json.RawMessage(`1`))

		err := s.StoreTaskResult(ctx, task.TaskID, StatusCompleted, json.RawMessage(`2`))
		if !errors.Is(err, ErrResultAlreadyStored) {
			t.Errorf("expected ErrResultAlreadyStored, got %v", err)
		}
		if err := s.UpdateTaskStatus(ctx, task.TaskID, StatusWorking, ""); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition after result, got %v", err)
		}
		res, _ := s.GetTaskResult(ctx, task.TaskID)
		if string(res) != "1" {
			t.Errorf("first result must be kept, got %s", res)
		}
	})

	t.Run("Result_AfterCancel", func(t *testing.T) {
		s, _ := setup(t)
		task := mustCreate(t, s, CreateOptions{})
		s.UpdateTaskStatus(ctx, task.TaskID, StatusCancelled, "")

		err := s.StoreTaskResult(ctx, task.TaskID, StatusCompleted, json.RawMessage(`1`))
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("Result_Validation", func(t *testing.T) {
		s, _ := setup(t)
		task := mustCreate(t, s, CreateOptions{})

		if err := s.StoreTaskResult(ctx, task.TaskID, StatusWorking, json.RawMessage(`1`)); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("expected ErrInvalidStatus for working, got %v", err)
		}
		if err := s.StoreTaskResult(ctx, task.TaskID, StatusCompleted, json.RawMessage(`{oops`)); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := s.StoreTaskResult(ctx, "task_missing", StatusCompleted, json.RawMessage(`1`)); !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
		if _, err := s.GetTaskResult(ctx, "task_missing"); !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}

		got, _ := s.GetTask(ctx, task.TaskID)
		if got.Status != StatusWorking || got.HasResult() {
			t.Error("rejected results changed the task")
		}
	})

	// ========================================================================
	// LEVEL 4: Expiry
	// ========================================================================

	t.Run("TTL_Expiry", func(t *testing.T) {
		s, clock := setup(t)
		short := mustCreate(t, s, CreateOptions{TTL: DurationPtr(time.Minute)})
		forever := mustCreate(t, s, CreateOptions{})

		clock.Advance(30 * time.Second)
		if _, err := s.GetTask(ctx, short.TaskID); err != nil {
			t.Fatalf("task expired early: %v", err)
		}

		clock.Advance(time.Minute)
		if _, err := s.GetTask(ctx, short.TaskID); !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("expected expired task to be not found, got %v", err)
		}
		if _, err := s.GetTaskResult(ctx, short.TaskID); !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound for result, got %v", err)
		}
		if err := s.UpdateTaskStatus(ctx, short.TaskID, StatusWorking, ""); !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound for update, got %v", err)
		}

		for i := 0; i < 2; i++ {
			res, err := s.ListTasks(ctx, "")
			if err != nil {
				t.Fatalf("ListTasks failed: %v", err)
			}
			if len(res.Tasks) != 1 || res.Tasks[0].TaskID != forever.TaskID {
				t.Errorf("scan %d: expected only the non-expiring task, got %d tasks", i, len(res.Tasks))
			}
		}
	})

	t.Run("TTL_RefreshedByUpdate", func(t *testing.T) {
		s, clock := setup(t)
		task := mustCreate(t, s, CreateOptions{TTL: DurationPtr(time.Minute)})

		clock.Advance(45 * time.Second)
		if err := s.UpdateTaskStatus(ctx, task.TaskID, StatusWorking, "still going"); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		clock.Advance(45 * time.Second)
		if _, err := s.GetTask(ctx, task.TaskID); err != nil {
			t.Errorf("update should extend the TTL window: %v", err)
		}
	})

	// ========================================================================
	// LEVEL 5: Listing
	// ========================================================================

	t.Run("List_Empty", func(t *testing.T) {
		s, _ := setup(t)
		res, err := s.ListTasks(ctx, "")
		if err != nil {
			t.Fatalf("ListTasks failed: %v", err)
		}
		if res.Tasks == nil || len(res.Tasks) != 0 || res.NextCursor != "" {
			t.Errorf("expected empty page, got %+v", res)
		}
	})

	t.Run("List_Pagination", func(t *testing.T) {
		s, _ := setup(t)
		var ids []string
		for i := 0; i < 3; i++ {
			ids = append(ids, mustCreate(t, s, CreateOptions{}).TaskID)
		}

		first, err := s.ListTasks(ctx, "")
		if err != nil {
			t.Fatalf("ListTasks failed: %v", err)
		}
		if len(first.Tasks) != 2 || first.NextCursor == "" {
			t.Fatalf("expected 2 tasks and a cursor, got %d tasks cursor=%q", len(first.Tasks), first.NextCursor)
		}

		second, err := s.ListTasks(ctx, first.NextCursor)
		if err != nil {
			t.Fatalf("ListTasks page 2 failed: %v", err)
		}
		if len(second.Tasks) != 1 || second.NextCursor != "" {
			t.Fatalf("expected 1 task and no cursor, got %d tasks cursor=%q", len(second.Tasks), second.NextCursor)
		}

		got := []string{first.Tasks[0].TaskID, first.Tasks[1].TaskID, second.Tasks[0].TaskID}
		for i := range ids {
			if got[i] != ids[i] {
				t.Errorf("position %d: expected %s, got %s", i, ids[i], got[i])
			}
		}
	})

	t.Run("List_ExactPage", func(t *testing.T) {
		s, _ := setup(t)
		mustCreate(t, s, CreateOptions{})
		mustCreate(t, s, CreateOptions{})

		res, err := s.ListTasks(ctx, "")
		if err != nil {
			t.Fatalf("ListTasks failed: %v", err)
		}
		if len(res.Tasks) != 2 || res.NextCursor != "" {
			t.Errorf("expected a full page without cursor, got %d tasks cursor=%q", len(res.Tasks), res.NextCursor)
		}
	})

	t.Run("List_StableUnderInserts", func(t *testing.T) {
		s, _ := setup(t)
		a := mustCreate(t, s, CreateOptions{})
		b := mustCreate(t, s, CreateOptions{})
		c := mustCreate(t, s, CreateOptions{})

		first, _ := s.ListTasks(ctx, "")
		d := mustCreate(t, s, CreateOptions{})

		second, err := s.ListTasks(ctx, first.NextCursor)
		if err != nil {
			t.Fatalf("ListTasks failed: %v", err)
		}
		if first.Tasks[0].TaskID != a.TaskID || first.Tasks[1].TaskID != b.TaskID {
			t.Error("unexpected first page")
		}
		if len(second.Tasks) != 2 || second.Tasks[0].TaskID != c.TaskID || second.Tasks[1].TaskID != d.TaskID {
			t.Errorf("expected second page [c d], got %d tasks", len(second.Tasks))
		}
	})

	t.Run("List_InvalidCursor", func(t *testing.T) {
		s, _ := setup(t)
		for _, cursor := range []string{"!!not-base64!!", "Zm9v", encodeCursor("x", "1")} {
			if _, err := s.ListTasks(ctx, cursor); !errors.Is(err, ErrInvalidCursor) {
				t.Errorf("cursor %q: expected ErrInvalidCursor, got %v", cursor, err)
			}
		}
	})

	// ========================================================================
	// LEVEL 6: Deletion
	// ========================================================================

	t.Run("Delete", func(t *testing.T) {
		s, _ := setup(t)
		task := mustCreate(t, s, CreateOptions{})

		if err := s.DeleteTask(ctx, task.TaskID); err != nil {
			t.Fatalf("DeleteTask failed: %v", err)
		}
		if _, err := s.GetTask(ctx, task.TaskID); !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound after delete, got %v", err)
		}
		if err := s.DeleteTask(ctx, task.TaskID); err != nil {
			t.Errorf("second delete should succeed, got %v", err)
		}
		if err := s.DeleteTask(ctx, "task_never_existed"); err != nil {
			t.Errorf("deleting unknown task should succeed, got %v", err)
		}
	})

	t.Run("ClearAll", func(t *testing.T) {
		s, _ := setup(t)
		for i := 0; i < 5; i++ {
			mustCreate(t, s, CreateOptions{})
		}

		if err := s.ClearAllTasks(ctx); err != nil {
			t.Fatalf("ClearAllTasks failed: %v", err)
		}
		res, _ := s.ListTasks(ctx, "")
		if len(res.Tasks) != 0 {
			t.Errorf("expected no tasks after clear, got %d", len(res.Tasks))
		}
		if err := s.ClearAllTasks(ctx); err != nil {
			t.Errorf("second clear should succeed, got %v", err)
		}
	})

	// ========================================================================
	// LEVEL 7: Concurrency
	// ========================================================================

	t.Run("Concurrent_OneTerminalWins", func(t *testing.T) {
		s, _ := setup(t)
		task := mustCreate(t, s, CreateOptions{})

		const workers = 20
		var (
			wg     sync.WaitGroup
			wins   atomic.Int32
			errsMu sync.Mutex
			losses []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				var err error
				switch n % 3 {
				case 0:
					err = s.StoreTaskResult(ctx, task.TaskID, StatusCompleted, json.RawMessage(fmt.Sprintf(`{"worker":%d}`, n)))
				case 1:
					err = s.StoreTaskResult(ctx, task.TaskID, StatusFailed, json.RawMessage(`{"error":"x"}`))
				default:
					err = s.UpdateTaskStatus(ctx, task.TaskID, StatusCancelled, "cancel")
				}
				if err == nil {
					wins.Add(1)
					return
				}
				errsMu.Lock()
				losses = append(losses, err)
				errsMu.Unlock()
			}(i)
		}
		wg.Wait()

		if wins.Load() != 1 {
			t.Fatalf("expected exactly one terminal transition, got %d", wins.Load())
		}
		for _, err := range losses {
			if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrResultAlreadyStored) {
				t.Errorf("unexpected loser error: %v", err)
			}
		}
		got, _ := s.GetTask(ctx, task.TaskID)
		if !got.Status.IsTerminal() {
			t.Errorf("expected terminal status, got %s", got.Status)
		}
	})

	t.Run("Concurrent_Create", func(t *testing.T) {
		s, _ := setup(t)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 5; j++ {
					if _, err := s.CreateTask(ctx, CreateOptions{}, "", nil); err != nil {
						t.Errorf("CreateTask failed: %v", err)
					}
				}
			}()
		}
		wg.Wait()

		seen := map[string]bool{}
		cursor := ""
		for {
			res, err := s.ListTasks(ctx, cursor)
			if err != nil {
				t.Fatalf("ListTasks failed: %v", err)
			}
			for _, task := range res.Tasks {
				if seen[task.TaskID] {
					t.Errorf("task %s listed twice", task.TaskID)
				}
				seen[task.TaskID] = true
			}
			if res.NextCursor == "" {
				break
			}
			cursor = res.NextCursor
		}
		if len(seen) != 50 {
			t.Errorf("expected 50 tasks, got %d", len(seen))
		}
	})

	t.Run("Canceled_Context", func(t *testing.T) {
		s, _ := setup(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := s.CreateTask(cctx, CreateOptions{}, "", nil); err == nil {
			t.Error("expected error for canceled context")
		}
	})
}
