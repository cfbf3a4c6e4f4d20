package tasks

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"

	errs "github.com/vinayprograms/taskstate/errors"
)

// MemoryTaskStore implements TaskStore in process memory. A single lock
// serializes mutations, so terminal transitions on a task are exclusive.
type MemoryTaskStore struct {
	mu     sync.RWMutex
	tasks  map[string]*memoryEntry
	seq    uint64
	opts   options
	closed atomic.Bool
}

type memoryEntry struct {
	task *Task
	seq  uint64 // insertion order, used as the list position
}

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore(opts ...Option) *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[string]*memoryEntry),
		opts:  buildOptions("tasks.memory", opts),
	}
}

func (s *MemoryTaskStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "task store")
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

// live returns the entry for id when present and not expired. Caller holds mu.
func (s *MemoryTaskStore) live(id string) (*memoryEntry, bool) {
	e, ok := s.tasks[id]
	if !ok || e.task.Expired(s.opts.now()) {
		return nil, false
	}
	return e, true
}

// liveLocked is live for mutating callers: expired entries are dropped.
func (s *MemoryTaskStore) liveLocked(id string) (*memoryEntry, bool) {
	e, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	if e.task.Expired(s.opts.now()) {
		delete(s.tasks, id)
		s.opts.logger.TaskExpired(id)
		return nil, false
	}
	return e, true
}

// CreateTask creates a working task.
func (s *MemoryTaskStore) CreateTask(ctx context.Context, opts CreateOptions, requestID string, request json.RawMessage) (*Task, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.opts.newID()
	if _, exists := s.liveLocked(id); exists {
		return nil, errs.New(errs.ErrCodeInternal, "duplicate task id "+id, errs.WithTaskID(id))
	}

	t, err := s.opts.newTask(id, opts, requestID, request)
	if err != nil {
		return nil, err
	}
	s.seq++
	s.tasks[id] = &memoryEntry{task: t, seq: s.seq}

	ttl, hasTTL := ttlOf(t)
	s.opts.logger.TaskCreated(id, ttl, hasTTL)
	return t.Clone(), nil
}

// GetTask returns a copy of a live task.
func (s *MemoryTaskStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.live(taskID)
	if !ok {
		return nil, notFound(taskID)
	}
	return e.task.Clone(), nil
}

// UpdateTaskStatus sets the status and message of a non-terminal task.
func (s *MemoryTaskStore) UpdateTaskStatus(ctx context.Context, taskID string, status Status, message string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveLocked(taskID)
	if !ok {
		return notFound(taskID)
	}

	// Apply to a copy so a rejected update leaves the record untouched.
	next := e.task.Clone()
	from := next.Status
	if err := s.opts.applyStatus(next, status, message); err != nil {
		return err
	}
	e.task = next
	s.opts.logger.TaskTransition(taskID, string(from), string(status), status.IsTerminal())
	return nil
}

// StoreTaskResult records the terminal result of a working task.
func (s *MemoryTaskStore) StoreTaskResult(ctx context.Context, taskID string, status Status, result json.RawMessage) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveLocked(taskID)
	if !ok {
		return notFound(taskID)
	}

	next := e.task.Clone()
	from := next.Status
	if err := s.opts.applyResult(next, status, result); err != nil {
		return err
	}
	e.task = next
	s.opts.logger.TaskTransition(taskID, string(from), string(status), true)
	return nil
}

// GetTaskResult returns the stored result of a live task.
func (s *MemoryTaskStore) GetTaskResult(ctx context.Context, taskID string) (json.RawMessage, error) {
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !t.HasResult() {
		return nil, errs.New(errs.ErrCodeNoResultStored, "no result stored for task "+taskID, errs.WithTaskID(taskID))
	}
	return t.Result, nil
}

// ListTasks returns live tasks in creation order, one page at a time.
func (s *MemoryTaskStore) ListTasks(ctx context.Context, cursor string) (*ListResult, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	after, err := decodeSeqCursor(cursor)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	entries := make([]*memoryEntry, 0, len(s.tasks))
	for id, e := range s.tasks {
		if e.task.Expired(now) {
			delete(s.tasks, id)
			s.opts.logger.TaskExpired(id)
			continue
		}
		if e.seq > after {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	res := &ListResult{Tasks: []*Task{}}
	for i, e := range entries {
		if i == s.opts.pageSize {
			res.NextCursor = encodeSeqCursor(entries[i-1].seq)
			break
		}
		res.Tasks = append(res.Tasks, e.task.Clone())
	}
	return res, nil
}

// DeleteTask removes a task. Unknown IDs are not an error.
func (s *MemoryTaskStore) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, taskID)
	return nil
}

// ClearAllTasks removes every task.
func (s *MemoryTaskStore) ClearAllTasks(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*memoryEntry)
	return nil
}

// Count returns the number of live tasks.
func (s *MemoryTaskStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.opts.now()
	n := 0
	for _, e := range s.tasks {
		if !e.task.Expired(now) {
			n++
		}
	}
	return n
}

// PurgeExpired drops expired tasks and returns how many were removed.
func (s *MemoryTaskStore) PurgeExpired(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	purged := 0
	for id, e := range s.tasks {
		if e.task.Expired(now) {
			delete(s.tasks, id)
			s.opts.logger.TaskExpired(id)
			purged++
		}
	}
	return purged, nil
}

// Close releases all tasks. Later calls fail with ErrStoreClosed.
func (s *MemoryTaskStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*memoryEntry)
	return nil
}
