package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	errs "github.com/vinayprograms/taskstate/errors"
	"github.com/vinayprograms/taskstate/logging"
	"github.com/vinayprograms/taskstate/state"
)

const (
	// DefaultKeyPrefix namespaces task keys within a tenant.
	DefaultKeyPrefix = "tasks"

	lockStripes      = 64
	clearParallelism = 8
)

// StorageConfig scopes a StorageTaskStore inside its key-value collaborator.
type StorageConfig struct {
	// TenantID is the isolation namespace. Required.
	TenantID string

	// KeyPrefix namespaces task keys within the tenant. Defaults to "tasks".
	KeyPrefix string
}

// StorageTaskStore implements TaskStore over a state.StateStore. Every key
// is "{tenantId}:{keyPrefix}:{taskId}", so tenants never see each other's
// tasks. Mutations of one task are serialized by a striped lock; this holds
// for writers in one process.
type StorageTaskStore struct {
	kv     state.StateStore
	prefix string
	opts   options
	locks  [lockStripes]sync.Mutex
	closed atomic.Bool
}

// NewStorageTaskStore creates a tenant-scoped store on kv. The caller keeps
// ownership of kv.
func NewStorageTaskStore(kv state.StateStore, cfg StorageConfig, opts ...Option) (*StorageTaskStore, error) {
	if kv == nil {
		return nil, errs.New(errs.ErrCodeConfiguration, "storage task store requires a state store")
	}
	if cfg.TenantID == "" {
		return nil, errs.New(errs.ErrCodeConfiguration, "storage task store requires a tenant id",
			errs.WithMetadata("field", "tenant_id"))
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if strings.Contains(cfg.TenantID, ":") || strings.Contains(cfg.KeyPrefix, ":") {
		return nil, errs.New(errs.ErrCodeConfiguration, "tenant id and key prefix must not contain ':'")
	}

	return &StorageTaskStore{
		kv:     kv,
		prefix: cfg.TenantID + ":" + cfg.KeyPrefix + ":",
		opts:   buildOptions("tasks.storage", opts),
	}, nil
}

// Prefix returns the key prefix shared by all of this store's records.
func (s *StorageTaskStore) Prefix() string {
	return s.prefix
}

func (s *StorageTaskStore) key(taskID string) string {
	return s.prefix + taskID
}

func (s *StorageTaskStore) lockFor(taskID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(taskID))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *StorageTaskStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "task store")
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

// load reads and decodes a task. Expired records yield not found.
func (s *StorageTaskStore) load(ctx context.Context, taskID string) (*Task, error) {
	if taskID == "" {
		return nil, notFound(taskID)
	}
	data, err := s.kv.Get(ctx, s.key(taskID))
	if err != nil {
		if errors.Is(err, state.ErrNotFound) || errors.Is(err, state.ErrInvalidKey) {
			return nil, notFound(taskID)
		}
		return nil, storageError(err, "get", taskID)
	}

	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errs.WrapWithCode(err, errs.ErrCodeCorruption, "decode task record",
			errs.WithTaskID(taskID))
	}
	if t.Expired(s.opts.now()) {
		return nil, notFound(taskID)
	}
	return &t, nil
}

// save encodes t and writes it with a KV TTL matching the task TTL.
func (s *StorageTaskStore) save(ctx context.Context, t *Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return errs.Wrap(err, "encode task record", errs.WithTaskID(t.TaskID))
	}
	ttl, _ := ttlOf(t)
	if err := s.kv.Set(ctx, s.key(t.TaskID), data, ttl); err != nil {
		return storageError(err, "set", t.TaskID)
	}
	return nil
}

// expire removes a record found expired, unless it was rewritten meanwhile.
// It reports whether a record was removed.
func (s *StorageTaskStore) expire(ctx context.Context, taskID string) bool {
	mu := s.lockFor(taskID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.load(ctx, taskID); !errors.Is(err, ErrTaskNotFound) {
		return false
	}
	if _, err := s.kv.Delete(ctx, s.key(taskID)); err != nil {
		s.opts.logger.Warn("expire_failed", logging.Fields{"task": taskID, "error": err.Error()})
		return false
	}
	s.opts.logger.TaskExpired(taskID)
	return true
}

// CreateTask creates a working task.
func (s *StorageTaskStore) CreateTask(ctx context.Context, opts CreateOptions, requestID string, request json.RawMessage) (*Task, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	id := s.opts.newID()
	t, err := s.opts.newTask(id, opts, requestID, request)
	if err != nil {
		return nil, err
	}

	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	switch _, err := s.load(ctx, id); {
	case err == nil:
		return nil, errs.New(errs.ErrCodeInternal, "duplicate task id "+id, errs.WithTaskID(id))
	case !errors.Is(err, ErrTaskNotFound) && !errs.Is(err, errs.ErrCodeCorruption):
		return nil, err
	}
	if err := s.save(ctx, t); err != nil {
		return nil, err
	}

	ttl, hasTTL := ttlOf(t)
	s.opts.logger.TaskCreated(id, ttl, hasTTL)
	return t, nil
}

// GetTask returns a live task.
func (s *StorageTaskStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.load(ctx, taskID)
}

// UpdateTaskStatus sets the status and message of a non-terminal task.
func (s *StorageTaskStore) UpdateTaskStatus(ctx context.Context, taskID string, status Status, message string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	mu := s.lockFor(taskID)
	mu.Lock()
	defer mu.Unlock()

	t, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	from := t.Status
	if err := s.opts.applyStatus(t, status, message); err != nil {
		return err
	}
	if err := s.save(ctx, t); err != nil {
		return err
	}
	s.opts.logger.TaskTransition(taskID, string(from), string(status), status.IsTerminal())
	return nil
}

// StoreTaskResult records the terminal result of a working task.
func (s *StorageTaskStore) StoreTaskResult(ctx context.Context, taskID string, status Status, result json.RawMessage) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	mu := s.lockFor(taskID)
	mu.Lock()
	defer mu.Unlock()

	t, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	from := t.Status
	if err := s.opts.applyResult(t, status, result); err != nil {
		return err
	}
	if err := s.save(ctx, t); err != nil {
		return err
	}
	s.opts.logger.TaskTransition(taskID, string(from), string(status), true)
	return nil
}

// GetTaskResult returns the stored result of a live task.
func (s *StorageTaskStore) GetTaskResult(ctx context.Context, taskID string) (json.RawMessage, error) {
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !t.HasResult() {
		return nil, errs.New(errs.ErrCodeNoResultStored, "no result stored for task "+taskID, errs.WithTaskID(taskID))
	}
	return t.Result, nil
}

// ListTasks returns live tasks in task ID order, one page at a time. The
// cursor is the last ID returned, so pages already handed out are stable
// under concurrent inserts.
func (s *StorageTaskStore) ListTasks(ctx context.Context, cursor string) (*ListResult, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	after, err := decodeCursor(cursorStorage, cursor)
	if err != nil {
		return nil, err
	}

	ids, err := s.ids(ctx)
	if err != nil {
		return nil, err
	}
	start := sort.SearchStrings(ids, after)
	if start < len(ids) && ids[start] == after {
		start++
	}

	res := &ListResult{Tasks: []*Task{}}
	for _, id := range ids[start:] {
		t, err := s.load(ctx, id)
		if errors.Is(err, ErrTaskNotFound) {
			s.expire(ctx, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(res.Tasks) == s.opts.pageSize {
			// Another live task exists past this page.
			res.NextCursor = encodeCursor(cursorStorage, res.Tasks[len(res.Tasks)-1].TaskID)
			break
		}
		res.Tasks = append(res.Tasks, t)
	}
	return res, nil
}

// ids returns the sorted task IDs under this store's prefix.
func (s *StorageTaskStore) ids(ctx context.Context) ([]string, error) {
	keys, err := s.kv.List(ctx, s.prefix)
	if err != nil {
		return nil, storageError(err, "list", "")
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id := strings.TrimPrefix(k, s.prefix); id != k && id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteTask removes a task. Unknown IDs are not an error.
func (s *StorageTaskStore) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if taskID == "" {
		return nil
	}

	mu := s.lockFor(taskID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.kv.Delete(ctx, s.key(taskID)); err != nil {
		if errors.Is(err, state.ErrInvalidKey) {
			return nil
		}
		return storageError(err, "delete", taskID)
	}
	return nil
}

// ClearAllTasks removes every task under this tenant and prefix. Deletes run
// concurrently with bounded parallelism.
func (s *StorageTaskStore) ClearAllTasks(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	ids, err := s.ids(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(clearParallelism)
	for _, id := range ids {
		g.Go(func() error {
			return s.DeleteTask(gctx, id)
		})
	}
	return g.Wait()
}

// PurgeExpired deletes expired records under this store's prefix and
// returns how many were removed.
func (s *StorageTaskStore) PurgeExpired(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	ids, err := s.ids(ctx)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, id := range ids {
		_, err := s.load(ctx, id)
		if errors.Is(err, ErrTaskNotFound) {
			if s.expire(ctx, id) {
				purged++
			}
			continue
		}
		if err != nil && !errs.Is(err, errs.ErrCodeCorruption) {
			return purged, err
		}
	}
	return purged, nil
}

// Close marks the store closed. The state store is left open.
func (s *StorageTaskStore) Close() error {
	s.closed.Store(true)
	return nil
}

// storageError classifies a collaborator failure. Context errors keep their
// own codes; everything else is a transient UNAVAILABLE.
func storageError(err error, op, taskID string) error {
	opts := []errs.Option{errs.WithMetadata("operation", op)}
	if taskID != "" {
		opts = append(opts, errs.WithTaskID(taskID))
	}
	switch {
	case errors.Is(err, state.ErrClosed):
		return errs.WrapWithCode(err, errs.ErrCodeClosed, "state store "+op, opts...)
	case errors.Is(err, state.ErrInvalidKey):
		return errs.WrapWithCode(err, errs.ErrCodeInvalidInput, "state store "+op, opts...)
	}
	return errs.WrapWithCode(err, errs.ErrCodeUnavailable, "state store "+op, opts...)
}
