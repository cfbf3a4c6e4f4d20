package tasks

import (
	"context"
	"encoding/json"
	"time"

	errs "github.com/vinayprograms/taskstate/errors"
)

// Common errors. Errors returned by stores carry per-call detail but match
// these sentinels with errors.Is.
var (
	// ErrTaskNotFound indicates the task does not exist or has expired.
	ErrTaskNotFound = errs.New(errs.ErrCodeNotFound, "task not found")

	// ErrInvalidTransition indicates the task is already in a terminal status.
	ErrInvalidTransition = errs.New(errs.ErrCodeInvalidTransition, "task is already in a terminal status")

	// ErrResultAlreadyStored indicates a result was already written for the task.
	ErrResultAlreadyStored = errs.New(errs.ErrCodeResultAlreadyStored, "result already stored")

	// ErrNoResultStored indicates the task has no result yet.
	ErrNoResultStored = errs.New(errs.ErrCodeNoResultStored, "no result stored")

	// ErrInvalidStatus indicates an unknown status, or a non-terminal status
	// passed where a terminal one is required.
	ErrInvalidStatus = errs.New(errs.ErrCodeInvalidStatus, "invalid status")

	// ErrInvalidCursor indicates a malformed or foreign pagination cursor.
	ErrInvalidCursor = errs.New(errs.ErrCodeInvalidCursor, "invalid cursor")

	// ErrInvalidInput indicates a result or request payload that is not valid JSON.
	ErrInvalidInput = errs.New(errs.ErrCodeInvalidInput, "invalid input")

	// ErrConfiguration indicates a store or manager built from invalid options.
	ErrConfiguration = errs.New(errs.ErrCodeConfiguration, "invalid configuration")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errs.New(errs.ErrCodeClosed, "store closed")
)

// Status represents the current state of a task.
type Status string

const (
	// StatusWorking indicates the task is still running. It is the only
	// non-terminal status.
	StatusWorking Status = "working"

	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the task finished with an error.
	StatusFailed Status = "failed"

	// StatusCancelled indicates the task was cancelled before finishing.
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusWorking || s.IsTerminal()
}

// Task is the record a store keeps for one unit of asynchronous work.
type Task struct {
	// TaskID is the unique identifier within the store scope.
	TaskID string

	// Status is the current lifecycle state.
	Status Status

	// StatusMessage is an optional human-readable progress note.
	StatusMessage string

	// TTL is the retention window measured from LastUpdatedAt.
	// Nil means the task never expires.
	TTL *time.Duration

	// PollInterval is the advisory re-poll interval for callers.
	PollInterval time.Duration

	// CreatedAt is when the task was created.
	CreatedAt time.Time

	// LastUpdatedAt is when the task was last mutated. It strictly increases
	// with every successful mutation.
	LastUpdatedAt time.Time

	// OriginatingRequestID correlates the task with the request that started it.
	OriginatingRequestID string

	// OriginatingRequest is the request payload that started the task.
	OriginatingRequest json.RawMessage

	// Result is the terminal payload. Nil until a result is stored.
	Result json.RawMessage
}

// HasResult reports whether a result has been stored.
func (t *Task) HasResult() bool {
	return t.Result != nil
}

// ExpiresAt returns when the task expires and whether it expires at all.
func (t *Task) ExpiresAt() (time.Time, bool) {
	if t.TTL == nil {
		return time.Time{}, false
	}
	return t.LastUpdatedAt.Add(*t.TTL), true
}

// Expired reports whether the task's TTL has elapsed at now.
func (t *Task) Expired(now time.Time) bool {
	at, ok := t.ExpiresAt()
	return ok && !now.Before(at)
}

// Clone creates a deep copy of the task.
func (t *Task) Clone() *Task {
	clone := &Task{
		TaskID:               t.TaskID,
		Status:               t.Status,
		StatusMessage:        t.StatusMessage,
		PollInterval:         t.PollInterval,
		CreatedAt:            t.CreatedAt,
		LastUpdatedAt:        t.LastUpdatedAt,
		OriginatingRequestID: t.OriginatingRequestID,
	}

	if t.TTL != nil {
		ttl := *t.TTL
		clone.TTL = &ttl
	}

	if t.OriginatingRequest != nil {
		clone.OriginatingRequest = make(json.RawMessage, len(t.OriginatingRequest))
		copy(clone.OriginatingRequest, t.OriginatingRequest)
	}

	if t.Result != nil {
		clone.Result = make(json.RawMessage, len(t.Result))
		copy(clone.Result, t.Result)
	}

	return clone
}

// CreateOptions carries per-task overrides for CreateTask.
type CreateOptions struct {
	// TTL overrides the store default. Nil uses the default; a pointer to
	// zero means the task never expires.
	TTL *time.Duration

	// PollInterval overrides the store default when non-nil.
	PollInterval *time.Duration
}

// DurationPtr returns a pointer to d, for CreateOptions literals.
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

// ListResult is one page of ListTasks.
type ListResult struct {
	// Tasks holds at most the store's page size, oldest first.
	Tasks []*Task

	// NextCursor resumes listing after this page. Empty when no more tasks exist.
	NextCursor string
}

// TaskStore is the contract every task backing implementation provides.
// All methods are safe for concurrent use; conflicting operations on the same
// task are serialized so exactly one terminal transition succeeds.
type TaskStore interface {
	// CreateTask creates a task in the working status.
	CreateTask(ctx context.Context, opts CreateOptions, requestID string, request json.RawMessage) (*Task, error)

	// GetTask returns a copy of the task.
	// Returns ErrTaskNotFound if it does not exist or has expired.
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// UpdateTaskStatus sets the status and replaces the status message.
	// Returns ErrTaskNotFound for unknown tasks and ErrInvalidTransition for
	// tasks already in a terminal status.
	UpdateTaskStatus(ctx context.Context, taskID string, status Status, message string) error

	// StoreTaskResult writes the terminal result and status together.
	// status must be terminal. Returns ErrResultAlreadyStored or
	// ErrInvalidTransition if the task already finished.
	StoreTaskResult(ctx context.Context, taskID string, status Status, result json.RawMessage) error

	// GetTaskResult returns the stored result.
	// Returns ErrNoResultStored if the task has not produced one.
	GetTaskResult(ctx context.Context, taskID string) (json.RawMessage, error)

	// ListTasks returns one page of tasks. An empty cursor starts at the beginning.
	ListTasks(ctx context.Context, cursor string) (*ListResult, error)

	// DeleteTask removes a task. Deleting an unknown task succeeds.
	DeleteTask(ctx context.Context, taskID string) error

	// ClearAllTasks removes every task in the store scope.
	ClearAllTasks(ctx context.Context) error
}
