package tasks

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	errs "github.com/vinayprograms/taskstate/errors"
	"github.com/vinayprograms/taskstate/logging"
)

const (
	// DefaultPageSize is the ListTasks page size when none is configured.
	DefaultPageSize = 10

	// DefaultPollInterval is the advisory poll interval when none is configured.
	DefaultPollInterval = time.Second
)

// options holds settings shared by both store implementations.
type options struct {
	defaultTTL   *time.Duration
	pollInterval time.Duration
	pageSize     int
	now          func() time.Time
	newID        func() string
	logger       *logging.Logger
}

// Option configures a task store.
type Option func(*options)

// WithDefaultTTL sets the TTL applied when CreateOptions.TTL is nil.
// Zero means tasks never expire by default.
func WithDefaultTTL(d time.Duration) Option {
	return func(o *options) {
		if d <= 0 {
			o.defaultTTL = nil
			return
		}
		o.defaultTTL = &d
	}
}

// WithPollInterval sets the poll interval applied when CreateOptions.PollInterval is nil.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithPageSize sets the maximum number of tasks per ListTasks page.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithClock sets the time source used for timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDGenerator sets the function that produces new task IDs.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		o.newID = fn
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{
		pollInterval: DefaultPollInterval,
		pageSize:     DefaultPageSize,
		now:          time.Now,
		newID:        NewTaskID,
		logger:       logging.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.WithComponent(component)
	return o
}

// NewTaskID returns "task_" followed by a time-ordered UUIDv7 in hex, so
// lexical order of IDs follows creation order.
func NewTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "task_" + hex.EncodeToString(id[:])
}

// newTask builds the record CreateTask persists.
func (o *options) newTask(id string, opts CreateOptions, requestID string, request json.RawMessage) (*Task, error) {
	req, err := normalizeJSON(request, false)
	if err != nil {
		return nil, errs.Wrap(err, "invalid originating request", errs.WithTaskID(id))
	}

	now := o.now().UTC()
	t := &Task{
		TaskID:               id,
		Status:               StatusWorking,
		PollInterval:         o.pollInterval,
		CreatedAt:            now,
		LastUpdatedAt:        now,
		OriginatingRequestID: requestID,
		OriginatingRequest:   req,
	}

	switch {
	case opts.TTL != nil && *opts.TTL > 0:
		ttl := wholeMillis(*opts.TTL)
		t.TTL = &ttl
	case opts.TTL != nil:
		// explicit zero: never expires
	case o.defaultTTL != nil:
		ttl := wholeMillis(*o.defaultTTL)
		t.TTL = &ttl
	}

	if opts.PollInterval != nil && *opts.PollInterval > 0 {
		t.PollInterval = *opts.PollInterval
	}
	t.PollInterval = wholeMillis(t.PollInterval)
	return t, nil
}

// wholeMillis rounds a positive duration up to the next millisecond, the
// resolution of the wire form, so every store reports the same value.
func wholeMillis(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return (d + time.Millisecond - 1).Truncate(time.Millisecond)
}

// touch advances LastUpdatedAt, keeping it strictly increasing even when the
// clock has not moved.
func (o *options) touch(t *Task) {
	now := o.now().UTC()
	if !now.After(t.LastUpdatedAt) {
		now = t.LastUpdatedAt.Add(time.Nanosecond)
	}
	t.LastUpdatedAt = now
}

// applyStatus validates and applies a status update to t.
func (o *options) applyStatus(t *Task, status Status, message string) error {
	if !status.Valid() {
		return errs.Newf(errs.ErrCodeInvalidStatus, "unknown status %q", status)
	}
	if t.Status.IsTerminal() {
		return errs.Newf(errs.ErrCodeInvalidTransition,
			"cannot update task %s: already in terminal status %s", t.TaskID, t.Status)
	}
	t.Status = status
	t.StatusMessage = message
	o.touch(t)
	return nil
}

// applyResult validates and applies a terminal result to t.
func (o *options) applyResult(t *Task, status Status, result json.RawMessage) error {
	if !status.IsTerminal() {
		return errs.Newf(errs.ErrCodeInvalidStatus,
			"result requires a terminal status, got %q", status)
	}
	if t.HasResult() {
		return errs.New(errs.ErrCodeResultAlreadyStored,
			"result already stored for task "+t.TaskID, errs.WithTaskID(t.TaskID))
	}
	if t.Status.IsTerminal() {
		return errs.Newf(errs.ErrCodeInvalidTransition,
			"cannot store result for task %s: already in terminal status %s", t.TaskID, t.Status)
	}
	res, err := normalizeJSON(result, true)
	if err != nil {
		return errs.Wrap(err, "invalid result", errs.WithTaskID(t.TaskID))
	}
	t.Status = status
	t.Result = res
	o.touch(t)
	return nil
}

// normalizeJSON validates raw and returns its compact form. Empty input is
// nil, or JSON null when nullIfEmpty is set.
func normalizeJSON(raw json.RawMessage, nullIfEmpty bool) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		if nullIfEmpty {
			return json.RawMessage("null"), nil
		}
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, errs.New(errs.ErrCodeInvalidInput, "payload is not valid JSON")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, errs.WrapWithCode(err, errs.ErrCodeInvalidInput, "payload is not valid JSON")
	}
	return json.RawMessage(buf.Bytes()), nil
}

func ttlOf(t *Task) (time.Duration, bool) {
	if t.TTL == nil {
		return 0, false
	}
	return *t.TTL, true
}

func notFound(taskID string) error {
	return errs.New(errs.ErrCodeNotFound, "task not found: "+taskID, errs.WithTaskID(taskID))
}
