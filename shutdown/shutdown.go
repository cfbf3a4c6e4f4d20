package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	errs "github.com/vinayprograms/taskstate/errors"
	"github.com/vinayprograms/taskstate/logging"
)

// Phases for a task-serving process. Lower phases run first.
const (
	PhaseIntake    = 10 // stop accepting new tasks
	PhaseTasks     = 20 // task manager cleanup
	PhaseStorage   = 30 // persistent state store
	PhaseTelemetry = 40 // flush traces and metrics
)

// DefaultTimeout bounds Run when the caller's context has no deadline.
const DefaultTimeout = 30 * time.Second

// ErrHandlerFailed indicates one or more handlers returned an error.
var ErrHandlerFailed = errors.New("one or more shutdown handlers failed")

// Handler is implemented by components that release resources on shutdown.
type Handler interface {
	OnShutdown(ctx context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) error

// OnShutdown implements Handler.
func (f HandlerFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult is the outcome of one handler.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result is the outcome of a Run.
type Result struct {
	Handlers []HandlerResult
	Duration time.Duration
	Err      error
}

// Failed returns the names of handlers that returned an error.
func (r *Result) Failed() []string {
	var names []string
	for _, h := range r.Handlers {
		if h.Err != nil {
			names = append(names, h.Name)
		}
	}
	return names
}

// Config configures a Sequence.
type Config struct {
	// Timeout bounds the whole run. Zero uses DefaultTimeout.
	Timeout time.Duration

	// StopOnError skips later phases once a handler fails.
	StopOnError bool

	// Logger receives one line per handler. Defaults to logging.New().
	Logger *logging.Logger
}

type registration struct {
	name    string
	phase   int
	handler Handler
}

// Sequence runs registered handlers phase by phase.
type Sequence struct {
	cfg    Config
	logger *logging.Logger

	mu       sync.Mutex
	handlers []registration

	once   sync.Once
	done   chan struct{}
	result *Result
}

// NewSequence creates an empty sequence.
func NewSequence(cfg Config) *Sequence {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New()
	}
	return &Sequence{
		cfg:    cfg,
		logger: logger.WithComponent("shutdown"),
		done:   make(chan struct{}),
	}
}

// Register adds h under phase.
func (s *Sequence) Register(name string, phase int, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, registration{name: name, phase: phase, handler: h})
}

// RegisterFunc adds fn under phase.
func (s *Sequence) RegisterFunc(name string, phase int, fn func(ctx context.Context) error) {
	s.Register(name, phase, HandlerFunc(fn))
}

// Run executes every phase once. Later calls wait for the first run and
// return its error.
func (s *Sequence) Run(ctx context.Context) error {
	s.once.Do(func() {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()
		}
		s.result = s.run(ctx)
		close(s.done)
	})
	<-s.done
	return s.result.Err
}

// Done is closed once Run has finished.
func (s *Sequence) Done() <-chan struct{} {
	return s.done
}

// Result returns the outcome of Run, or nil before it finishes.
func (s *Sequence) Result() *Result {
	select {
	case <-s.done:
		return s.result
	default:
		return nil
	}
}

func (s *Sequence) run(ctx context.Context) *Result {
	start := time.Now()

	s.mu.Lock()
	handlers := append([]registration(nil), s.handlers...)
	s.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	res := &Result{}
	for i := 0; i < len(handlers); {
		j := i
		for j < len(handlers) && handlers[j].phase == handlers[i].phase {
			j++
		}

		if err := ctx.Err(); err != nil {
			res.Err = errs.Wrap(err, fmt.Sprintf("shutdown interrupted before phase %d", handlers[i].phase))
			break
		}

		phase := s.runPhase(ctx, handlers[i:j])
		res.Handlers = append(res.Handlers, phase...)

		failed := false
		for _, h := range phase {
			failed = failed || h.Err != nil
		}
		if failed && res.Err == nil {
			res.Err = ErrHandlerFailed
		}
		if failed && s.cfg.StopOnError {
			break
		}
		i = j
	}

	res.Duration = time.Since(start)
	s.logger.Info("shutdown_complete", logging.Fields{
		"handlers": len(res.Handlers),
		"failed":   len(res.Failed()),
		"duration": res.Duration.String(),
	})
	return res
}

// runPhase runs one phase's handlers concurrently.
func (s *Sequence) runPhase(ctx context.Context, group []registration) []HandlerResult {
	results := make([]HandlerResult, len(group))

	var wg sync.WaitGroup
	for i, r := range group {
		wg.Add(1)
		go func() {
			defer wg.Done()

			start := time.Now()
			err := r.handler.OnShutdown(ctx)
			results[i] = HandlerResult{Name: r.name, Phase: r.phase, Duration: time.Since(start), Err: err}

			fields := logging.Fields{"handler": r.name, "phase": r.phase, "duration": results[i].Duration.String()}
			if err != nil {
				fields["error"] = err.Error()
				s.logger.Warn("shutdown_handler_failed", fields)
				return
			}
			s.logger.Debug("shutdown_handler_done", fields)
		}()
	}
	wg.Wait()
	return results
}
