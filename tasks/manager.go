package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vinayprograms/taskstate/config"
	errs "github.com/vinayprograms/taskstate/errors"
	"github.com/vinayprograms/taskstate/logging"
	"github.com/vinayprograms/taskstate/state"
	"github.com/vinayprograms/taskstate/telemetry"
)

// Manager owns the process's task store and message queue. Build one with
// NewManager and pass it (or its accessors' results) to whatever needs it.
type Manager struct {
	cfg    config.Tasks
	store  TaskStore
	queue  *MessageQueue
	logger *logging.Logger

	// Set only when the store supports them.
	count func() int
	purge func(context.Context) (int, error)
	close func() error

	liveGauge prometheus.Collector
	registry  prometheus.Registerer

	cleaningUp atomic.Bool
	stopSweep  chan struct{}
	sweepDone  sync.WaitGroup
}

type managerOptions struct {
	kv        state.StateStore
	logger    *logging.Logger
	tracer    *telemetry.Tracer
	registry  prometheus.Registerer
	namespace string
	storeOpts []Option
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

// WithStateStore supplies the key-value collaborator for the storage store
// type. The manager does not close it.
func WithStateStore(kv state.StateStore) ManagerOption {
	return func(o *managerOptions) {
		o.kv = kv
	}
}

// WithManagerLogger sets the logger for the manager and its store.
func WithManagerLogger(l *logging.Logger) ManagerOption {
	return func(o *managerOptions) {
		o.logger = l
	}
}

// WithTracer enables a span per store operation.
func WithTracer(t *telemetry.Tracer) ManagerOption {
	return func(o *managerOptions) {
		o.tracer = t
	}
}

// WithRegistry enables Prometheus metrics registered on reg under namespace.
func WithRegistry(reg prometheus.Registerer, namespace string) ManagerOption {
	return func(o *managerOptions) {
		o.registry = reg
		o.namespace = namespace
	}
}

// WithStoreOptions passes options through to the store the manager builds.
func WithStoreOptions(opts ...Option) ManagerOption {
	return func(o *managerOptions) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// NewManager builds the store selected by cfg.StoreType. The storage store
// type requires WithStateStore; without it NewManager returns a
// configuration error.
func NewManager(cfg config.Tasks, opts ...ManagerOption) (*Manager, error) {
	mo := managerOptions{logger: logging.New()}
	for _, opt := range opts {
		opt(&mo)
	}

	storeOpts := []Option{WithLogger(mo.logger)}
	if ttl, ok := cfg.DefaultTTL(); ok {
		storeOpts = append(storeOpts, WithDefaultTTL(ttl))
	}
	if d := cfg.PollInterval(); d > 0 {
		storeOpts = append(storeOpts, WithPollInterval(d))
	}
	if cfg.PageSize > 0 {
		storeOpts = append(storeOpts, WithPageSize(cfg.PageSize))
	}
	storeOpts = append(storeOpts, mo.storeOpts...)

	m := &Manager{
		cfg:       cfg,
		queue:     NewMessageQueue(),
		logger:    mo.logger.WithComponent("tasks.manager"),
		stopSweep: make(chan struct{}),
	}

	switch cfg.StoreType {
	case "", config.StoreTypeMemory:
		s := NewMemoryTaskStore(storeOpts...)
		m.store, m.count, m.purge, m.close = s, s.Count, s.PurgeExpired, s.Close
	case config.StoreTypeStorage:
		if mo.kv == nil {
			return nil, errs.New(errs.ErrCodeConfiguration,
				"store type storage requires a state store", errs.WithMetadata("field", "store_type"))
		}
		s, err := NewStorageTaskStore(mo.kv, StorageConfig{
			TenantID:  cfg.TenantID,
			KeyPrefix: cfg.KeyPrefix,
		}, storeOpts...)
		if err != nil {
			return nil, err
		}
		m.store, m.purge, m.close = s, s.PurgeExpired, s.Close
	default:
		return nil, errs.Newf(errs.ErrCodeConfiguration, "unknown store type %q", cfg.StoreType)
	}

	if mo.registry != nil {
		instrumented, err := WithMetrics(m.store, mo.registry, mo.namespace)
		if err != nil {
			return nil, errs.WrapWithCode(err, errs.ErrCodeConfiguration, "register task metrics")
		}
		m.store = instrumented
		if m.count != nil {
			count := m.count
			gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: mo.namespace,
				Name:      "tasks_live",
				Help:      "Live tasks held by the in-memory store.",
			}, func() float64 { return float64(count()) })
			if err := mo.registry.Register(gauge); err != nil {
				return nil, errs.WrapWithCode(err, errs.ErrCodeConfiguration, "register task metrics")
			}
			m.liveGauge, m.registry = gauge, mo.registry
		}
	}
	if mo.tracer != nil {
		m.store = WithTracing(m.store, mo.tracer, m.Backend())
	}

	if interval := cfg.SweepInterval(); interval > 0 {
		m.sweepDone.Add(1)
		go m.sweepLoop(interval)
	}

	m.logger.Info("task_manager_started", logging.Fields{"store": m.Backend()})
	return m, nil
}

// Backend names the store type in use.
func (m *Manager) Backend() string {
	if m.cfg.StoreType == "" {
		return config.StoreTypeMemory
	}
	return m.cfg.StoreType
}

// TaskStore returns the owned store.
func (m *Manager) TaskStore() TaskStore {
	return m.store
}

// TaskCount returns the number of live tasks. ok is false when the store
// cannot count cheaply, as with the storage store.
func (m *Manager) TaskCount() (n int, ok bool) {
	if m.count == nil {
		return 0, false
	}
	return m.count(), true
}

// MessageQueue returns the owned message queue.
func (m *Manager) MessageQueue() *MessageQueue {
	return m.queue
}

// IsCleaningUp reports whether Cleanup has been called.
func (m *Manager) IsCleaningUp() bool {
	return m.cleaningUp.Load()
}

// Cleanup stops the expiry sweep, discards queued messages and releases the
// store. Calls after the first do nothing.
func (m *Manager) Cleanup() error {
	if m.cleaningUp.Swap(true) {
		return nil
	}

	close(m.stopSweep)
	m.sweepDone.Wait()

	m.queue.Close()
	if m.liveGauge != nil {
		m.registry.Unregister(m.liveGauge)
	}

	var err error
	if m.close != nil {
		err = m.close()
	}
	m.logger.Info("task_manager_stopped")
	return err
}

// OnShutdown runs Cleanup, so a Manager can be registered with a
// shutdown.Sequence.
func (m *Manager) OnShutdown(context.Context) error {
	return m.Cleanup()
}

// Sweep purges expired tasks once. The manager runs it periodically when
// the sweep interval is set.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := m.purge(ctx)
	m.logger.SweepComplete(n, time.Since(start), err)
	return n, err
}

func (m *Manager) sweepLoop(interval time.Duration) {
	defer m.sweepDone.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			m.Sweep(ctx)
			cancel()
		case <-m.stopSweep:
			return
		}
	}
}
