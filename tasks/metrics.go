package tasks

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// storeMetrics are the collectors shared by instrumented stores.
type storeMetrics struct {
	created     prometheus.Counter
	transitions *prometheus.CounterVec
	errors      *prometheus.CounterVec
}

// instrumentedStore wraps a TaskStore with Prometheus counters.
type instrumentedStore struct {
	next TaskStore
	m    *storeMetrics
}

// WithMetrics decorates next with counters registered on reg:
// <namespace>_tasks_created_total, <namespace>_tasks_transitions_total{status}
// and <namespace>_tasks_operation_errors_total{operation}. Collectors already
// registered by an earlier call are reused.
func WithMetrics(next TaskStore, reg prometheus.Registerer, namespace string) (TaskStore, error) {
	m := &storeMetrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "Tasks created.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_transitions_total",
			Help:      "Successful status transitions by target status.",
		}, []string{"status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_operation_errors_total",
			Help:      "Failed task store operations by operation.",
		}, []string{"operation"}),
	}

	var err error
	if m.created, err = register(reg, m.created); err != nil {
		return nil, err
	}
	if m.transitions, err = register(reg, m.transitions); err != nil {
		return nil, err
	}
	if m.errors, err = register(reg, m.errors); err != nil {
		return nil, err
	}
	return &instrumentedStore{next: next, m: m}, nil
}

// register registers c, returning the existing collector if an identical
// one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *instrumentedStore) observe(op string, err error) {
	if err != nil {
		s.m.errors.WithLabelValues(op).Inc()
	}
}

func (s *instrumentedStore) CreateTask(ctx context.Context, opts CreateOptions, requestID string, request json.RawMessage) (*Task, error) {
	t, err := s.next.CreateTask(ctx, opts, requestID, request)
	s.observe("create", err)
	if err == nil {
		s.m.created.Inc()
	}
	return t, err
}

func (s *instrumentedStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	t, err := s.next.GetTask(ctx, taskID)
	s.observe("get", err)
	return t, err
}

func (s *instrumentedStore) UpdateTaskStatus(ctx context.Context, taskID string, status Status, message string) error {
	err := s.next.UpdateTaskStatus(ctx, taskID, status, message)
	s.observe("update_status", err)
	if err == nil {
		s.m.transitions.WithLabelValues(string(status)).Inc()
	}
	return err
}

func (s *instrumentedStore) StoreTaskResult(ctx context.Context, taskID string, status Status, result json.RawMessage) error {
	err := s.next.StoreTaskResult(ctx, taskID, status, result)
	s.observe("store_result", err)
	if err == nil {
		s.m.transitions.WithLabelValues(string(status)).Inc()
	}
	return err
}

func (s *instrumentedStore) GetTaskResult(ctx context.Context, taskID string) (json.RawMessage, error) {
	res, err := s.next.GetTaskResult(ctx, taskID)
	s.observe("get_result", err)
	return res, err
}

func (s *instrumentedStore) ListTasks(ctx context.Context, cursor string) (*ListResult, error) {
	res, err := s.next.ListTasks(ctx, cursor)
	s.observe("list", err)
	return res, err
}

func (s *instrumentedStore) DeleteTask(ctx context.Context, taskID string) error {
	err := s.next.DeleteTask(ctx, taskID)
	s.observe("delete", err)
	return err
}

func (s *instrumentedStore) ClearAllTasks(ctx context.Context) error {
	err := s.next.ClearAllTasks(ctx)
	s.observe("clear", err)
	return err
}
