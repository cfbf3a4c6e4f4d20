// Package telemetry provides OpenTelemetry tracing helpers for task store
// operations.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys.
const (
	AttrOperation = "task.operation"
	AttrTaskID    = "task.id"
	AttrStatus    = "task.status"
	AttrBackend   = "task.backend"
	AttrMessage   = "task.status_message"
	AttrCount     = "task.count"
	AttrCursor    = "task.cursor"
)

// Tracer wraps OpenTelemetry tracing with task-store helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include status messages in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return NoopTracer()
	}
	return globalTracer
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
}

// NewTracer creates a tracer with the given name from the global provider.
func NewTracer(name string, debug bool) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
		debug:  debug,
	}
}

// NewTracerFromProvider creates a tracer from an explicit provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(name),
		debug:  debug,
	}
}

// SetDebug enables or disables debug mode (status messages in spans).
func (t *Tracer) SetDebug(debug bool) {
	t.debug = debug
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Store Spans ---

// StoreSpanOptions contains options for task store spans.
type StoreSpanOptions struct {
	TaskID        string
	Status        string
	StatusMessage string // Only included if debug=true
	Count         int    // Tasks returned by list operations
	Cursor        string
}

// StartStoreSpan starts a span for a task store operation.
func (t *Tracer) StartStoreSpan(ctx context.Context, backend, operation string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "tasks."+operation, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String(AttrOperation, operation),
		attribute.String(AttrBackend, backend),
	)
	return ctx, span
}

// EndStoreSpan ends a store span with attributes.
func (t *Tracer) EndStoreSpan(span trace.Span, opts StoreSpanOptions, err error) {
	var attrs []attribute.KeyValue
	if opts.TaskID != "" {
		attrs = append(attrs, attribute.String(AttrTaskID, opts.TaskID))
	}
	if opts.Status != "" {
		attrs = append(attrs, attribute.String(AttrStatus, opts.Status))
	}
	if opts.Count > 0 {
		attrs = append(attrs, attribute.Int(AttrCount, opts.Count))
	}
	if opts.Cursor != "" {
		attrs = append(attrs, attribute.String(AttrCursor, opts.Cursor))
	}
	if t.debug && opts.StatusMessage != "" {
		attrs = append(attrs, attribute.String(AttrMessage, truncate(opts.StatusMessage, 1000)))
	}

	span.SetAttributes(attrs...)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// --- Context Propagation ---

// InjectContext injects trace context into a carrier for cross-process propagation.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractContext extracts trace context from a carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// MapCarrier is a simple map-based TextMapCarrier for context propagation.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string {
	return c[key]
}

func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// --- Helpers ---

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
