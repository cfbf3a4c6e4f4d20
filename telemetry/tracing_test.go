package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordingTracer(debug bool) (*Tracer, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return NewTracerFromProvider(tp, "test", debug), sr
}

func attrMap(kvs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

func TestStoreSpan_Success(t *testing.T) {
	tracer, sr := newRecordingTracer(false)

	_, span := tracer.StartStoreSpan(context.Background(), "memory", "update_status")
	tracer.EndStoreSpan(span, StoreSpanOptions{
		TaskID:        "task_1",
		Status:        "working",
		StatusMessage: "halfway",
	}, nil)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "tasks.update_status" {
		t.Errorf("span name = %q", s.Name())
	}
	attrs := attrMap(s.Attributes())
	if attrs[AttrOperation] != "update_status" || attrs[AttrBackend] != "memory" {
		t.Errorf("unexpected attributes: %v", attrs)
	}
	if attrs[AttrTaskID] != "task_1" || attrs[AttrStatus] != "working" {
		t.Errorf("unexpected attributes: %v", attrs)
	}
	if _, ok := attrs[AttrMessage]; ok {
		t.Error("status message should be omitted outside debug mode")
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}
}

func TestStoreSpan_DebugAndError(t *testing.T) {
	tracer, sr := newRecordingTracer(true)

	_, span := tracer.StartStoreSpan(context.Background(), "storage", "list")
	tracer.EndStoreSpan(span, StoreSpanOptions{Count: 3, Cursor: "abc", StatusMessage: "x"}, errors.New("backend down"))

	s := sr.Ended()[0]
	attrs := attrMap(s.Attributes())
	if attrs[AttrCount] != "3" || attrs[AttrCursor] != "abc" || attrs[AttrMessage] != "x" {
		t.Errorf("unexpected attributes: %v", attrs)
	}
	if s.Status().Code != codes.Error || s.Status().Description != "backend down" {
		t.Errorf("status = %+v", s.Status())
	}
	if len(s.Events()) == 0 {
		t.Error("expected the error to be recorded as an event")
	}
}

func TestGlobalTracer(t *testing.T) {
	SetGlobalTracer(nil)
	if GetTracer() == nil {
		t.Fatal("GetTracer should never return nil")
	}

	tracer, _ := newRecordingTracer(false)
	SetGlobalTracer(tracer)
	defer SetGlobalTracer(nil)
	if GetTracer() != tracer {
		t.Error("expected the configured global tracer")
	}
}

func TestMapCarrier_RoundTrip(t *testing.T) {
	tracer, _ := newRecordingTracer(false)
	ctx, span := tracer.StartSpan(context.Background(), "parent")
	defer span.End()

	prop := propagation.TraceContext{}
	carrier := MapCarrier{}
	prop.Inject(ctx, carrier)
	if carrier.Get("traceparent") == "" {
		t.Fatalf("expected traceparent header, got %v", carrier)
	}
	if len(carrier.Keys()) == 0 {
		t.Error("Keys should list injected headers")
	}

	extracted := prop.Extract(context.Background(), carrier)
	if trace.SpanContextFromContext(extracted).TraceID() != span.SpanContext().TraceID() {
		t.Error("extracted context should carry the parent trace id")
	}
}

func TestTruncate(t *testing.T) {
	if truncate("short", 10) != "short" {
		t.Error("short strings should pass through")
	}
	if got := truncate("abcdef", 3); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}
}

func TestInitProvider_Stdout(t *testing.T) {
	var buf bytes.Buffer
	p, err := InitProvider(context.Background(), ProviderConfig{
		ServiceName: "taskstate-test",
		Exporter:    "stdout",
		Writer:      &buf,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer SetGlobalTracer(nil)

	ctx, span := p.Tracer().StartStoreSpan(context.Background(), "memory", "create")
	carrier := MapCarrier{}
	InjectContext(ctx, carrier)
	remote := ExtractContext(context.Background(), carrier)
	if trace.SpanContextFromContext(remote).TraceID() != span.SpanContext().TraceID() {
		t.Error("global propagator should round-trip the trace id")
	}
	p.Tracer().EndStoreSpan(span, StoreSpanOptions{TaskID: "task_1"}, nil)

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "tasks.create") {
		t.Errorf("expected exported span in output, got: %s", buf.String())
	}
}

func TestInitProvider_Errors(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if _, err := InitProvider(context.Background(), ProviderConfig{Exporter: "otlp"}); err == nil {
		t.Error("expected error for otlp without endpoint")
	}
	if _, err := InitProvider(context.Background(), ProviderConfig{Exporter: "zipkin"}); err == nil {
		t.Error("expected error for unknown exporter")
	}
}
