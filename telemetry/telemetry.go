// Package telemetry defines the Logger/Metrics/Tracer surface the rest of
// the module depends on, plus a Noop implementation (the default) and a
// goa.design/clue + OpenTelemetry backed implementation. Every subsystem
// that needs to observe itself — the dispatcher, the runner, the session
// stores — takes these as interfaces rather than importing otel/clue
// directly, so tests can substitute Noop without pulling in exporters.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger emits structured log lines keyed by alternating (key, value) pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics records counters, timers and gauges, each optionally tagged with
// alternating (key, value) string pairs.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer starts and resumes tracing spans.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span is the subset of an OpenTelemetry span this module needs.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// Bundle groups the three observability ports together so constructors take
// one argument instead of three; any nil field is filled with its Noop
// implementation by Bundle.Normalize.
type Bundle struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// NoopBundle returns a Bundle wired entirely to the no-op implementations.
func NoopBundle() Bundle {
	return Bundle{Logger: NewNoopLogger(), Metrics: NewNoopMetrics(), Tracer: NewNoopTracer()}
}

// Normalize returns a copy of b with every nil field replaced by its Noop
// counterpart. Constructors across the module call this so callers may pass
// a partially-populated Bundle (e.g. only a Tracer) without nil-checking
// downstream.
func (b Bundle) Normalize() Bundle {
	if b.Logger == nil {
		b.Logger = NewNoopLogger()
	}
	if b.Metrics == nil {
		b.Metrics = NewNoopMetrics()
	}
	if b.Tracer == nil {
		b.Tracer = NewNoopTracer()
	}
	return b
}
