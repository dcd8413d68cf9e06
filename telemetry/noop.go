package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// NoopLogger discards every log call.
	NoopLogger struct{}
	// NoopMetrics discards every metric recording.
	NoopMetrics struct{}
	// NoopTracer produces spans that record nothing.
	NoopTracer struct{}

	noopSpan struct{}
)

// NewNoopLogger returns the zero-cost Logger used by default and in tests.
func NewNoopLogger() Logger { return NoopLogger{} }

// NewNoopMetrics returns the zero-cost Metrics used by default and in tests.
func NewNoopMetrics() Metrics { return NoopMetrics{} }

// NewNoopTracer returns the zero-cost Tracer used by default and in tests.
func NewNoopTracer() Tracer { return NoopTracer{} }

func (NoopLogger) Debug(context.Context, string, ...any) {}
func (NoopLogger) Info(context.Context, string, ...any)  {}
func (NoopLogger) Warn(context.Context, string, ...any)  {}
func (NoopLogger) Error(context.Context, string, ...any) {}

func (NoopMetrics) IncCounter(string, float64, ...string)            {}
func (NoopMetrics) RecordTimer(string, time.Duration, ...string)     {}
func (NoopMetrics) RecordGauge(string, float64, ...string)           {}

func (NoopTracer) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, Span) {
	return ctx, noopSpan{}
}
func (NoopTracer) Span(context.Context) Span { return noopSpan{} }

func (noopSpan) End(...trace.SpanEndOption)             {}
func (noopSpan) AddEvent(string, ...any)                {}
func (noopSpan) SetStatus(codes.Code, string)           {}
func (noopSpan) RecordError(error, ...trace.EventOption) {}
