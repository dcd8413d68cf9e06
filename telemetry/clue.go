package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

const instrumentationName = "github.com/Manoj-tawk/tawk-agents-sdk-sub004/runner"

type (
	// ClueLogger delegates to goa.design/clue/log, reading format/debug
	// settings from the context the way clue's own middleware configures it.
	ClueLogger struct{}

	// ClueMetrics records OTEL metrics against the global MeterProvider.
	ClueMetrics struct{ meter metric.Meter }

	// ClueTracer records OTEL spans against the global TracerProvider.
	ClueTracer struct{ tracer trace.Tracer }

	clueSpan struct{ span trace.Span }
)

// NewClueLogger builds a Logger backed by goa.design/clue/log. Callers must
// configure clue's context (log.Context, log.WithFormat, ...) upstream.
func NewClueLogger() Logger { return ClueLogger{} }

// NewClueMetrics builds a Metrics recorder against the global OTEL
// MeterProvider; configure it with clue.ConfigureOpenTelemetry beforehand.
func NewClueMetrics() Metrics {
	return &ClueMetrics{meter: otel.Meter(instrumentationName)}
}

// NewClueTracer builds a Tracer against the global OTEL TracerProvider.
func NewClueTracer() Tracer {
	return &ClueTracer{tracer: otel.Tracer(instrumentationName)}
}

func (ClueLogger) Debug(ctx context.Context, msg string, kv ...any) {
	log.Debug(ctx, fielders(msg, kv)...)
}

func (ClueLogger) Info(ctx context.Context, msg string, kv ...any) {
	log.Info(ctx, fielders(msg, kv)...)
}

func (ClueLogger) Warn(ctx context.Context, msg string, kv ...any) {
	f := append([]log.Fielder{log.KV{K: "msg", V: msg}, log.KV{K: "severity", V: "warning"}}, kvToFielders(kv)...)
	log.Warn(ctx, f...)
}

func (ClueLogger) Error(ctx context.Context, msg string, kv ...any) {
	log.Error(ctx, nil, fielders(msg, kv)...)
}

func fielders(msg string, kv []any) []log.Fielder {
	return append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFielders(kv)...)
}

func kvToFielders(kv []any) []log.Fielder {
	var out []log.Fielder
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		var val any
		if i+1 < len(kv) {
			val = kv[i+1]
		}
		out = append(out, log.KV{K: key, V: val})
	}
	return out
}

func (m *ClueMetrics) IncCounter(name string, value float64, tags ...string) {
	c, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	c.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (m *ClueMetrics) RecordTimer(name string, d time.Duration, tags ...string) {
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), d.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

func (m *ClueMetrics) RecordGauge(name string, value float64, tags ...string) {
	// OTEL has no synchronous gauge instrument; a histogram approximates one.
	h, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func tagAttrs(tags []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(tags); i += 2 {
		v := ""
		if i+1 < len(tags) {
			v = tags[i+1]
		}
		attrs = append(attrs, attribute.String(tags[i], v))
	}
	return attrs
}

func (t *ClueTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name, opts...)
	return newCtx, &clueSpan{span: span}
}

func (t *ClueTracer) Span(ctx context.Context) Span {
	return &clueSpan{span: trace.SpanFromContext(ctx)}
}

func (s *clueSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s *clueSpan) AddEvent(name string, kv ...any) {
	s.span.AddEvent(name, trace.WithAttributes(kvAttrs(kv)...))
}

func (s *clueSpan) SetStatus(code codes.Code, description string) { s.span.SetStatus(code, description) }

func (s *clueSpan) RecordError(err error, opts ...trace.EventOption) { s.span.RecordError(err, opts...) }

func kvAttrs(kv []any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(kv); i += 2 {
		key, _ := kv[i].(string)
		var val any
		if i+1 < len(kv) {
			val = kv[i+1]
		}
		switch v := val.(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		default:
			attrs = append(attrs, attribute.String(key, ""))
		}
	}
	return attrs
}
