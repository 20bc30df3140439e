// Package observability wires OpenTelemetry tracing around jobs and their
// stages.
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	mu     sync.RWMutex
	tracer trace.Tracer
)

func setTracer(t trace.Tracer) {
	mu.Lock()
	tracer = t
	mu.Unlock()
}

// GetTracer returns the installed tracer, or the global provider's tracer
// before Initialize
func GetTracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	if tracer == nil {
		return otel.Tracer("tractfeatures")
	}
	return tracer
}

// Span wraps a trace span and batches attributes until End
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan starts a span
func NewSpan(ctx context.Context, operationName string) (context.Context, *Span) {
	ctx, span := GetTracer().Start(ctx, operationName)
	return ctx, &Span{span: span, startTime: time.Now()}
}

// SetAttribute adds an attribute to the span
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue
	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}
	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError marks the span failed
func (s *Span) RecordError(err error) {
	if err == nil {
		s.span.SetStatus(codes.Ok, "")
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// Duration returns the time since the span started
func (s *Span) Duration() time.Duration { return time.Since(s.startTime) }

// End flushes attributes and ends the span
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	s.span.End()
}

// JobTracer names spans after a job and its stages
type JobTracer struct {
	job string
}

// NewJobTracer creates a tracer for one job, e.g. "curate-dynamic"
func NewJobTracer(job string) *JobTracer {
	return &JobTracer{job: job}
}

// StartSpan starts a span named job.stage
func (jt *JobTracer) StartSpan(ctx context.Context, stage string) (context.Context, *Span) {
	ctx, span := NewSpan(ctx, jt.job+"."+stage)
	span.SetAttribute("job.name", jt.job)
	span.SetAttribute("job.stage", stage)
	return ctx, span
}

// TraceStage runs fn inside a stage span and records its outcome
func (jt *JobTracer) TraceStage(ctx context.Context, stage string, fn func(context.Context) error) error {
	ctx, span := jt.StartSpan(ctx, stage)
	defer span.End()

	err := fn(ctx)
	span.SetAttribute("stage.duration_ms", span.Duration().Milliseconds())
	span.RecordError(err)
	return err
}
