package observability

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// OtelConfig holds OpenTelemetry exporter parameters.
type OtelConfig struct {
	ServiceName string
	// Writer receives the span JSON stream. Defaults to io.Discard when nil;
	// a real deployment points this at an OTLP-collector-fed pipe instead,
	// but stdouttrace keeps this dependency-light the way the rest of the
	// pack's otel wiring does for a single-process CLI tool.
	Writer io.Writer
}

// OtelTracer implements Tracer over an OpenTelemetry SDK TracerProvider.
// Each orchestration run is one root span (the "trace" in Tracer's
// vocabulary); each phase is a child span; each agent invocation is
// recorded as a grandchild span that starts and ends immediately, carrying
// token-usage and status as attributes since the SDK has no narrower
// "generation" concept to reach for.
type OtelTracer struct {
	provider *sdktrace.TracerProvider
	tracer   oteltrace.Tracer

	mu    sync.Mutex
	roots map[string]rootEntry
	spans map[string]oteltrace.Span
}

type rootEntry struct {
	ctx  context.Context
	span oteltrace.Span
}

// NewOtelTracer builds an OtelTracer backed by a stdouttrace exporter
// writing JSON spans to cfg.Writer (io.Discard if unset).
func NewOtelTracer(cfg OtelConfig) (*OtelTracer, error) {
	w := cfg.Writer
	if w == nil {
		w = io.Discard
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("observability: build stdouttrace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(2*time.Second)),
		sdktrace.WithResource(res),
	)

	return &OtelTracer{
		provider: provider,
		tracer:   provider.Tracer("autonoma/orchestrator"),
		roots:    make(map[string]rootEntry),
		spans:    make(map[string]oteltrace.Span),
	}, nil
}

func (t *OtelTracer) StartTrace(taskID string, opts TraceOptions) TraceContext {
	ctx, span := t.tracer.Start(context.Background(), opts.Workflow,
		oteltrace.WithAttributes(
			attribute.String("autonoma.task_id", taskID),
			attribute.String("autonoma.repository", opts.Repository),
			attribute.String("autonoma.session_id", opts.SessionID),
		))

	t.mu.Lock()
	t.roots[taskID] = rootEntry{ctx: ctx, span: span}
	t.mu.Unlock()

	return TraceContext{
		TraceID: taskID,
		TaskID:  taskID,
		Metadata: map[string]string{
			"workflow":   opts.Workflow,
			"repository": opts.Repository,
		},
	}
}

func (t *OtelTracer) StartPhase(trace TraceContext, phase string, opts SpanOptions) SpanContext {
	t.mu.Lock()
	root, ok := t.roots[trace.TraceID]
	t.mu.Unlock()

	parentCtx := context.Background()
	if ok {
		parentCtx = root.ctx
	}

	attrs := []attribute.KeyValue{attribute.Int("autonoma.max_iterations", opts.MaxIterations)}
	if opts.Iteration > 0 {
		attrs = append(attrs, attribute.Int("autonoma.iteration", opts.Iteration))
	}
	for k, v := range opts.Metadata {
		attrs = append(attrs, attribute.String(k, v))
	}

	_, span := t.tracer.Start(parentCtx, phase, oteltrace.WithAttributes(attrs...))
	spanID := span.SpanContext().SpanID().String()

	t.mu.Lock()
	t.spans[spanID] = span
	t.mu.Unlock()

	return SpanContext{SpanID: spanID, PhaseName: phase, TraceID: trace.TraceID}
}

func (t *OtelTracer) RecordGeneration(span SpanContext, gen GenerationInput) {
	t.mu.Lock()
	parent, ok := t.spans[span.SpanID]
	t.mu.Unlock()

	parentCtx := context.Background()
	if ok {
		parentCtx = oteltrace.ContextWithSpan(parentCtx, parent)
	}

	_, child := t.tracer.Start(parentCtx, gen.Name, oteltrace.WithAttributes(
		attribute.String("autonoma.model", gen.Model),
		attribute.Int("autonoma.input_tokens", gen.InputTokens),
		attribute.Int("autonoma.output_tokens", gen.OutputTokens),
		attribute.String("autonoma.status", gen.Status),
		attribute.Int64("autonoma.duration_ms", gen.DurationMs),
	))
	child.End()
}

func (t *OtelTracer) RecordSkipped(span SpanContext, component string, reason string) {
	t.mu.Lock()
	parent, ok := t.spans[span.SpanID]
	t.mu.Unlock()
	if !ok {
		return
	}
	parent.AddEvent(component+" skipped", oteltrace.WithAttributes(
		attribute.String("autonoma.skip_reason", reason),
	))
}

func (t *OtelTracer) EndPhase(span SpanContext, status string, durationMs int64) {
	t.mu.Lock()
	s, ok := t.spans[span.SpanID]
	delete(t.spans, span.SpanID)
	t.mu.Unlock()
	if !ok {
		return
	}
	s.SetAttributes(
		attribute.String("autonoma.status", status),
		attribute.Int64("autonoma.duration_ms", durationMs),
	)
	s.End()
}

func (t *OtelTracer) CompleteTrace(trace TraceContext, opts CompleteOptions) {
	t.mu.Lock()
	root, ok := t.roots[trace.TraceID]
	delete(t.roots, trace.TraceID)
	t.mu.Unlock()
	if !ok {
		return
	}
	root.span.SetAttributes(
		attribute.String("autonoma.status", opts.Status),
		attribute.Int("autonoma.total_input_tokens", opts.TotalInputTokens),
		attribute.Int("autonoma.total_output_tokens", opts.TotalOutputTokens),
	)
	root.span.End()
}

func (t *OtelTracer) Flush(ctx context.Context) error {
	if err := t.provider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("observability: flush: %w", err)
	}
	return nil
}

func (t *OtelTracer) Stop(ctx context.Context) error {
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("observability: shutdown: %w", err)
	}
	return nil
}

// fallbackLogger is used only if a caller constructs an OtelTracer outside
// of New and wants a diagnostic sink for otel's own internal error logging.
var fallbackLogger = log.New(io.Discard, "", 0)

func init() {
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		fallbackLogger.Printf("otel: %v", err)
	}))
}
