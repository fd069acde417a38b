// Package otel provides OpenTelemetry integration for funcdeck tracker events.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/funcdeck/funcdeck"
)

// TracingHandler translates tracker events into OpenTelemetry spans.
// Each tracked run becomes one span, opened on submission and ended when the
// run finishes or is reset.
type TracingHandler struct {
	tracer trace.Tracer

	mu       sync.RWMutex
	runSpans map[string]trace.Span
}

// NewTracingHandler creates a TracingHandler that uses the given tracer to
// create spans from tracker events.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:   tracer,
		runSpans: make(map[string]trace.Span),
	}
}

// Handle processes a tracker event and creates or ends spans accordingly.
// It satisfies funcdeck.EventHandler.
func (h *TracingHandler) Handle(e funcdeck.Event) {
	switch e.Kind {
	case funcdeck.EventRunQueued:
		h.handleRunQueued(e)
	case funcdeck.EventRunAccepted, funcdeck.EventRunStatus, funcdeck.EventRunLog:
		h.handleRunProgress(e)
	case funcdeck.EventRunFinished:
		h.handleRunFinished(e)
	case funcdeck.EventRunReset:
		h.handleRunReset(e)
	}
}

func (h *TracingHandler) handleRunQueued(e funcdeck.Event) {
	_, span := h.tracer.Start(context.Background(), "run:"+e.RunID,
		trace.WithAttributes(
			attribute.String("funcdeck.run_id", e.RunID),
			attribute.Int64("funcdeck.function_id", int64(e.FunctionID)),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.runSpans[e.RunID] = span
	h.mu.Unlock()
}

func (h *TracingHandler) handleRunProgress(e funcdeck.Event) {
	h.mu.RLock()
	span, ok := h.runSpans[e.RunID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("funcdeck.status", string(e.Status)),
		attribute.Int("funcdeck.attempt", e.Attempt),
	}
	if e.InvocationID != 0 {
		attrs = append(attrs, attribute.Int64("funcdeck.invocation_id", e.InvocationID))
	}
	span.AddEvent(string(e.Kind),
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(e.Time),
	)
}

func (h *TracingHandler) handleRunFinished(e funcdeck.Event) {
	span, ok := h.takeSpan(e.RunID)
	if !ok {
		return
	}

	span.SetAttributes(
		attribute.String("funcdeck.status", string(e.Status)),
		attribute.Int64("funcdeck.invocation_id", e.InvocationID),
		attribute.Int("funcdeck.attempts", e.Attempt),
	)
	if e.Status == funcdeck.StatusFail {
		span.SetStatus(codes.Error, e.Message)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(e.Time))
}

func (h *TracingHandler) handleRunReset(e funcdeck.Event) {
	span, ok := h.takeSpan(e.RunID)
	if !ok {
		return
	}

	span.SetAttributes(attribute.Bool("funcdeck.cancelled", true))
	span.End(trace.WithTimestamp(e.Time))
}

func (h *TracingHandler) takeSpan(runID string) (trace.Span, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	span, ok := h.runSpans[runID]
	if ok {
		delete(h.runSpans, runID)
	}
	return span, ok
}

// ActiveRunSpanContext returns the span context for an in-flight run, or an
// invalid span context if the run has no active span.
func (h *TracingHandler) ActiveRunSpanContext(runID string) trace.SpanContext {
	h.mu.RLock()
	span, ok := h.runSpans[runID]
	h.mu.RUnlock()
	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}
