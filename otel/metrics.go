package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/funcdeck/funcdeck"
)

// MetricsHandler translates tracker events into OpenTelemetry metrics.
// It records counters for submitted and finished runs and a histogram of
// run durations.
type MetricsHandler struct {
	runsSubmitted metric.Int64Counter
	runsFinished  metric.Int64Counter
	runDuration   metric.Float64Histogram

	mu     sync.Mutex
	starts map[string]time.Time
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create instruments for recording tracker metrics.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	submitted, err := meter.Int64Counter("funcdeck.runs.submitted",
		metric.WithDescription("Number of runs submitted to the tracker"),
	)
	if err != nil {
		return nil, err
	}

	finished, err := meter.Int64Counter("funcdeck.runs.finished",
		metric.WithDescription("Number of runs that reached a terminal status"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("funcdeck.run.duration",
		metric.WithDescription("Wall-clock duration of a tracked run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		runsSubmitted: submitted,
		runsFinished:  finished,
		runDuration:   duration,
		starts:        make(map[string]time.Time),
	}, nil
}

// Handle processes a tracker event and records the appropriate metrics.
// It satisfies funcdeck.EventHandler.
func (h *MetricsHandler) Handle(e funcdeck.Event) {
	switch e.Kind {
	case funcdeck.EventRunQueued:
		h.handleRunQueued(e)
	case funcdeck.EventRunFinished:
		h.handleRunTerminal(e, string(e.Status))
	case funcdeck.EventRunReset:
		h.handleRunTerminal(e, "cancelled")
	}
}

func (h *MetricsHandler) handleRunQueued(e funcdeck.Event) {
	h.mu.Lock()
	h.starts[e.RunID] = e.Time
	h.mu.Unlock()

	h.runsSubmitted.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Int64("function_id", int64(e.FunctionID)),
	))
}

func (h *MetricsHandler) handleRunTerminal(e funcdeck.Event, outcome string) {
	h.mu.Lock()
	started, ok := h.starts[e.RunID]
	if ok {
		delete(h.starts, e.RunID)
	}
	h.mu.Unlock()

	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Int64("function_id", int64(e.FunctionID)),
	)
	h.runsFinished.Add(ctx, 1, attrs)
	if ok {
		h.runDuration.Record(ctx, e.Time.Sub(started).Seconds(), attrs)
	}
}
