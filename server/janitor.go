package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultPruneSchedule runs the janitor at the top of every hour.
	DefaultPruneSchedule = "0 * * * *"

	// DefaultRetention keeps invocation history for one week.
	DefaultRetention = 7 * 24 * time.Hour
)

var standardCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

func parseCronExpressionUTC(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("cron expression is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := standardCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// HistoryJanitorConfig configures the background invocation history pruner.
type HistoryJanitorConfig struct {
	Store     InvocationStore
	Schedule  string
	Retention time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// HistoryJanitor prunes invocation records older than the retention window
// on a UTC cron schedule.
type HistoryJanitor struct {
	store     InvocationStore
	schedule  cron.Schedule
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHistoryJanitor creates a history janitor instance.
func NewHistoryJanitor(cfg HistoryJanitorConfig) (*HistoryJanitor, error) {
	if cfg.Store == nil {
		return nil, errors.New("history janitor store is nil")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultPruneSchedule
	}
	schedule, err := parseCronExpressionUTC(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("history janitor schedule: %w", err)
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &HistoryJanitor{
		store:     cfg.Store,
		schedule:  schedule,
		retention: cfg.Retention,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}, nil
}

// Start starts background pruning. Calling Start on a running janitor is a
// no-op.
func (j *HistoryJanitor) Start() error {
	if j == nil {
		return errors.New("history janitor is nil")
	}

	j.mu.Lock()
	if j.cancel != nil {
		j.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	j.cancel = cancel
	j.done = done
	j.mu.Unlock()

	go func() {
		defer close(done)
		for {
			next := j.schedule.Next(j.now().UTC())
			timer := time.NewTimer(next.Sub(j.now()))
			select {
			case <-loopCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
				if _, err := j.RunOnce(loopCtx); err != nil {
					j.logger.Warn("history prune failed", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops background pruning and waits for the loop to exit.
func (j *HistoryJanitor) Stop(ctx context.Context) error {
	if j == nil {
		return nil
	}

	j.mu.Lock()
	cancel := j.cancel
	done := j.done
	j.cancel = nil
	j.done = nil
	j.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes a single prune pass and reports how many records were
// removed.
func (j *HistoryJanitor) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	pruned, err := j.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning invocations: %w", err)
	}
	if pruned > 0 {
		j.logger.Info("pruned invocation history", "removed", pruned, "cutoff", cutoff)
	}
	return pruned, nil
}
