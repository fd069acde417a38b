package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestParseCronExpressionUTC(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"hourly", "0 * * * *", false},
		{"every five minutes", "*/5 * * * *", false},
		{"daily at midnight", "0 0 * * *", false},
		{"empty", "", true},
		{"timezone prefix", "CRON_TZ=America/New_York 0 * * * *", true},
		{"tz prefix", "TZ=UTC 0 * * * *", true},
		{"six fields", "0 0 * * * *", true},
		{"garbage", "whenever", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCronExpressionUTC(tt.expr)
			if tt.wantErr && err == nil {
				t.Fatalf("parseCronExpressionUTC(%q) succeeded, want error", tt.expr)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("parseCronExpressionUTC(%q): %v", tt.expr, err)
			}
		})
	}
}

func TestNewHistoryJanitorValidation(t *testing.T) {
	if _, err := NewHistoryJanitor(HistoryJanitorConfig{}); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewHistoryJanitor(HistoryJanitorConfig{
		Store:    NewMemoryStore(),
		Schedule: "not a schedule",
	}); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestJanitorRunOncePrunesHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	fn, err := store.CreateFunction(ctx, FunctionRecord{
		Name: "aged", Runtime: "go", CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateFunction: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, age := range []time.Duration{72 * time.Hour, time.Hour} {
		if _, err := store.InsertInvocation(ctx, InvocationRecord{
			FunctionID: fn.ID,
			Status:     statusSuccess,
			Input:      json.RawMessage(`{}`),
			InvokedAt:  now.Add(-age),
		}); err != nil {
			t.Fatalf("InsertInvocation: %v", err)
		}
	}

	janitor, err := NewHistoryJanitor(HistoryJanitorConfig{
		Store:     store,
		Retention: 48 * time.Hour,
		Now:       func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewHistoryJanitor: %v", err)
	}

	pruned, err := janitor.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}

	remaining, err := store.ListInvocations(ctx, fn.ID, 10)
	if err != nil {
		t.Fatalf("ListInvocations: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("remaining = %d, want 1", len(remaining))
	}
}

func TestJanitorStartStop(t *testing.T) {
	janitor, err := NewHistoryJanitor(HistoryJanitorConfig{Store: NewMemoryStore()})
	if err != nil {
		t.Fatalf("NewHistoryJanitor: %v", err)
	}
	if err := janitor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Second Start is a no-op.
	if err := janitor.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := janitor.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stop after stop is a no-op.
	if err := janitor.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
