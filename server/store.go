// Package server implements the funcdeck development backend: an HTTP API
// exposing the function registry and invocation service, a simulated
// executor, pluggable stores, and a cron-driven history janitor.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	ErrFunctionNotFound   = errors.New("function not found")
	ErrInvocationNotFound = errors.New("invocation not found")
)

// FunctionRecord is a stored function definition.
type FunctionRecord struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Runtime     string          `json:"runtime"`
	SourceCode  string          `json:"source_code,omitempty"`
	Description string          `json:"description,omitempty"`
	SampleEvent json.RawMessage `json:"sample_event,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// InvocationRecord is one stored execution attempt.
type InvocationRecord struct {
	ID           int64           `json:"id"`
	FunctionID   int64           `json:"function_id"`
	Status       string          `json:"status"`
	Input        json.RawMessage `json:"input,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	DurationMs   int64           `json:"duration_ms,omitempty"`
	InvokedAt    time.Time       `json:"invoked_at"`
	LoggedAt     *time.Time      `json:"logged_at,omitempty"`
}

// FunctionStore provides CRUD operations for function records.
// Create assigns the server id.
type FunctionStore interface {
	ListFunctions(ctx context.Context) ([]FunctionRecord, error)
	GetFunction(ctx context.Context, id int64) (FunctionRecord, bool, error)
	CreateFunction(ctx context.Context, rec FunctionRecord) (FunctionRecord, error)
	DeleteFunction(ctx context.Context, id int64) error
}

// InvocationStore persists execution attempts. Insert assigns the
// invocation id; PruneOlderThan supports the history janitor.
type InvocationStore interface {
	InsertInvocation(ctx context.Context, rec InvocationRecord) (InvocationRecord, error)
	UpdateInvocation(ctx context.Context, rec InvocationRecord) error
	GetInvocation(ctx context.Context, functionID, id int64) (InvocationRecord, bool, error)
	ListInvocations(ctx context.Context, functionID int64, limit int) ([]InvocationRecord, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store combines both store facets; the in-memory and SQLite
// implementations satisfy it.
type Store interface {
	FunctionStore
	InvocationStore
}
