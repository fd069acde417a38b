package funcdeck

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Status is the canonical run state of an invocation. Backends report
// free-form status strings; NormalizeStatus collapses them into this set.
type Status string

const (
	// StatusIdle means no run is in progress. It is never produced by
	// NormalizeStatus; it is the tracker's rest state.
	StatusIdle Status = "idle"

	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFail       Status = "fail"
)

// String returns the string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether the status ends a run.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFail
}

// NormalizeStatus maps an arbitrary backend status string onto the canonical
// set. Matching is by substring, case-insensitive, first match wins. Unknown
// or empty statuses normalize to StatusProcessing: a job the backend accepted
// but describes in terms we don't recognize is still in flight, never dropped.
func NormalizeStatus(raw string) Status {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "queue"):
		return StatusQueued
	case strings.Contains(s, "process"), strings.Contains(s, "run"):
		return StatusProcessing
	case strings.Contains(s, "success"), strings.Contains(s, "complete"), strings.Contains(s, "done"):
		return StatusSuccess
	case strings.Contains(s, "fail"), strings.Contains(s, "error"):
		return StatusFail
	default:
		return StatusProcessing
	}
}

// ReconcileStatus applies the result/error disambiguation rule on top of a
// normalized status: a response still reported as processing but already
// carrying a result is promoted to success, and one carrying an error
// message is demoted to fail. Some backends report a stale "processing"
// status alongside a completed payload.
func ReconcileStatus(normalized Status, result json.RawMessage, errorMessage string) Status {
	if normalized != StatusProcessing {
		return normalized
	}
	if strings.TrimSpace(errorMessage) != "" {
		return StatusFail
	}
	if nonEmptyJSON(result) {
		return StatusSuccess
	}
	return normalized
}

func nonEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Invocation is one execution attempt as observed by the client. It is
// created the instant a submit request is issued and mutated only by the
// tracker in response to submit and poll responses.
type Invocation struct {
	InvocationID int64           `json:"invocation_id,omitempty"`
	FunctionID   FunctionID      `json:"function_id"`
	Input        json.RawMessage `json:"input,omitempty"`
	Status       Status          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	DurationMs   int64           `json:"duration_ms,omitempty"`
	LoggedAt     *time.Time      `json:"logged_at,omitempty"`
}

// InvocationResult is the wire shape the invocation service returns from
// both submit and status calls.
type InvocationResult struct {
	InvocationID int64           `json:"invocation_id,omitempty"`
	Status       string          `json:"status,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	DurationMs   int64           `json:"duration_ms,omitempty"`
	LoggedAt     *time.Time      `json:"logged_at,omitempty"`
}

// InvocationService is the remote collaborator the tracker polls. It is
// satisfied by client.Invocations; tests inject fakes.
type InvocationService interface {
	Invoke(ctx context.Context, functionID FunctionID, input json.RawMessage) (InvocationResult, error)
	GetStatus(ctx context.Context, functionID FunctionID, invocationID int64) (InvocationResult, error)
}
