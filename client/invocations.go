package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/funcdeck/funcdeck"
	"github.com/funcdeck/funcdeck/gateway"
)

// InvocationRecord is one entry of the invocation service's history listing.
type InvocationRecord struct {
	ID           int64               `json:"id"`
	FunctionID   funcdeck.FunctionID `json:"function_id"`
	Status       string              `json:"status,omitempty"`
	DurationMs   int64               `json:"duration_ms,omitempty"`
	InvokedAt    *time.Time          `json:"invoked_at,omitempty"`
	Input        json.RawMessage     `json:"input,omitempty"`
	Output       json.RawMessage     `json:"output,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// Invocations is the invocation service client.
type Invocations struct {
	gw *gateway.Gateway
}

// NewInvocations creates an invocation service client over the given gateway.
func NewInvocations(gw *gateway.Gateway) *Invocations {
	return &Invocations{gw: gw}
}

// Invoke submits one execution request for a function.
func (c *Invocations) Invoke(ctx context.Context, functionID funcdeck.FunctionID, input json.RawMessage) (funcdeck.InvocationResult, error) {
	body := map[string]any{"input": input}
	resp, err := c.gw.Call(ctx, http.MethodPost, fmt.Sprintf("/api/functions/%d/invocations", functionID), body)
	if err != nil {
		return funcdeck.InvocationResult{}, fmt.Errorf("invoking function %s: %w", functionID, err)
	}
	var out funcdeck.InvocationResult
	if err := resp.Decode(&out); err != nil {
		return funcdeck.InvocationResult{}, err
	}
	return out, nil
}

// GetStatus fetches the current state of one invocation.
func (c *Invocations) GetStatus(ctx context.Context, functionID funcdeck.FunctionID, invocationID int64) (funcdeck.InvocationResult, error) {
	resp, err := c.gw.Call(ctx, http.MethodGet,
		fmt.Sprintf("/api/functions/%d/invocations/%d", functionID, invocationID), nil)
	if err != nil {
		return funcdeck.InvocationResult{}, fmt.Errorf("polling invocation %d: %w", invocationID, err)
	}
	var out funcdeck.InvocationResult
	if err := resp.Decode(&out); err != nil {
		return funcdeck.InvocationResult{}, err
	}
	return out, nil
}

// List fetches the most recent invocations of a function, newest first.
func (c *Invocations) List(ctx context.Context, functionID funcdeck.FunctionID, limit int) ([]InvocationRecord, error) {
	path := fmt.Sprintf("/api/functions/%d/invocations", functionID)
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	resp, err := c.gw.Call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("listing invocations of function %s: %w", functionID, err)
	}
	var out []InvocationRecord
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ funcdeck.InvocationService = (*Invocations)(nil)
