// Package client provides typed funcdeck backend clients: the function
// registry and the invocation service, both thin wrappers over the gateway.
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/funcdeck/funcdeck"
	"github.com/funcdeck/funcdeck/gateway"
)

// FunctionSummary is one entry of the registry's list response.
type FunctionSummary struct {
	ID          funcdeck.FunctionID `json:"id"`
	Name        string              `json:"name"`
	Runtime     funcdeck.RuntimeTag `json:"runtime"`
	Description string              `json:"description,omitempty"`
	CreatedAt   *time.Time          `json:"created_at,omitempty"`
}

// Registry is the function registry client.
type Registry struct {
	gw *gateway.Gateway
}

// NewRegistry creates a registry client over the given gateway.
func NewRegistry(gw *gateway.Gateway) *Registry {
	return &Registry{gw: gw}
}

// ListFunctions fetches all function definitions, without source code.
func (r *Registry) ListFunctions(ctx context.Context) ([]FunctionSummary, error) {
	resp, err := r.gw.Call(ctx, http.MethodGet, "/api/functions", nil)
	if err != nil {
		return nil, fmt.Errorf("listing functions: %w", err)
	}
	var out []FunctionSummary
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetFunction fetches one function including its source code.
func (r *Registry) GetFunction(ctx context.Context, id funcdeck.FunctionID) (funcdeck.FunctionDefinition, error) {
	resp, err := r.gw.Call(ctx, http.MethodGet, fmt.Sprintf("/api/functions/%d", id), nil)
	if err != nil {
		return funcdeck.FunctionDefinition{}, fmt.Errorf("fetching function %s: %w", id, err)
	}
	var out funcdeck.FunctionDefinition
	if err := resp.Decode(&out); err != nil {
		return funcdeck.FunctionDefinition{}, err
	}
	return out, nil
}

// CreateFunction persists a function definition. The returned entry carries
// the server-assigned id. The local id of a draft is not sent; id spaces
// never mix on the wire.
func (r *Registry) CreateFunction(ctx context.Context, fn funcdeck.FunctionDefinition) (funcdeck.FunctionDefinition, error) {
	body := map[string]any{
		"name":    fn.Name,
		"runtime": fn.Runtime,
	}
	if fn.SourceCode != "" {
		body["source_code"] = fn.SourceCode
	}
	if fn.Description != "" {
		body["description"] = fn.Description
	}
	if len(fn.SampleEvent) > 0 {
		body["sample_event"] = fn.SampleEvent
	}

	resp, err := r.gw.Call(ctx, http.MethodPost, "/api/functions", body)
	if err != nil {
		return funcdeck.FunctionDefinition{}, fmt.Errorf("creating function %q: %w", fn.Name, err)
	}
	var out funcdeck.FunctionDefinition
	if err := resp.Decode(&out); err != nil {
		return funcdeck.FunctionDefinition{}, err
	}
	return out, nil
}

// DeleteFunction removes a function from the registry.
func (r *Registry) DeleteFunction(ctx context.Context, id funcdeck.FunctionID) error {
	if _, err := r.gw.Call(ctx, http.MethodDelete, fmt.Sprintf("/api/functions/%d", id), nil); err != nil {
		return fmt.Errorf("deleting function %s: %w", id, err)
	}
	return nil
}

var _ funcdeck.RegistryService = (*Registry)(nil)
