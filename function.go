// Package funcdeck implements the client-side core of the funcdeck console:
// the function workspace, the canonical invocation status model, and the
// asynchronous invocation tracker that drives a run from submission to a
// terminal state.
//
// This package contains:
//   - Data model: FunctionID, FunctionDefinition, RuntimeTag, Invocation, Status
//   - Tracker: the per-invocation polling state machine
//   - Workspace: the function arena, selection, and draft reconciliation
//   - Events: the observable event stream consumers subscribe to
package funcdeck

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FunctionID identifies a function definition. Server-assigned ids are
// always positive; local draft ids are negative and unique only within
// the current session. Zero means "no function".
type FunctionID int64

// IsDraft reports whether the id belongs to a local, not-yet-persisted draft.
func (id FunctionID) IsDraft() bool {
	return id < 0
}

// IsServer reports whether the id was assigned by the function registry.
func (id FunctionID) IsServer() bool {
	return id > 0
}

// String returns the decimal form of the id.
func (id FunctionID) String() string {
	return fmt.Sprintf("%d", int64(id))
}

// RuntimeTag identifies the execution runtime a function targets.
type RuntimeTag string

const (
	RuntimeGo     RuntimeTag = "go"
	RuntimeNode   RuntimeTag = "node"
	RuntimePython RuntimeTag = "python"
	RuntimeShell  RuntimeTag = "shell"
)

// String returns the string representation of the RuntimeTag.
func (r RuntimeTag) String() string {
	return string(r)
}

// Valid reports whether the tag is one of the known runtimes.
func (r RuntimeTag) Valid() bool {
	switch r {
	case RuntimeGo, RuntimeNode, RuntimePython, RuntimeShell:
		return true
	}
	return false
}

// ParseRuntimeTag parses a runtime name, case-insensitively.
func ParseRuntimeTag(s string) (RuntimeTag, error) {
	tag := RuntimeTag(strings.ToLower(strings.TrimSpace(s)))
	if !tag.Valid() {
		return "", fmt.Errorf("unknown runtime %q (expected go, node, python, or shell)", s)
	}
	return tag, nil
}

// Template returns the starter source a fresh draft of this runtime begins
// with. Re-languaging a draft resets its source to the new runtime's template.
func (r RuntimeTag) Template() string {
	switch r {
	case RuntimeGo:
		return "package main\n\n// Handle receives the invocation event and returns the result.\nfunc Handle(event map[string]any) (any, error) {\n\treturn map[string]any{\"ok\": true}, nil\n}\n"
	case RuntimeNode:
		return "exports.handler = async (event) => {\n  return { ok: true };\n};\n"
	case RuntimePython:
		return "def handler(event):\n    return {\"ok\": True}\n"
	case RuntimeShell:
		return "#!/bin/sh\n# event JSON arrives on stdin; write the result JSON to stdout\necho '{\"ok\": true}'\n"
	default:
		return ""
	}
}

// FunctionDefinition is one authored function, either persisted in the
// registry (server id) or a local draft (negative id).
type FunctionDefinition struct {
	ID          FunctionID      `json:"id"`
	Name        string          `json:"name"`
	Runtime     RuntimeTag      `json:"runtime"`
	SourceCode  string          `json:"source_code,omitempty"`
	Description string          `json:"description,omitempty"`
	SampleEvent json.RawMessage `json:"sample_event,omitempty"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
}

// IsDraft reports whether the definition is a local draft.
func (f FunctionDefinition) IsDraft() bool {
	return f.ID.IsDraft()
}
