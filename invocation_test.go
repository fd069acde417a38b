package funcdeck

import (
	"encoding/json"
	"testing"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"queued", StatusQueued},
		{"QUEUE", StatusQueued},
		{"in-queue", StatusQueued},
		{"processing", StatusProcessing},
		{"Running", StatusProcessing},
		{"RUN", StatusProcessing},
		{"success", StatusSuccess},
		{"Completed", StatusSuccess},
		{"done", StatusSuccess},
		{"failed", StatusFail},
		{"ERROR", StatusFail},
		{"internal error", StatusFail},

		// Queue wins over anything later in the rule order.
		{"queued-for-processing", StatusQueued},

		// Unknown and garbage statuses are still-in-flight, never dropped.
		{"", StatusProcessing},
		{"pending", StatusProcessing},
		{"???", StatusProcessing},
		{"\x00\xffgarbage", StatusProcessing},
	}

	for _, tt := range tests {
		if got := NormalizeStatus(tt.raw); got != tt.want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestReconcileStatus(t *testing.T) {
	result := json.RawMessage(`{"ok":true}`)

	tests := []struct {
		name       string
		normalized Status
		result     json.RawMessage
		errMsg     string
		want       Status
	}{
		{"processing stays processing", StatusProcessing, nil, "", StatusProcessing},
		{"processing with result promotes", StatusProcessing, result, "", StatusSuccess},
		{"processing with error demotes", StatusProcessing, nil, "boom", StatusFail},
		{"error wins over result", StatusProcessing, result, "boom", StatusFail},
		{"queued untouched by result", StatusQueued, result, "", StatusQueued},
		{"success untouched by error", StatusSuccess, nil, "boom", StatusSuccess},
		{"null result is empty", StatusProcessing, json.RawMessage("null"), "", StatusProcessing},
		{"whitespace error is empty", StatusProcessing, nil, "   ", StatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReconcileStatus(tt.normalized, tt.result, tt.errMsg); got != tt.want {
				t.Errorf("ReconcileStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusIdle, StatusQueued, StatusProcessing} {
		if s.Terminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
	for _, s := range []Status{StatusSuccess, StatusFail} {
		if !s.Terminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
}

func TestParseRuntimeTag(t *testing.T) {
	if tag, err := ParseRuntimeTag("  Python "); err != nil || tag != RuntimePython {
		t.Fatalf("ParseRuntimeTag(python) = %q, %v", tag, err)
	}
	if _, err := ParseRuntimeTag("cobol"); err == nil {
		t.Fatal("expected error for unknown runtime")
	}
}

func TestRuntimeTemplatesNonEmpty(t *testing.T) {
	for _, tag := range []RuntimeTag{RuntimeGo, RuntimeNode, RuntimePython, RuntimeShell} {
		if tag.Template() == "" {
			t.Errorf("runtime %q has no starter template", tag)
		}
	}
}

func TestFunctionIDSpaces(t *testing.T) {
	if !FunctionID(-1).IsDraft() || FunctionID(-1).IsServer() {
		t.Error("negative ids are drafts")
	}
	if FunctionID(1).IsDraft() || !FunctionID(1).IsServer() {
		t.Error("positive ids are server ids")
	}
	if FunctionID(0).IsDraft() || FunctionID(0).IsServer() {
		t.Error("zero is neither draft nor server")
	}
}
