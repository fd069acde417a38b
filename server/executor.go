package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Executor produces the result of one simulated invocation. The development
// backend does not run user code; it fakes the lifecycle so the console and
// tracker can be exercised end to end.
type Executor interface {
	Execute(ctx context.Context, fn FunctionRecord, input json.RawMessage) (json.RawMessage, error)
}

// EchoExecutor returns the invocation input wrapped in an envelope after an
// optional artificial delay, so runs spend observable time in processing.
type EchoExecutor struct {
	Delay time.Duration
}

func (e EchoExecutor) Execute(ctx context.Context, fn FunctionRecord, input json.RawMessage) (json.RawMessage, error) {
	if e.Delay > 0 {
		timer := time.NewTimer(e.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if len(input) == 0 {
		input = json.RawMessage("null")
	}
	out, err := json.Marshal(map[string]any{
		"echo":     input,
		"function": fn.Name,
		"runtime":  fn.Runtime,
	})
	if err != nil {
		return nil, fmt.Errorf("echo executor: encoding result: %w", err)
	}
	return out, nil
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, fn FunctionRecord, input json.RawMessage) (json.RawMessage, error)

func (f ExecutorFunc) Execute(ctx context.Context, fn FunctionRecord, input json.RawMessage) (json.RawMessage, error) {
	return f(ctx, fn, input)
}
