package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/funcdeck/funcdeck"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <id|name>",
		Short: "Invoke a function and track it to completion",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().StringP("input", "i", "", "Input event as inline JSON")
	cmd.Flags().StringP("input-file", "f", "", "Input event from a JSON file")
	cmd.Flags().Bool("sample", false, "Use the function's stored sample event as input")
	cmd.Flags().Bool("json", false, "Print the final run state as JSON")
	cmd.Flags().Duration("timeout", 0, "Run timeout override")
	cmd.Flags().Bool("no-spinner", false, "Disable the progress spinner")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	registry, invocations, err := newClients(settings)
	if err != nil {
		return err
	}

	fn, err := resolveFunction(cmd.Context(), registry, args[0])
	if err != nil {
		return err
	}

	input, err := buildRunInput(cmd, fn)
	if err != nil {
		return err
	}

	runTimeout := settings.RunTimeout
	if flagTimeout, _ := cmd.Flags().GetDuration("timeout"); flagTimeout > 0 {
		runTimeout = flagTimeout
	}

	noSpinner, _ := cmd.Flags().GetBool("no-spinner")
	var spin *spinner.Spinner
	if !noSpinner {
		spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond,
			spinner.WithWriter(cmd.ErrOrStderr()))
		spin.Suffix = fmt.Sprintf(" running %s...", fn.Name)
		spin.Start()
		defer spin.Stop()
	}

	tracker, err := funcdeck.NewTracker(funcdeck.TrackerConfig{
		Service:      invocations,
		PollInterval: settings.PollInterval,
		RunTimeout:   runTimeout,
		MaxAttempts:  settings.MaxAttempts,
		MaxRepeats:   settings.MaxRepeats,
		PollRetries:  settings.PollRetries,
		Handler: func(e funcdeck.Event) {
			if spin != nil && e.Kind == funcdeck.EventRunStatus {
				spin.Suffix = fmt.Sprintf(" running %s (%s)...", fn.Name, e.Status)
			}
		},
	})
	if err != nil {
		return exitError(exitRuntime, "configuring tracker: %v", err)
	}

	handle, err := tracker.Submit(cmd.Context(), fn, input)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	<-handle.Done()
	if spin != nil {
		spin.Stop()
	}

	state := handle.Snapshot()
	return printRunResult(cmd, state)
}

// buildRunInput resolves the input event from flags, falling back to the
// function's sample event and then to an empty object.
func buildRunInput(cmd *cobra.Command, fn funcdeck.FunctionDefinition) (json.RawMessage, error) {
	inline, _ := cmd.Flags().GetString("input")
	inputFile, _ := cmd.Flags().GetString("input-file")
	useSample, _ := cmd.Flags().GetBool("sample")

	switch {
	case inline != "":
		if !json.Valid([]byte(inline)) {
			return nil, exitError(exitInputParse, "inline input is not valid JSON")
		}
		return json.RawMessage(inline), nil
	case inputFile != "":
		raw, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, exitError(exitFileNotFound, "reading input file: %v", err)
		}
		if !json.Valid(raw) {
			return nil, exitError(exitInputParse, "input file %s is not valid JSON", inputFile)
		}
		return json.RawMessage(raw), nil
	case useSample:
		if len(fn.SampleEvent) == 0 {
			return nil, exitError(exitValidation, "function %s has no sample event", fn.Name)
		}
		return fn.SampleEvent, nil
	default:
		return json.RawMessage(`{}`), nil
	}
}

func printRunResult(cmd *cobra.Command, state funcdeck.RunState) error {
	out := cmd.OutOrStdout()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		raw, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "encoding run state: %v", err)
		}
		fmt.Fprintln(out, string(raw))
		if state.Status != funcdeck.StatusSuccess {
			return runFailure(state)
		}
		return nil
	}

	fmt.Fprintf(out, "%s  invocation %d  %s\n",
		colorStatus(state.Status), state.InvocationID, formatDuration(state.DurationMs))
	if state.Status == funcdeck.StatusSuccess {
		printJSON(out, state.Result)
		return nil
	}
	if state.ErrorMessage != "" {
		fmt.Fprintln(out, failText(state.ErrorMessage))
	}
	return runFailure(state)
}

// runFailure maps a failed run onto an exit code; timeouts get their own.
func runFailure(state funcdeck.RunState) error {
	if strings.Contains(state.ErrorMessage, "timed out") {
		return exitError(exitTimeout, "run did not complete: %s", state.ErrorMessage)
	}
	return exitError(exitRuntime, "run failed: %s", state.ErrorMessage)
}
