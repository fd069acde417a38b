package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/funcdeck/funcdeck"
	"github.com/funcdeck/funcdeck/gateway"
)

// NewFnCmd creates the "fn" command group for registry operations.
func NewFnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fn",
		Short: "Manage functions in the registry",
	}
	cmd.AddCommand(newFnListCmd())
	cmd.AddCommand(newFnGetCmd())
	cmd.AddCommand(newFnCreateCmd())
	cmd.AddCommand(newFnDeleteCmd())
	return cmd
}

func newFnListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			registry, _, err := newClients(settings)
			if err != nil {
				return err
			}

			functions, err := registry.ListFunctions(cmd.Context())
			if err != nil {
				return gatewayError(err)
			}
			if len(functions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No functions registered.")
				return nil
			}
			renderFunctionTable(cmd.OutOrStdout(), functions)
			return nil
		},
	}
}

func newFnGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id|name>",
		Short: "Show one function including its source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			registry, _, err := newClients(settings)
			if err != nil {
				return err
			}

			fn, err := resolveFunction(cmd.Context(), registry, args[0])
			if err != nil {
				return err
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()
			if asJSON {
				raw, err := json.MarshalIndent(fn, "", "  ")
				if err != nil {
					return exitError(exitRuntime, "encoding function: %v", err)
				}
				fmt.Fprintln(out, string(raw))
				return nil
			}

			fmt.Fprintf(out, "%s (id %s, runtime %s)\n", fn.Name, fn.ID, fn.Runtime)
			if fn.Description != "" {
				fmt.Fprintln(out, fn.Description)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, fn.SourceCode)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the function as JSON")
	return cmd
}

func newFnCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a new function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			registry, _, err := newClients(settings)
			if err != nil {
				return err
			}

			runtimeFlag, _ := cmd.Flags().GetString("runtime")
			runtime, err := funcdeck.ParseRuntimeTag(runtimeFlag)
			if err != nil {
				return exitError(exitValidation, "%v", err)
			}

			source := runtime.Template()
			if sourceFile, _ := cmd.Flags().GetString("source"); sourceFile != "" {
				raw, err := os.ReadFile(sourceFile)
				if err != nil {
					return exitError(exitFileNotFound, "reading source file: %v", err)
				}
				source = string(raw)
			}

			var sample json.RawMessage
			if sampleFlag, _ := cmd.Flags().GetString("sample-event"); sampleFlag != "" {
				if !json.Valid([]byte(sampleFlag)) {
					return exitError(exitInputParse, "sample event is not valid JSON")
				}
				sample = json.RawMessage(sampleFlag)
			}
			description, _ := cmd.Flags().GetString("description")

			created, err := registry.CreateFunction(cmd.Context(), funcdeck.FunctionDefinition{
				Name:        args[0],
				Runtime:     runtime,
				SourceCode:  source,
				Description: description,
				SampleEvent: sample,
			})
			if err != nil {
				return gatewayError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created function %s (id %s)\n", created.Name, created.ID)
			return nil
		},
	}
	cmd.Flags().StringP("runtime", "r", "go", "Runtime tag: go | node | python | shell")
	cmd.Flags().StringP("source", "s", "", "Read source code from file (default: runtime starter)")
	cmd.Flags().StringP("description", "d", "", "Function description")
	cmd.Flags().String("sample-event", "", "Sample input event as inline JSON")
	return cmd
}

func newFnDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a function and its invocation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return exitError(exitValidation, "invalid function id %q", args[0])
			}

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			registry, _, err := newClients(settings)
			if err != nil {
				return err
			}

			if err := registry.DeleteFunction(cmd.Context(), funcdeck.FunctionID(id)); err != nil {
				return gatewayError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted function %d\n", id)
			return nil
		},
	}
}

// gatewayError maps transport failures to exit codes.
func gatewayError(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	if gateway.IsTimeout(err) {
		return exitError(exitTimeout, "%v", err)
	}
	return exitError(exitRuntime, "%v", err)
}
