package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the "history" subcommand.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <id|name>",
		Short: "Show recent invocations of a function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				return exitError(exitValidation, "limit must be positive")
			}

			records, err := invocations.List(cmd.Context(), fn.ID, limit)
			if err != nil {
				return gatewayError(err)
			}
			if len(records) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No invocations recorded for %s.\n", fn.Name)
				return nil
			}
			renderHistoryTable(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of invocations to show")
	return cmd
}
