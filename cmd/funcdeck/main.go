package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/funcdeck/funcdeck/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "funcdeck",
	Short: "funcdeck serverless function console",
	Long:  "funcdeck — a console for editing, invoking, and tracking serverless functions.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to funcdeck.yaml")
	rootCmd.PersistentFlags().String("server", "", "Backend base URL (overrides config)")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("funcdeck version %s\n", version))

	rootCmd.AddCommand(cli.NewFnCmd())
	rootCmd.AddCommand(cli.NewRunCmd())
	rootCmd.AddCommand(cli.NewHistoryCmd())
	rootCmd.AddCommand(cli.NewServeCmd())
	rootCmd.AddCommand(cli.NewConsoleCmd())
}
