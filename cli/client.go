// Package cli implements the funcdeck command line interface.
package cli

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/funcdeck/funcdeck"
	"github.com/funcdeck/funcdeck/client"
	"github.com/funcdeck/funcdeck/config"
	"github.com/funcdeck/funcdeck/gateway"
)

// loadSettings resolves the effective configuration: file settings first,
// then flag overrides.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	configPath, _ := cmd.Flags().GetString("config")
	settings, err := config.Load(configPath)
	if err != nil {
		return config.Settings{}, exitError(exitValidation, "%v", err)
	}
	if serverURL, _ := cmd.Flags().GetString("server"); serverURL != "" {
		settings.ServerURL = serverURL
	}
	return settings, nil
}

// newClients builds the gateway and both service clients from settings.
func newClients(settings config.Settings) (*client.Registry, *client.Invocations, error) {
	gw, err := gateway.New(gateway.Config{
		BaseURL: settings.ServerURL,
		Timeout: settings.RequestTimeout,
	})
	if err != nil {
		return nil, nil, exitError(exitValidation, "configuring gateway: %v", err)
	}
	return client.NewRegistry(gw), client.NewInvocations(gw), nil
}

// resolveFunction accepts a numeric id or a function name and returns the
// matching server-side definition.
func resolveFunction(ctx context.Context, registry *client.Registry, ref string) (funcdeck.FunctionDefinition, error) {
	clean := strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(clean, 10, 64); err == nil {
		fn, err := registry.GetFunction(ctx, funcdeck.FunctionID(id))
		if err != nil {
			return funcdeck.FunctionDefinition{}, exitError(exitRuntime, "%v", err)
		}
		return fn, nil
	}

	list, err := registry.ListFunctions(ctx)
	if err != nil {
		return funcdeck.FunctionDefinition{}, exitError(exitRuntime, "%v", err)
	}
	for _, summary := range list {
		if summary.Name == clean {
			fn, err := registry.GetFunction(ctx, summary.ID)
			if err != nil {
				return funcdeck.FunctionDefinition{}, exitError(exitRuntime, "%v", err)
			}
			return fn, nil
		}
	}
	return funcdeck.FunctionDefinition{}, exitError(exitValidation, "no function named %q", clean)
}
