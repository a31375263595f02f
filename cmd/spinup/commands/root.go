package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spinup/spinup/pkg/providers"
	"github.com/spinup/spinup/pkg/tempfiles"
)

var (
	// Global flags
	catalogPath string
	verbose     bool

	// registry tracks secret-bearing temp files for the whole process.
	registry *tempfiles.Registry
)

// Execute runs the root command
func Execute(ctx context.Context, reg *tempfiles.Registry, version, commit, buildDate string) error {
	registry = reg
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "spinup",
		Short: "Spinup - launch AI coding agents on cloud instances",
		Long: `Spinup provisions a cloud instance, delivers your credentials to it,
waits until it is actually usable, and starts a coding agent on it with
your prompt.

Features:
  - Provider-agnostic provisioning driven by JSON status polling
  - All-or-nothing credential handling (env vars or per-provider config files)
  - Secrets injected into the remote shell profile, transfer artifacts scrubbed
  - Cloud-init and SSH readiness confirmation before the agent starts`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&catalogPath, "catalog", "c", "", "provider catalog YAML path (built-in set when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(newLaunchCommand())
	rootCmd.AddCommand(newCredentialsCommand())
	rootCmd.AddCommand(newProvidersCommand())
	rootCmd.AddCommand(newCloudInitCommand())

	return rootCmd
}

// loadCatalog honors the --catalog flag, falling back to the built-in set.
func loadCatalog() (*providers.Catalog, error) {
	if catalogPath == "" {
		return providers.DefaultCatalog(), nil
	}
	return providers.LoadCatalog(catalogPath)
}
