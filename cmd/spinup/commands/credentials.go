package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/spinup/spinup/pkg/credentials"
)

func newCredentialsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage provider credentials",
		Long: `Manage provider credentials.

Credentials are resolved from environment variables first, then from a
per-provider JSON config file under the spinup config directory. Config
files are created with mode 600 and overwritten wholesale on save.`,
	}

	cmd.AddCommand(newCredentialsSaveCommand())
	cmd.AddCommand(newCredentialsCheckCommand())

	return cmd
}

func newCredentialsSaveCommand() *cobra.Command {
	var fields []string

	cmd := &cobra.Command{
		Use:   "save <provider>",
		Short: "Save credential fields to the provider's config file",
		Example: `  # Single-variable provider
  spinup credentials save hetzner --set HCLOUD_TOKEN=abc123

  # Multi-variable provider, all fields in one save
  spinup credentials save aws \
    --set AWS_ACCESS_KEY_ID=AKIA... \
    --set AWS_SECRET_ACCESS_KEY=wJal...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := args[0]
			catalog, err := loadCatalog()
			if err != nil {
				return err
			}
			desc, err := catalog.Get(provider)
			if err != nil {
				return err
			}

			values := make(map[string]string, len(fields))
			for _, entry := range fields {
				key, value, ok := strings.Cut(entry, "=")
				if !ok || key == "" || value == "" {
					return fmt.Errorf("invalid --set entry %q, want KEY=VALUE", entry)
				}
				values[key] = value
			}

			// A partial multi-variable credential is never usable, so
			// refuse to write one.
			names := credentials.ParseAuthSpec(desc.AuthSpec)
			if len(names) == 0 {
				return fmt.Errorf("%s does not use environment-variable credentials", desc.Label)
			}
			for _, name := range names {
				if values[name] == "" {
					return fmt.Errorf("missing field %s (all of %s required)", name, desc.AuthSpec)
				}
			}

			store := &credentials.Store{ConfigDir: credentials.DefaultConfigDir()}
			path := store.ConfigPath(provider)
			if err := store.Save(path, values); err != nil {
				return err
			}

			log.Info().Str("provider", provider).Str("path", path).Msg("Credential saved")
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&fields, "set", nil, "credential field KEY=VALUE (repeatable)")
	_ = cmd.MarkFlagRequired("set")

	return cmd
}

func newCredentialsCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <provider>",
		Short: "Check whether a provider credential is resolvable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog()
			if err != nil {
				return err
			}
			desc, err := catalog.Get(args[0])
			if err != nil {
				return err
			}

			cred, needsAuth := desc.Credential()
			if !needsAuth {
				fmt.Printf("%s needs no environment-variable credential\n", desc.Label)
				return nil
			}

			store := &credentials.Store{ConfigDir: credentials.DefaultConfigDir()}
			if !store.Resolve(&cred) {
				return fmt.Errorf("no credential for %s: set %s or run 'spinup credentials save %s'",
					desc.Label, desc.AuthSpec, desc.Name)
			}

			fmt.Printf("%s credential present (source: %s)\n", desc.Label, cred.Source)
			return nil
		},
	}

	return cmd
}
