package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProvidersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List the providers in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog()
			if err != nil {
				return err
			}
			for _, name := range catalog.Names() {
				desc, err := catalog.Get(name)
				if err != nil {
					return err
				}
				auth := desc.AuthSpec
				if auth == "" {
					auth = "none"
				}
				fmt.Printf("%-14s %-18s auth: %s\n", desc.Name, desc.Label, auth)
			}
			return nil
		},
	}

	return cmd
}
