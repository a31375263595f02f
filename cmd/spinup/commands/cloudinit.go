package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spinup/spinup/pkg/cloudinit"
)

func newCloudInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cloudinit",
		Short: "Print the cloud-init user data for instance creation",
		Long: `Print the cloud-init user data that provider scripts must pass at
instance create time. The document is fixed: it installs the agent
runtime and writes the completion marker the readiness poller waits
for. Identical on every invocation.`,
		Example: `  # Create a Hetzner server with the bootstrap payload
  hcloud server create --name my-box --image ubuntu-24.04 \
    --user-data-from-file <(spinup cloudinit)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), cloudinit.Document())
			return nil
		},
	}

	return cmd
}
