package commands

import (
	"github.com/spf13/cobra"

	"github.com/kubeforge/kubeforge/cmd/kubeforge/handlers"
)

// Setup returns the command that bootstraps or resumes a cluster.
//
// Optional flags:
//
//	--config, -c: Path to the cluster definition YAML (default: kubeforge.yaml)
//
// Environment variables:
//
//	HCLOUD_TOKEN: Hetzner Cloud API token (required for the hcloud provider)
func Setup() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create or resume the cluster",
		Long: `Create your Kubernetes cluster, or resume an interrupted setup.

The command provisions machines through the configured hosting provider,
prepares each node, initializes the control plane with kubeadm, joins the
remaining nodes and installs the addon stack.

Credentials and join material are persisted next to the configuration, so
a failed or interrupted run can simply be re-executed: completed steps are
skipped and work continues where it stopped.

Examples:
  # Bootstrap using kubeforge.yaml in the current directory
  kubeforge setup

  # Bootstrap using a specific config file
  kubeforge setup -c production.yaml

  # Resume after a failure
  kubeforge setup`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Setup(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: kubeforge.yaml)")

	return cmd
}
