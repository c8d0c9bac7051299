package commands

import (
	"github.com/spf13/cobra"

	"github.com/kubeforge/kubeforge/cmd/kubeforge/handlers"
)

// Destroy returns the command that tears the cluster down.
func Destroy() *cobra.Command {
	var configPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear the cluster down and remove its state",
		Long: `Tear the cluster down.

Cloud-provisioned resources are deleted through the hosting provider.
The persisted login file is removed afterwards, so a following setup
starts from scratch.

The command asks for confirmation unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), configPath, force)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: kubeforge.yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation prompt")

	return cmd
}
