// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing and flag binding. Command execution is delegated to handler
// functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the kubeforge CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kubeforge",
		Short: "Bootstrap Kubernetes clusters over SSH using kubeadm",
	}

	cmd.AddCommand(Setup())
	cmd.AddCommand(Destroy())
	cmd.AddCommand(Version())

	return cmd
}
