// Package main is the entry point for the kubeforge CLI.
//
// kubeforge bootstraps multi-node Kubernetes clusters over SSH using
// kubeadm. It provisions machines through a pluggable hosting manager
// (bare metal or Hetzner Cloud), prepares the operating system, brings
// up the control plane, joins the remaining nodes and installs the
// addon stack.
//
// Commands: setup, destroy, version.
//
// For detailed usage information, run:
//
//	kubeforge --help
package main

import (
	"fmt"
	"os"

	"github.com/kubeforge/kubeforge/cmd/kubeforge/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
