package config

import (
	"fmt"
	"net"
)

// Validate checks a decoded cluster definition for the mistakes that
// would otherwise surface halfway through a run.
func Validate(cfg *Config) error {
	if cfg.ClusterName == "" {
		return fmt.Errorf("cluster_name is required")
	}
	if len(cfg.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}

	seen := make(map[string]bool, len(cfg.Nodes))
	controlPlanes := 0
	for i, n := range cfg.Nodes {
		if n.Name == "" {
			return fmt.Errorf("nodes[%d]: name is required", i)
		}
		if seen[n.Name] {
			return fmt.Errorf("duplicate node name %q", n.Name)
		}
		seen[n.Name] = true

		switch n.Role {
		case RoleControlPlane:
			controlPlanes++
		case RoleWorker:
		default:
			return fmt.Errorf("node %q: role must be %q or %q, got %q",
				n.Name, RoleControlPlane, RoleWorker, n.Role)
		}

		// Cloud providers assign addresses during provisioning.
		if n.Address == "" && cfg.Hosting.Provider == "baremetal" {
			return fmt.Errorf("node %q: address is required for baremetal hosting", n.Name)
		}
	}
	if controlPlanes == 0 {
		return fmt.Errorf("at least one control-plane node is required")
	}
	if controlPlanes%2 == 0 {
		return fmt.Errorf("control-plane count must be odd for etcd quorum, got %d", controlPlanes)
	}

	for name, cidr := range map[string]string{
		"kubernetes.pod_cidr":     cfg.Kubernetes.PodCIDR,
		"kubernetes.service_cidr": cfg.Kubernetes.ServiceCIDR,
	} {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("%s: invalid CIDR %q: %w", name, cidr, err)
		}
	}
	if cfg.Hosting.NetworkCIDR != "" {
		if _, _, err := net.ParseCIDR(cfg.Hosting.NetworkCIDR); err != nil {
			return fmt.Errorf("hosting.network_cidr: invalid CIDR %q: %w", cfg.Hosting.NetworkCIDR, err)
		}
	}

	if cfg.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must not be negative")
	}
	return nil
}
