// Package config loads and validates the cluster definition file.
package config

import (
	"time"
)

// Config is the cluster definition: the machines to bootstrap and the
// software versions to put on them.
type Config struct {
	ClusterName string `mapstructure:"cluster_name" yaml:"cluster_name"`

	// StateDir is where the login file and per-node logs live.
	// Defaults to the current directory.
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`

	SSH        SSHConfig        `mapstructure:"ssh" yaml:"ssh"`
	Hosting    HostingConfig    `mapstructure:"hosting" yaml:"hosting"`
	Kubernetes KubernetesConfig `mapstructure:"kubernetes" yaml:"kubernetes"`
	Addons     AddonsConfig     `mapstructure:"addons" yaml:"addons"`

	Nodes []NodeConfig `mapstructure:"nodes" yaml:"nodes"`

	// MaxParallel bounds concurrent per-node work. Zero means the
	// hosting manager's preference, falling back to the engine default.
	MaxParallel int `mapstructure:"max_parallel" yaml:"max_parallel"`

	// OnlineTimeoutSeconds bounds the wait for nodes to become
	// reachable after provisioning.
	OnlineTimeoutSeconds int `mapstructure:"online_timeout_seconds" yaml:"online_timeout_seconds"`
}

// SSHConfig holds the default remote-access settings for all nodes.
type SSHConfig struct {
	User           string `mapstructure:"user" yaml:"user"`
	Port           int    `mapstructure:"port" yaml:"port"`
	PrivateKeyPath string `mapstructure:"private_key_path" yaml:"private_key_path"`
}

// HostingConfig selects and configures the hosting manager.
type HostingConfig struct {
	// Provider is "baremetal" or "hcloud".
	Provider string `mapstructure:"provider" yaml:"provider"`

	// Location and ServerType apply to cloud providers only.
	Location   string `mapstructure:"location" yaml:"location"`
	ServerType string `mapstructure:"server_type" yaml:"server_type"`
	Image      string `mapstructure:"image" yaml:"image"`

	// NetworkCIDR is the private network range cloud providers create.
	NetworkCIDR string `mapstructure:"network_cidr" yaml:"network_cidr"`
}

// KubernetesConfig pins the cluster software versions and networks.
type KubernetesConfig struct {
	Version     string `mapstructure:"version" yaml:"version"`
	PodCIDR     string `mapstructure:"pod_cidr" yaml:"pod_cidr"`
	ServiceCIDR string `mapstructure:"service_cidr" yaml:"service_cidr"`

	// ControlPlaneEndpoint is the stable address joins go through.
	// Defaults to the first control plane's address.
	ControlPlaneEndpoint string `mapstructure:"control_plane_endpoint" yaml:"control_plane_endpoint"`

	JoinMaxAttempts  int `mapstructure:"join_max_attempts" yaml:"join_max_attempts"`
	JoinDelaySeconds int `mapstructure:"join_delay_seconds" yaml:"join_delay_seconds"`
}

// AddonsConfig selects the stack installed after the nodes join.
type AddonsConfig struct {
	CNI        AddonConfig `mapstructure:"cni" yaml:"cni"`
	Storage    AddonConfig `mapstructure:"storage" yaml:"storage"`
	Monitoring AddonConfig `mapstructure:"monitoring" yaml:"monitoring"`
}

// AddonConfig is one installable addon. Values use dotted-path keys
// ("operator.replicas") that the installer expands to nested structure.
type AddonConfig struct {
	Enabled bool              `mapstructure:"enabled" yaml:"enabled"`
	Version string            `mapstructure:"version" yaml:"version"`
	Values  map[string]string `mapstructure:"values" yaml:"values"`
}

// NodeConfig describes one machine.
type NodeConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Address string `mapstructure:"address" yaml:"address"`
	// Role is "control-plane" or "worker".
	Role string `mapstructure:"role" yaml:"role"`
}

// JoinAttempts returns the configured join budget or its default.
func (k KubernetesConfig) JoinAttempts() int {
	if k.JoinMaxAttempts > 0 {
		return k.JoinMaxAttempts
	}
	return 10
}

// JoinDelay returns the configured fixed join delay or its default.
func (k KubernetesConfig) JoinDelay() time.Duration {
	if k.JoinDelaySeconds > 0 {
		return time.Duration(k.JoinDelaySeconds) * time.Second
	}
	return 10 * time.Second
}

// OnlineTimeout returns the configured reachability timeout or its default.
func (c *Config) OnlineTimeout() time.Duration {
	if c.OnlineTimeoutSeconds > 0 {
		return time.Duration(c.OnlineTimeoutSeconds) * time.Second
	}
	return 10 * time.Minute
}

// ControlPlaneEndpoint returns the configured endpoint or the first
// control plane's address.
func (c *Config) ControlPlaneEndpoint() string {
	if c.Kubernetes.ControlPlaneEndpoint != "" {
		return c.Kubernetes.ControlPlaneEndpoint
	}
	for _, n := range c.Nodes {
		if n.Role == RoleControlPlane {
			return n.Address
		}
	}
	return ""
}

// Role values accepted in the definition file.
const (
	RoleControlPlane = "control-plane"
	RoleWorker       = "worker"
)
