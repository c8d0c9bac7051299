package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
cluster_name: demo
ssh:
  user: ops
nodes:
  - name: cp-1
    address: 10.0.0.10
    role: control-plane
  - name: worker-1
    address: 10.0.0.11
    role: worker
  - name: worker-2
    address: 10.0.0.12
    role: worker
`

func TestLoad_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := Load([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.ClusterName)
	assert.Equal(t, "ops", cfg.SSH.User)
	require.Len(t, cfg.Nodes, 3)
	assert.Equal(t, "cp-1", cfg.Nodes[0].Name)

	// Defaults.
	assert.Equal(t, "baremetal", cfg.Hosting.Provider)
	assert.Equal(t, "10.244.0.0/16", cfg.Kubernetes.PodCIDR)
	assert.Equal(t, "10.96.0.0/12", cfg.Kubernetes.ServiceCIDR)
	assert.Equal(t, ".", cfg.StateDir)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	_, err := Load([]byte(validYAML + "\nunknown_key: true\n"))
	require.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		cfg, err := Load([]byte(validYAML))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing cluster name", func(c *Config) { c.ClusterName = "" }},
		{"no nodes", func(c *Config) { c.Nodes = nil }},
		{"duplicate node name", func(c *Config) { c.Nodes[1].Name = "cp-1" }},
		{"bad role", func(c *Config) { c.Nodes[1].Role = "master" }},
		{"no control plane", func(c *Config) { c.Nodes[0].Role = RoleWorker }},
		{"even control planes", func(c *Config) { c.Nodes[1].Role = RoleControlPlane }},
		{"missing baremetal address", func(c *Config) { c.Nodes[2].Address = "" }},
		{"bad pod cidr", func(c *Config) { c.Kubernetes.PodCIDR = "not-a-cidr" }},
		{"negative parallelism", func(c *Config) { c.MaxParallel = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestControlPlaneEndpoint(t *testing.T) {
	t.Parallel()
	cfg, err := Load([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.10", cfg.ControlPlaneEndpoint(), "defaults to first control plane")

	cfg.Kubernetes.ControlPlaneEndpoint = "lb.example.com:6443"
	assert.Equal(t, "lb.example.com:6443", cfg.ControlPlaneEndpoint())
}

func TestDurationsAndBudgets(t *testing.T) {
	t.Parallel()
	cfg, err := Load([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Kubernetes.JoinAttempts())
	assert.Equal(t, 10*time.Second, cfg.Kubernetes.JoinDelay())
	assert.Equal(t, 10*time.Minute, cfg.OnlineTimeout())

	cfg.Kubernetes.JoinMaxAttempts = 3
	cfg.Kubernetes.JoinDelaySeconds = 5
	cfg.OnlineTimeoutSeconds = 60
	assert.Equal(t, 3, cfg.Kubernetes.JoinAttempts())
	assert.Equal(t, 5*time.Second, cfg.Kubernetes.JoinDelay())
	assert.Equal(t, time.Minute, cfg.OnlineTimeout())
}

func TestLoad_CloudNodesMayOmitAddress(t *testing.T) {
	t.Parallel()
	yaml := `
cluster_name: cloudy
hosting:
  provider: hcloud
  location: fsn1
  server_type: cx32
nodes:
  - name: cp-1
    role: control-plane
  - name: worker-1
    role: worker
`
	cfg, err := Load([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, "hcloud", cfg.Hosting.Provider)
	assert.Empty(t, cfg.Nodes[0].Address)
}
