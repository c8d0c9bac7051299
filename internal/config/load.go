package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked for when no --config flag is given.
const DefaultFileName = "kubeforge.yaml"

// LoadFile reads, decodes and validates a cluster definition.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(data)
}

// Load decodes and validates a cluster definition from YAML bytes.
func Load(data []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &cfg,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.StateDir == "" {
		cfg.StateDir = "."
	}
	if cfg.SSH.User == "" {
		cfg.SSH.User = "root"
	}
	if cfg.Hosting.Provider == "" {
		cfg.Hosting.Provider = "baremetal"
	}
	if cfg.Kubernetes.PodCIDR == "" {
		cfg.Kubernetes.PodCIDR = "10.244.0.0/16"
	}
	if cfg.Kubernetes.ServiceCIDR == "" {
		cfg.Kubernetes.ServiceCIDR = "10.96.0.0/12"
	}
}
