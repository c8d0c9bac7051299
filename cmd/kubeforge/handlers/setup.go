// Package handlers implements the business logic for CLI commands.
//
// Handlers are framework-agnostic and can be tested independently of
// the CLI framework; the commands package only parses flags and
// delegates here.
package handlers

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/kubeforge/kubeforge/internal/cluster"
	"github.com/kubeforge/kubeforge/internal/config"
	"github.com/kubeforge/kubeforge/internal/hosting"
	"github.com/kubeforge/kubeforge/internal/hosting/baremetal"
	"github.com/kubeforge/kubeforge/internal/hosting/hcloud"
	"github.com/kubeforge/kubeforge/internal/login"
	"github.com/kubeforge/kubeforge/internal/orchestration"
)

const kubeconfigFileName = "kubeconfig"

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfigFile loads the cluster definition.
	loadConfigFile = config.LoadFile

	// loadOrCreateLogin opens or initializes the persisted login file.
	loadOrCreateLogin = login.LoadOrCreate

	// newManager builds the hosting manager named by the configuration.
	newManager = func(cfg *config.Config, publicKey func() []byte) (hosting.Manager, error) {
		registerProviders(cfg, publicKey)
		return hosting.New(cfg.Hosting.Provider)
	}

	// newSetupContext wires the bootstrap collaborators.
	newSetupContext = cluster.NewSetupContext

	// newObserver builds the run observer.
	newObserver = func() orchestration.Observer {
		return orchestration.NewConsoleObserver()
	}

	// writeFile writes data to a file.
	writeFile = os.WriteFile
)

func registerProviders(cfg *config.Config, publicKey func() []byte) {
	hosting.Register("baremetal", func() (hosting.Manager, error) {
		return baremetal.New(), nil
	})
	hosting.Register("hcloud", func() (hosting.Manager, error) {
		token := os.Getenv("HCLOUD_TOKEN")
		if token == "" {
			return nil, fmt.Errorf("HCLOUD_TOKEN must be set for the hcloud provider")
		}
		return hcloud.New(token, cfg.ClusterName, cfg.Hosting, publicKey), nil
	})
}

// Setup bootstraps the cluster described by the configuration, or
// resumes an interrupted bootstrap.
//
// The workflow:
//  1. Loads and validates the cluster definition
//  2. Opens or creates the persisted login file under the state dir
//  3. Builds the configured hosting manager
//  4. Assembles the bootstrap pipeline and runs it to completion
//  5. Writes the admin kubeconfig next to the login file
//
// Credentials and join material are saved as soon as they exist, so a
// failed run can be re-executed and continues where it stopped. Nodes
// that faulted are reported at the end without failing the others.
func Setup(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log.Printf("Setting up cluster: %s", cfg.ClusterName)

	loginFile, err := loadOrCreateLogin(login.Path(cfg.StateDir, cfg.ClusterName), cfg.ClusterName)
	if err != nil {
		return err
	}

	manager, err := newManager(cfg, func() []byte { return []byte(loginFile.SSHPublicKey) })
	if err != nil {
		return err
	}

	s := newSetupContext(cfg, loginFile, manager, newObserver())
	nodes := s.Nodes()
	controller, err := s.BuildController(nodes)
	if err != nil {
		return err
	}

	result, err := controller.Run(ctx)
	if err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	if loginFile.Kubeconfig != "" {
		path := filepath.Join(cfg.StateDir, kubeconfigFileName)
		if err := writeFile(path, []byte(loginFile.Kubeconfig), 0o600); err != nil {
			return fmt.Errorf("writing kubeconfig: %w", err)
		}
		log.Printf("Kubeconfig written to %s", path)
	}

	if !result.Success {
		for name, fault := range result.Faults {
			log.Printf("node %s faulted at step %q: %v", name, fault.Step, fault.Err)
		}
		return fmt.Errorf("setup finished with %d faulted node(s), re-run 'kubeforge setup' to retry them", len(result.Faults))
	}

	log.Printf("Cluster %s is ready (%d nodes, %v)",
		cfg.ClusterName, len(nodes), result.Duration.Round(time.Second))
	return nil
}

// loadConfig loads and validates the cluster definition. If configPath
// is empty it looks for kubeforge.yaml in the current directory.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		configPath = config.DefaultFileName
	}
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
