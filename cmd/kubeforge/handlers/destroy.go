package handlers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/kubeforge/kubeforge/internal/login"
)

// confirmInput is where the confirmation prompt reads from.
var confirmInput io.Reader = os.Stdin

// Destroy tears the cluster down.
//
// Cloud-provisioned resources are deleted through the hosting manager;
// the bare-metal manager deletes nothing since the machines belong to
// the operator. The persisted login file is removed afterwards so a
// following setup starts from scratch.
func Destroy(ctx context.Context, configPath string, force bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if !force && !confirm(cfg.ClusterName) {
		log.Println("Aborted.")
		return nil
	}

	log.Printf("Destroying cluster: %s", cfg.ClusterName)

	// The login file may be gone already; destroy must still work.
	loginFile, loginErr := login.Load(login.Path(cfg.StateDir, cfg.ClusterName))

	publicKey := func() []byte {
		if loginErr != nil {
			return nil
		}
		return []byte(loginFile.SSHPublicKey)
	}
	manager, err := newManager(cfg, publicKey)
	if err != nil {
		return err
	}
	defer manager.Close()

	if err := manager.DestroyResources(ctx); err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}

	if loginErr == nil {
		if err := loginFile.Remove(); err != nil {
			return fmt.Errorf("removing login file: %w", err)
		}
	}

	log.Printf("Cluster %s destroyed", cfg.ClusterName)
	return nil
}

// confirm asks the operator to type the cluster name back.
func confirm(clusterName string) bool {
	fmt.Printf("This deletes all resources of cluster %q. Type the cluster name to confirm: ", clusterName)
	scanner := bufio.NewScanner(confirmInput)
	if !scanner.Scan() {
		return false
	}
	return strings.TrimSpace(scanner.Text()) == clusterName
}
