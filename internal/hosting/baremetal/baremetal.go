// Package baremetal is the hosting manager for machines that already
// exist: it provisions nothing and leaves all work to the generic
// bootstrap steps.
package baremetal

import (
	"context"
	"time"

	"github.com/kubeforge/kubeforge/internal/orchestration"
)

// Manager implements hosting.Manager for pre-provisioned machines.
type Manager struct{}

// New creates a bare-metal manager.
func New() *Manager {
	return &Manager{}
}

// Name implements hosting.Manager.
func (m *Manager) Name() string { return "baremetal" }

// RequiresAdminPrivileges implements hosting.Manager. Bare-metal images
// are operator-managed; assume a non-root SSH user needing sudo.
func (m *Manager) RequiresAdminPrivileges() bool { return true }

// GenerateSecurePassword implements hosting.Manager. Credentials come
// from the operator, never minted by the engine.
func (m *Manager) GenerateSecurePassword() bool { return false }

// MaxParallel implements hosting.Manager.
func (m *Manager) MaxParallel() int { return 0 }

// WaitInterval implements hosting.Manager.
func (m *Manager) WaitInterval() time.Duration { return 5 * time.Second }

// AddProvisioningSteps implements hosting.Manager. Nothing to create.
func (m *Manager) AddProvisioningSteps(*orchestration.Controller) error { return nil }

// AddPostProvisioningSteps implements hosting.Manager.
func (m *Manager) AddPostProvisioningSteps(*orchestration.Controller) error { return nil }

// DestroyResources implements hosting.Manager. The machines belong to
// the operator and stay untouched.
func (m *Manager) DestroyResources(context.Context) error { return nil }

// Close implements hosting.Manager.
func (m *Manager) Close() error { return nil }
