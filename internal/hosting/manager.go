// Package hosting defines the pluggable provider boundary. The engine
// knows nothing about any substrate; a Manager contributes its own
// provisioning steps to the controller and exposes a handful of
// behavior flags the generic steps consult.
package hosting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kubeforge/kubeforge/internal/orchestration"
)

// Manager is the capability set a hosting substrate provides.
type Manager interface {
	// Name identifies the provider ("baremetal", "hcloud").
	Name() string

	// RequiresAdminPrivileges reports whether remote commands must be
	// wrapped in a privilege escalation on this substrate.
	RequiresAdminPrivileges() bool

	// GenerateSecurePassword reports whether the engine should mint
	// node credentials itself rather than rely on provider images.
	GenerateSecurePassword() bool

	// MaxParallel is the provider's preferred fan-out bound, 0 for no
	// preference.
	MaxParallel() int

	// WaitInterval is the provider's preferred polling interval for
	// reachability and convergence waits.
	WaitInterval() time.Duration

	// AddProvisioningSteps appends the provider's steps (create
	// machines, networks, firewalls) before the generic node-prep
	// steps.
	AddProvisioningSteps(c *orchestration.Controller) error

	// AddPostProvisioningSteps appends environment-specific
	// finalization after the generic steps.
	AddPostProvisioningSteps(c *orchestration.Controller) error

	// DestroyResources deletes everything the provider created for the
	// cluster. A no-op on substrates that do not own the machines.
	DestroyResources(ctx context.Context) error

	// Close releases provider sessions. Registered as a controller
	// disposable so it runs on every Run exit path.
	Close() error
}

// Factory builds a manager from provider-specific configuration.
type Factory func() (Manager, error)

var (
	registryMu sync.Mutex
	factories  = make(map[string]Factory)
)

// Register makes a provider available by name. Called from provider
// package init or from explicit wiring in the CLI.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// New builds the named manager.
func New(name string) (Manager, error) {
	registryMu.Lock()
	factory, ok := factories[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown hosting provider %q (available: %v)", name, Names())
	}
	return factory()
}

// Names lists the registered providers, sorted.
func Names() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
