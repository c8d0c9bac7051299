// Package cluster assembles the bootstrap step sequence: OS prep,
// control plane init, node joins and the addon stack, all expressed as
// idempotent steps on an orchestration controller.
package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/kubeforge/kubeforge/internal/config"
	"github.com/kubeforge/kubeforge/internal/helm"
	"github.com/kubeforge/kubeforge/internal/hosting"
	"github.com/kubeforge/kubeforge/internal/k8s"
	"github.com/kubeforge/kubeforge/internal/keygen"
	"github.com/kubeforge/kubeforge/internal/login"
	"github.com/kubeforge/kubeforge/internal/orchestration"
	"github.com/kubeforge/kubeforge/internal/ssh"
)

// ChartInstaller installs one chart release. Satisfied by *helm.Client.
type ChartInstaller interface {
	InstallChart(ctx context.Context, spec helm.ChartSpec) error
}

// ReadinessWaiter blocks until cluster workloads become ready.
// Satisfied by *k8s.Client.
type ReadinessWaiter interface {
	WaitForDeployment(ctx context.Context, namespace, name string, timeout, poll time.Duration) error
	WaitForDaemonSet(ctx context.Context, namespace, name string, timeout, poll time.Duration) error
	WaitForStatefulSet(ctx context.Context, namespace, name string, timeout, poll time.Duration) error
	WaitForReadyNodes(ctx context.Context, count int, timeout, poll time.Duration) error
}

// SetupContext carries the shared collaborators every step closure
// reads. It is built once per run and passed by reference; steps never
// pull dependencies out of a dynamic bag.
type SetupContext struct {
	Config   *config.Config
	Login    *login.File
	Hosting  hosting.Manager
	Observer orchestration.Observer

	// Connect opens a communicator for one node. Swapped for a fake in
	// tests.
	Connect func(node *orchestration.Node) ssh.Communicator

	// NewInstaller and NewWaiter build the addon-phase clients from
	// the downloaded admin kubeconfig.
	NewInstaller func(kubeconfig []byte) ChartInstaller
	NewWaiter    func(kubeconfig []byte) (ReadinessWaiter, error)

	// OnlineProbe overrides the default TCP reachability probe when set.
	OnlineProbe func(ctx context.Context, node *orchestration.Node) error
}

// NewSetupContext wires the production collaborators.
func NewSetupContext(cfg *config.Config, loginFile *login.File, manager hosting.Manager, observer orchestration.Observer) *SetupContext {
	s := &SetupContext{
		Config:   cfg,
		Login:    loginFile,
		Hosting:  manager,
		Observer: observer,
	}
	s.Connect = func(node *orchestration.Node) ssh.Communicator {
		return ssh.NewClient(
			node.Address,
			node.Credentials.Port,
			node.Credentials.User,
			node.Credentials.PrivateKey,
			node.Credentials.Password,
		)
	}
	s.NewInstaller = func(kubeconfig []byte) ChartInstaller {
		return helm.NewClient(kubeconfig)
	}
	s.NewWaiter = func(kubeconfig []byte) (ReadinessWaiter, error) {
		return k8s.NewClientFromBytes(kubeconfig)
	}
	return s
}

// Nodes builds the node handles for this run from the definition and
// the recorded login credentials.
func (s *SetupContext) Nodes() []*orchestration.Node {
	creds := orchestration.Credentials{
		User:       s.Config.SSH.User,
		PrivateKey: []byte(s.Login.SSHPrivateKey),
		Password:   s.Login.NodePassword,
		Port:       s.Config.SSH.Port,
	}

	nodes := make([]*orchestration.Node, 0, len(s.Config.Nodes))
	for _, nc := range s.Config.Nodes {
		role := orchestration.RoleWorker
		if nc.Role == config.RoleControlPlane {
			role = orchestration.RoleControlPlane
		}
		nodes = append(nodes, orchestration.NewNode(nc.Name, nc.Address, role, creds))
	}
	return nodes
}

// BuildController assembles the full bootstrap pipeline on a fresh
// controller: provider provisioning first, then the generic sequence,
// then provider finalization.
func (s *SetupContext) BuildController(nodes []*orchestration.Node, opts ...orchestration.Option) (*orchestration.Controller, error) {
	first := firstControlPlane(nodes)
	if first == nil {
		return nil, fmt.Errorf("no control plane node defined")
	}

	maxParallel := s.Config.MaxParallel
	if maxParallel == 0 {
		maxParallel = s.Hosting.MaxParallel()
	}

	base := []orchestration.Option{
		orchestration.WithObserver(s.Observer),
		orchestration.WithOnlinePollInterval(s.Hosting.WaitInterval()),
	}
	if maxParallel > 0 {
		base = append(base, orchestration.WithMaxParallel(maxParallel))
	}
	if s.OnlineProbe != nil {
		base = append(base, orchestration.WithOnlineProbe(s.OnlineProbe))
	}
	c := orchestration.NewController(nodes, append(base, opts...)...)
	c.AddDisposable(s.Hosting)

	c.AddGlobalStep("prepare-credentials", s.prepareCredentials(nodes))

	if err := s.Hosting.AddProvisioningSteps(c); err != nil {
		return nil, fmt.Errorf("hosting provisioning steps: %w", err)
	}

	c.AddWaitUntilOnlineStep(s.Config.OnlineTimeout())
	c.AddNodeStep("prepare-os", s.prepareOS, nil)
	c.AddGlobalStep("init-control-plane", s.initControlPlane(first))
	c.AddNodeStep("join-control-plane", s.joinControlPlane, secondaryControlPlanes(first.Name))
	c.AddNodeStep("join-worker", s.joinWorker, orchestration.Workers)

	if s.Config.Addons.CNI.Enabled {
		c.AddGlobalStep("install-cni", s.installCNI)
	}
	if s.Config.Addons.Storage.Enabled {
		c.AddGlobalStep("install-storage", s.installStorage)
	}
	if s.Config.Addons.Monitoring.Enabled {
		c.AddGlobalStep("install-monitoring", s.installMonitoring)
	}

	if err := s.Hosting.AddPostProvisioningSteps(c); err != nil {
		return nil, fmt.Errorf("hosting post-provisioning steps: %w", err)
	}

	c.AddGlobalStep("finalize-login", s.finalizeLogin)
	return c, nil
}

// prepareCredentials mints whatever the login file does not already
// hold. Runs before any provider step so provisioning can inject the
// public key, and saves immediately so an interrupted run reuses the
// same secrets.
func (s *SetupContext) prepareCredentials(nodes []*orchestration.Node) orchestration.GlobalAction {
	return func(context.Context) error {
		changed := false

		if s.Login.SSHPrivateKey == "" {
			pair, err := keygen.GenerateRSAKeyPair(4096)
			if err != nil {
				return fmt.Errorf("generating ssh key pair: %w", err)
			}
			s.Login.SSHPrivateKey = string(pair.PrivateKey)
			s.Login.SSHPublicKey = string(pair.PublicKey)
			changed = true
		}
		if s.Login.SSHUser == "" {
			s.Login.SSHUser = s.Config.SSH.User
			changed = true
		}
		if s.Hosting.GenerateSecurePassword() && s.Login.NodePassword == "" {
			password, err := keygen.GeneratePassword(24)
			if err != nil {
				return fmt.Errorf("generating node password: %w", err)
			}
			s.Login.NodePassword = password
			changed = true
		}

		if changed {
			if err := s.Login.Save(); err != nil {
				return err
			}
			// Node handles were built before the key existed.
			for _, n := range nodes {
				n.Credentials.PrivateKey = []byte(s.Login.SSHPrivateKey)
				n.Credentials.Password = s.Login.NodePassword
			}
		}
		return nil
	}
}

// secondaryControlPlanes selects every control plane except the one
// running kubeadm init. The first name is fixed at assembly time so
// the filter holds even when a resumed run skips the init step body.
func secondaryControlPlanes(firstName string) orchestration.NodeFilter {
	return func(n *orchestration.Node) bool {
		return n.IsControlPlane() && n.Name != firstName
	}
}

func (s *SetupContext) finalizeLogin(context.Context) error {
	s.Login.SetupPending = false
	return s.Login.Save()
}

// maybeSudo wraps cmd in a privilege escalation when the substrate
// needs one and the SSH user is not root.
func (s *SetupContext) maybeSudo(cmd string) string {
	if s.Hosting.RequiresAdminPrivileges() && s.Config.SSH.User != "root" {
		return fmt.Sprintf("sudo sh -c %q", cmd)
	}
	return cmd
}
