// Package hcloud is the Hetzner Cloud hosting manager: it creates the
// private network, firewall and servers the generic bootstrap steps
// then operate on.
package hcloud

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/kubeforge/kubeforge/internal/config"
	"github.com/kubeforge/kubeforge/internal/orchestration"
	"github.com/kubeforge/kubeforge/internal/retry"
)

const (
	labelCluster = "kubeforge/cluster"
	labelRole    = "kubeforge/role"
)

// Manager implements hosting.Manager on the Hetzner Cloud API.
type Manager struct {
	client      *hcloud.Client
	clusterName string
	cfg         config.HostingConfig

	// publicKey is resolved lazily: the key pair is generated by a
	// global step that runs before any provisioning step.
	publicKey func() []byte

	classifier retry.Classifier

	network  *hcloud.Network
	firewall *hcloud.Firewall
	sshKeyID int64
}

// New creates a manager for one cluster.
func New(token, clusterName string, cfg config.HostingConfig, publicKey func() []byte) *Manager {
	return &Manager{
		client:      hcloud.NewClient(hcloud.WithToken(token)),
		clusterName: clusterName,
		cfg:         cfg,
		publicKey:   publicKey,
		classifier:  retry.ClassifierFunc(Classify),
	}
}

// Name implements hosting.Manager.
func (m *Manager) Name() string { return "hcloud" }

// RequiresAdminPrivileges implements hosting.Manager. Servers are
// created with root access over the injected key.
func (m *Manager) RequiresAdminPrivileges() bool { return false }

// GenerateSecurePassword implements hosting.Manager. The engine mints
// credentials; Hetzner would otherwise email a root password.
func (m *Manager) GenerateSecurePassword() bool { return true }

// MaxParallel implements hosting.Manager. The API tolerates a handful
// of concurrent server creations per project before rate limiting.
func (m *Manager) MaxParallel() int { return 4 }

// WaitInterval implements hosting.Manager.
func (m *Manager) WaitInterval() time.Duration { return 10 * time.Second }

// Close implements hosting.Manager. The API client is stateless, but
// the handle is registered as a run disposable so provider resources
// acquired later have a release point.
func (m *Manager) Close() error { return nil }

func (m *Manager) labels() map[string]string {
	return map[string]string{labelCluster: m.clusterName}
}

// AddProvisioningSteps implements hosting.Manager.
func (m *Manager) AddProvisioningSteps(c *orchestration.Controller) error {
	c.AddGlobalStep("hcloud-upload-ssh-key", m.uploadSSHKey)
	c.AddGlobalStep("hcloud-ensure-network", m.ensureNetwork)
	c.AddGlobalStep("hcloud-ensure-firewall", m.ensureFirewall)
	c.AddNodeStep("hcloud-create-server", m.createServer, nil)
	return nil
}

// AddPostProvisioningSteps implements hosting.Manager.
func (m *Manager) AddPostProvisioningSteps(c *orchestration.Controller) error {
	c.AddNodeStep("hcloud-reverse-dns", m.assignReverseDNS, nil)
	return nil
}

func (m *Manager) uploadSSHKey(ctx context.Context) error {
	name := fmt.Sprintf("%s-admin", m.clusterName)

	existing, _, err := m.client.SSHKey.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to look up ssh key: %w", err)
	}
	if existing != nil {
		m.sshKeyID = existing.ID
		return nil
	}

	var key *hcloud.SSHKey
	err = retry.WithClassifier(ctx, m.classifier, func() error {
		var createErr error
		key, _, createErr = m.client.SSHKey.Create(ctx, hcloud.SSHKeyCreateOpts{
			Name:      name,
			PublicKey: string(m.publicKey()),
			Labels:    m.labels(),
		})
		return createErr
	})
	if err != nil {
		return fmt.Errorf("failed to create ssh key: %w", err)
	}
	m.sshKeyID = key.ID
	return nil
}

func (m *Manager) ensureNetwork(ctx context.Context) error {
	name := fmt.Sprintf("%s-net", m.clusterName)

	existing, _, err := m.client.Network.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to look up network: %w", err)
	}
	if existing != nil {
		m.network = existing
		return nil
	}

	cidr := m.cfg.NetworkCIDR
	if cidr == "" {
		cidr = "10.10.0.0/16"
	}
	_, ipRange, err := net.ParseCIDR(cidr)
	if err != nil {
		return retry.MarkFatal(fmt.Errorf("invalid network CIDR %q: %w", cidr, err))
	}

	err = retry.WithClassifier(ctx, m.classifier, func() error {
		var createErr error
		m.network, _, createErr = m.client.Network.Create(ctx, hcloud.NetworkCreateOpts{
			Name:    name,
			IPRange: ipRange,
			Labels:  m.labels(),
			Subnets: []hcloud.NetworkSubnet{{
				Type:        hcloud.NetworkSubnetTypeCloud,
				IPRange:     ipRange,
				NetworkZone: hcloud.NetworkZoneEUCentral,
			}},
		})
		return createErr
	})
	if err != nil {
		return fmt.Errorf("failed to create network: %w", err)
	}
	return nil
}

func (m *Manager) ensureFirewall(ctx context.Context) error {
	name := fmt.Sprintf("%s-fw", m.clusterName)

	existing, _, err := m.client.Firewall.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to look up firewall: %w", err)
	}
	if existing != nil {
		m.firewall = existing
		return nil
	}

	anywhere := []net.IPNet{
		mustCIDR("0.0.0.0/0"),
		mustCIDR("::/0"),
	}
	rules := []hcloud.FirewallRule{
		{Direction: hcloud.FirewallRuleDirectionIn, Protocol: hcloud.FirewallRuleProtocolTCP, Port: hcloud.Ptr("22"), SourceIPs: anywhere},
		{Direction: hcloud.FirewallRuleDirectionIn, Protocol: hcloud.FirewallRuleProtocolTCP, Port: hcloud.Ptr("6443"), SourceIPs: anywhere},
		{Direction: hcloud.FirewallRuleDirectionIn, Protocol: hcloud.FirewallRuleProtocolICMP, SourceIPs: anywhere},
	}

	err = retry.WithClassifier(ctx, m.classifier, func() error {
		var createErr error
		var result hcloud.FirewallCreateResult
		result, _, createErr = m.client.Firewall.Create(ctx, hcloud.FirewallCreateOpts{
			Name:   name,
			Rules:  rules,
			Labels: m.labels(),
			ApplyTo: []hcloud.FirewallResource{{
				Type:          hcloud.FirewallResourceTypeLabelSelector,
				LabelSelector: &hcloud.FirewallResourceLabelSelector{Selector: labelCluster + "=" + m.clusterName},
			}},
		})
		if createErr == nil {
			m.firewall = result.Firewall
		}
		return createErr
	})
	if err != nil {
		return fmt.Errorf("failed to create firewall: %w", err)
	}
	return nil
}

func (m *Manager) createServer(ctx context.Context, node *orchestration.Node) error {
	existing, _, err := m.client.Server.GetByName(ctx, node.Name)
	if err != nil {
		return fmt.Errorf("failed to look up server %s: %w", node.Name, err)
	}
	if existing != nil {
		node.Address = existing.PublicNet.IPv4.IP.String()
		return nil
	}

	image := m.cfg.Image
	if image == "" {
		image = "ubuntu-24.04"
	}

	labels := m.labels()
	labels[labelRole] = string(node.Role)

	opts := hcloud.ServerCreateOpts{
		Name:       node.Name,
		ServerType: &hcloud.ServerType{Name: m.cfg.ServerType},
		Image:      &hcloud.Image{Name: image},
		Location:   &hcloud.Location{Name: m.cfg.Location},
		SSHKeys:    []*hcloud.SSHKey{{ID: m.sshKeyID}},
		Labels:     labels,
	}
	if m.network != nil {
		opts.Networks = []*hcloud.Network{m.network}
	}

	var result hcloud.ServerCreateResult
	err = retry.WithClassifier(ctx, m.classifier, func() error {
		var createErr error
		result, _, createErr = m.client.Server.Create(ctx, opts)
		return createErr
	})
	if err != nil {
		return fmt.Errorf("failed to create server %s: %w", node.Name, err)
	}

	if err := m.waitForActions(ctx, append([]*hcloud.Action{result.Action}, result.NextActions...)); err != nil {
		return fmt.Errorf("server %s did not become ready: %w", node.Name, err)
	}

	node.Address = result.Server.PublicNet.IPv4.IP.String()
	node.SetStatus("server created at %s", node.Address)
	return nil
}

func (m *Manager) assignReverseDNS(ctx context.Context, node *orchestration.Node) error {
	server, _, err := m.client.Server.GetByName(ctx, node.Name)
	if err != nil {
		return fmt.Errorf("failed to look up server %s: %w", node.Name, err)
	}
	if server == nil {
		return fmt.Errorf("server %s not found", node.Name)
	}

	ptr := fmt.Sprintf("%s.%s.kubeforge.local", node.Name, m.clusterName)
	action, _, err := m.client.Server.ChangeDNSPtr(ctx, server, server.PublicNet.IPv4.IP.String(), &ptr)
	if err != nil {
		return fmt.Errorf("failed to set reverse dns for %s: %w", node.Name, err)
	}
	return m.waitForActions(ctx, []*hcloud.Action{action})
}

func (m *Manager) waitForActions(ctx context.Context, actions []*hcloud.Action) error {
	for _, a := range actions {
		if a == nil {
			continue
		}
		if err := m.client.Action.WaitFor(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func mustCIDR(s string) net.IPNet {
	_, ipNet, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return *ipNet
}
