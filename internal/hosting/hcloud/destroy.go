package hcloud

import (
	"context"
	"fmt"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// DestroyResources implements hosting.Manager. Everything carrying the
// cluster label is deleted: servers first, then the firewall, network
// and ssh key they reference. Missing resources are not an error so a
// partially destroyed cluster can be destroyed again.
func (m *Manager) DestroyResources(ctx context.Context) error {
	selector := fmt.Sprintf("%s=%s", labelCluster, m.clusterName)

	servers, err := m.client.Server.AllWithOpts(ctx, hcloud.ServerListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: selector},
	})
	if err != nil {
		return fmt.Errorf("failed to list servers: %w", err)
	}
	for _, server := range servers {
		result, _, err := m.client.Server.DeleteWithResult(ctx, server)
		if err != nil {
			return fmt.Errorf("failed to delete server %s: %w", server.Name, err)
		}
		if err := m.waitForActions(ctx, []*hcloud.Action{result.Action}); err != nil {
			return fmt.Errorf("failed to delete server %s: %w", server.Name, err)
		}
	}

	firewalls, err := m.client.Firewall.AllWithOpts(ctx, hcloud.FirewallListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: selector},
	})
	if err != nil {
		return fmt.Errorf("failed to list firewalls: %w", err)
	}
	for _, firewall := range firewalls {
		if _, err := m.client.Firewall.Delete(ctx, firewall); err != nil {
			return fmt.Errorf("failed to delete firewall %s: %w", firewall.Name, err)
		}
	}

	networks, err := m.client.Network.AllWithOpts(ctx, hcloud.NetworkListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: selector},
	})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	for _, network := range networks {
		if _, err := m.client.Network.Delete(ctx, network); err != nil {
			return fmt.Errorf("failed to delete network %s: %w", network.Name, err)
		}
	}

	keys, err := m.client.SSHKey.AllWithOpts(ctx, hcloud.SSHKeyListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: selector},
	})
	if err != nil {
		return fmt.Errorf("failed to list ssh keys: %w", err)
	}
	for _, key := range keys {
		if _, err := m.client.SSHKey.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete ssh key %s: %w", key.Name, err)
		}
	}

	return nil
}
