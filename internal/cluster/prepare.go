package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/kubeforge/kubeforge/internal/orchestration"
)

const kernelModulesConf = `overlay
br_netfilter
`

const sysctlConf = `net.bridge.bridge-nf-call-iptables  = 1
net.bridge.bridge-nf-call-ip6tables = 1
net.ipv4.ip_forward                 = 1
`

// prepareOS brings one node into the state kubeadm expects: swap off,
// bridge networking modules loaded, containerd running and the
// kubeadm packages pinned to the configured minor version.
func (s *SetupContext) prepareOS(ctx context.Context, node *orchestration.Node) error {
	comm := s.Connect(node)
	version := s.Config.Kubernetes.Version

	node.SetStatus("preparing operating system")

	if err := comm.UploadText(ctx, "/etc/modules-load.d/k8s.conf", kernelModulesConf, 0o644, ""); err != nil {
		return fmt.Errorf("writing modules config: %w", err)
	}
	if err := comm.UploadText(ctx, "/etc/sysctl.d/99-kubernetes.conf", sysctlConf, 0o644, ""); err != nil {
		return fmt.Errorf("writing sysctl config: %w", err)
	}

	commands := []string{
		"swapoff -a",
		"sed -i '/ swap / s/^/#/' /etc/fstab",
		"modprobe overlay",
		"modprobe br_netfilter",
		"sysctl --system",
		"apt-get update -q",
		"DEBIAN_FRONTEND=noninteractive apt-get install -yq containerd apt-transport-https ca-certificates curl gpg",
		"mkdir -p /etc/containerd",
		"containerd config default | sed 's/SystemdCgroup = false/SystemdCgroup = true/' > /etc/containerd/config.toml",
		"systemctl restart containerd",
		"systemctl enable containerd",
		fmt.Sprintf("curl -fsSL https://pkgs.k8s.io/core:/stable:/v%s/deb/Release.key | gpg --yes --dearmor -o /etc/apt/keyrings/kubernetes-apt-keyring.gpg", minorVersion(version)),
		fmt.Sprintf("echo 'deb [signed-by=/etc/apt/keyrings/kubernetes-apt-keyring.gpg] https://pkgs.k8s.io/core:/stable:/v%s/deb/ /' > /etc/apt/sources.list.d/kubernetes.list", minorVersion(version)),
		"apt-get update -q",
		"DEBIAN_FRONTEND=noninteractive apt-get install -yq kubelet kubeadm kubectl",
		"apt-mark hold kubelet kubeadm kubectl",
		"systemctl enable kubelet",
	}

	for _, cmd := range commands {
		result, err := comm.RunCommand(ctx, s.maybeSudo(cmd))
		if err != nil {
			return fmt.Errorf("running %q: %w", cmd, err)
		}
		if !result.Success() {
			return fmt.Errorf("command %q exited %d: %s", cmd, result.ExitCode, strings.TrimSpace(result.Output))
		}
	}

	node.SetStatus("operating system prepared")
	return nil
}

// minorVersion trims "1.31.4" down to the "1.31" form the package
// repository paths use.
func minorVersion(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1]
}
