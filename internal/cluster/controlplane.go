package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/kubeforge/kubeforge/internal/orchestration"
)

const kubeadmConfigPath = "/etc/kubeforge/kubeadm-init.yaml"

// initControlPlane runs kubeadm init on the first control plane node,
// downloads the admin kubeconfig and mints the join commands the other
// nodes use. All material ends up in the login file so an interrupted
// run resumes without re-initializing.
func (s *SetupContext) initControlPlane(first *orchestration.Node) orchestration.GlobalAction {
	return func(ctx context.Context) error {
		// Resuming with join material already minted means init ran to
		// completion on a previous invocation.
		if s.Login.HasJoinMaterial() {
			return nil
		}

		comm := s.Connect(first)
		first.SetStatus("initializing control plane")

		endpoint := s.controlPlaneEndpoint(first)
		initConfig := s.renderKubeadmConfig(first, endpoint)
		if err := comm.UploadText(ctx, kubeadmConfigPath, initConfig, 0o600, ""); err != nil {
			return fmt.Errorf("uploading kubeadm config: %w", err)
		}

		initCmd := fmt.Sprintf("kubeadm init --config %s --upload-certs", kubeadmConfigPath)
		result, err := comm.RunCommand(ctx, s.maybeSudo(initCmd))
		if err != nil {
			return fmt.Errorf("running kubeadm init: %w", err)
		}
		if !result.Success() {
			return fmt.Errorf("kubeadm init exited %d: %s", result.ExitCode, tail(result.Output, 20))
		}

		certificateKey, err := parseCertificateKey(result.Output)
		if err != nil {
			return err
		}

		kubeconfig, err := comm.DownloadText(ctx, "/etc/kubernetes/admin.conf")
		if err != nil {
			return fmt.Errorf("downloading admin kubeconfig: %w", err)
		}

		joinResult, err := comm.RunCommand(ctx, s.maybeSudo("kubeadm token create --print-join-command"))
		if err != nil {
			return fmt.Errorf("creating join token: %w", err)
		}
		if !joinResult.Success() {
			return fmt.Errorf("token create exited %d: %s", joinResult.ExitCode, strings.TrimSpace(joinResult.Output))
		}
		workerJoin := strings.TrimSpace(joinResult.Output)

		s.Login.Kubeconfig = kubeconfig
		s.Login.JoinEndpoint = endpoint
		s.Login.WorkerJoinCommand = workerJoin
		s.Login.ControlPlaneJoinCommand = fmt.Sprintf("%s --control-plane --certificate-key %s", workerJoin, certificateKey)
		s.Login.CertificateKey = certificateKey
		s.Login.CACertHash = parseCACertHash(workerJoin)
		if err := s.Login.Save(); err != nil {
			return err
		}

		first.SetStatus("control plane initialized")
		return nil
	}
}

// controlPlaneEndpoint resolves the stable join address. Cloud
// providers assign node addresses at provisioning time, so with no
// configured endpoint the runtime handle of the first control plane is
// the source, not the (possibly empty) config entry.
func (s *SetupContext) controlPlaneEndpoint(first *orchestration.Node) string {
	if endpoint := s.Config.Kubernetes.ControlPlaneEndpoint; endpoint != "" {
		return endpoint
	}
	return first.Address
}

func (s *SetupContext) renderKubeadmConfig(first *orchestration.Node, endpoint string) string {
	var b strings.Builder
	k := s.Config.Kubernetes
	fmt.Fprintf(&b, "apiVersion: kubeadm.k8s.io/v1beta4\n")
	fmt.Fprintf(&b, "kind: InitConfiguration\n")
	fmt.Fprintf(&b, "localAPIEndpoint:\n")
	fmt.Fprintf(&b, "  advertiseAddress: %s\n", first.Address)
	fmt.Fprintf(&b, "---\n")
	fmt.Fprintf(&b, "apiVersion: kubeadm.k8s.io/v1beta4\n")
	fmt.Fprintf(&b, "kind: ClusterConfiguration\n")
	fmt.Fprintf(&b, "clusterName: %s\n", s.Config.ClusterName)
	fmt.Fprintf(&b, "kubernetesVersion: v%s\n", k.Version)
	fmt.Fprintf(&b, "controlPlaneEndpoint: %s\n", endpoint)
	fmt.Fprintf(&b, "networking:\n")
	fmt.Fprintf(&b, "  podSubnet: %s\n", k.PodCIDR)
	fmt.Fprintf(&b, "  serviceSubnet: %s\n", k.ServiceCIDR)
	return b.String()
}

func firstControlPlane(nodes []*orchestration.Node) *orchestration.Node {
	for _, n := range nodes {
		if n.IsControlPlane() {
			return n
		}
	}
	return nil
}

// parseCertificateKey pulls the uploaded-certs key out of the kubeadm
// init output. kubeadm prints it on the line after "--certificate-key".
func parseCertificateKey(output string) (string, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if idx := strings.Index(line, "--certificate-key "); idx >= 0 {
			key := strings.Fields(line[idx+len("--certificate-key "):])
			if len(key) > 0 {
				return key[0], nil
			}
		}
	}
	return "", fmt.Errorf("certificate key not found in kubeadm init output")
}

func parseCACertHash(joinCommand string) string {
	fields := strings.Fields(joinCommand)
	for i, f := range fields {
		if f == "--discovery-token-ca-cert-hash" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

// tail keeps the last n lines of command output for error messages.
func tail(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
