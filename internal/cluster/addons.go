package cluster

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kubeforge/kubeforge/internal/config"
	"github.com/kubeforge/kubeforge/internal/helm"
)

const (
	addonTimeout = 10 * time.Minute
	addonPoll    = 5 * time.Second
)

// installCNI installs Cilium and blocks until its agent runs on every
// node. Nothing schedules before the CNI is up, so this waits harder
// than the other addons.
func (s *SetupContext) installCNI(ctx context.Context) error {
	addon := s.Config.Addons.CNI
	if err := s.installChart(ctx, helm.ChartSpec{
		RepoURL:     "https://helm.cilium.io",
		ChartName:   "cilium",
		ReleaseName: "cilium",
		Namespace:   "kube-system",
		Version:     addon.Version,
		Values:      s.ciliumValues(addon),
	}); err != nil {
		return fmt.Errorf("installing cilium: %w", err)
	}

	waiter, err := s.waiter()
	if err != nil {
		return err
	}
	if err := waiter.WaitForDaemonSet(ctx, "kube-system", "cilium", addonTimeout, addonPoll); err != nil {
		return fmt.Errorf("waiting for cilium agent: %w", err)
	}
	return waiter.WaitForReadyNodes(ctx, len(s.Config.Nodes), addonTimeout, addonPoll)
}

func (s *SetupContext) ciliumValues(addon config.AddonConfig) map[string]string {
	// The login file holds the endpoint resolved at init time, which on
	// cloud providers is only known after provisioning.
	host := s.Login.JoinEndpoint
	if host == "" {
		host = s.Config.ControlPlaneEndpoint()
	}
	port := "6443"
	if h, p, err := net.SplitHostPort(host); err == nil {
		host, port = h, p
	}
	values := map[string]string{
		"ipam.mode":            "kubernetes",
		"kubeProxyReplacement": "true",
		"k8sServiceHost":       host,
		"k8sServicePort":       port,
	}
	for k, v := range addon.Values {
		values[k] = v
	}
	return values
}

// installStorage installs Longhorn as the default storage class.
func (s *SetupContext) installStorage(ctx context.Context) error {
	addon := s.Config.Addons.Storage
	values := map[string]string{
		"persistence.defaultClass": "true",
	}
	for k, v := range addon.Values {
		values[k] = v
	}
	if err := s.installChart(ctx, helm.ChartSpec{
		RepoURL:     "https://charts.longhorn.io",
		ChartName:   "longhorn",
		ReleaseName: "longhorn",
		Namespace:   "longhorn-system",
		Version:     addon.Version,
		Values:      values,
	}); err != nil {
		return fmt.Errorf("installing longhorn: %w", err)
	}

	waiter, err := s.waiter()
	if err != nil {
		return err
	}
	if err := waiter.WaitForDeployment(ctx, "longhorn-system", "longhorn-driver-deployer", addonTimeout, addonPoll); err != nil {
		return fmt.Errorf("waiting for longhorn: %w", err)
	}
	return nil
}

// installMonitoring installs the kube-prometheus stack.
func (s *SetupContext) installMonitoring(ctx context.Context) error {
	addon := s.Config.Addons.Monitoring
	if err := s.installChart(ctx, helm.ChartSpec{
		RepoURL:     "https://prometheus-community.github.io/helm-charts",
		ChartName:   "kube-prometheus-stack",
		ReleaseName: "monitoring",
		Namespace:   "monitoring",
		Version:     addon.Version,
		Values:      addon.Values,
	}); err != nil {
		return fmt.Errorf("installing monitoring stack: %w", err)
	}

	waiter, err := s.waiter()
	if err != nil {
		return err
	}
	if err := waiter.WaitForStatefulSet(ctx, "monitoring", "prometheus-monitoring-kube-prometheus-prometheus", addonTimeout, addonPoll); err != nil {
		return fmt.Errorf("waiting for prometheus: %w", err)
	}
	return nil
}

func (s *SetupContext) installChart(ctx context.Context, spec helm.ChartSpec) error {
	if s.Login.Kubeconfig == "" {
		return fmt.Errorf("no kubeconfig recorded, control plane init has not completed")
	}
	installer := s.NewInstaller([]byte(s.Login.Kubeconfig))
	return installer.InstallChart(ctx, spec)
}

func (s *SetupContext) waiter() (ReadinessWaiter, error) {
	if s.Login.Kubeconfig == "" {
		return nil, fmt.Errorf("no kubeconfig recorded, control plane init has not completed")
	}
	return s.NewWaiter([]byte(s.Login.Kubeconfig))
}
