// Package helm installs the addon charts (CNI, storage, monitoring)
// against a freshly bootstrapped cluster using in-memory kubeconfig.
package helm

import (
	"context"
	"fmt"
	"os"
	"time"

	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/getter"
	"helm.sh/helm/v3/pkg/repo"
)

// ChartSpec identifies one chart release to install.
type ChartSpec struct {
	RepoURL     string
	ChartName   string
	ReleaseName string
	Namespace   string
	Version     string
	// Values are flat dotted-path keys, expanded before install.
	Values map[string]string
	Wait   bool
}

// Client installs charts on one cluster.
type Client struct {
	kubeconfig []byte
	timeout    time.Duration
}

// NewClient creates a Helm client from admin kubeconfig bytes.
func NewClient(kubeconfig []byte) *Client {
	return &Client{kubeconfig: kubeconfig, timeout: 10 * time.Minute}
}

// InstallChart installs the release, or upgrades it when it already
// exists, making the addon steps safe to re-run.
func (c *Client) InstallChart(ctx context.Context, spec ChartSpec) error {
	actionConfig := new(action.Configuration)
	restGetter := NewInMemoryRESTClientGetter(c.kubeconfig, spec.Namespace)

	// Helm's debug logging is noise during setup, discard it.
	if err := actionConfig.Init(restGetter, spec.Namespace, "secret", func(string, ...interface{}) {}); err != nil {
		return fmt.Errorf("failed to initialize helm action config: %w", err)
	}

	values := ExpandValues(spec.Values)

	histClient := action.NewHistory(actionConfig)
	histClient.Max = 1
	if _, err := histClient.Run(spec.ReleaseName); err != nil {
		return c.install(ctx, actionConfig, spec, values)
	}
	return c.upgrade(ctx, actionConfig, spec, values)
}

func (c *Client) install(ctx context.Context, cfg *action.Configuration, spec ChartSpec, values map[string]interface{}) error {
	installClient := action.NewInstall(cfg)
	installClient.ReleaseName = spec.ReleaseName
	installClient.Namespace = spec.Namespace
	installClient.CreateNamespace = true
	installClient.Version = spec.Version
	installClient.Wait = spec.Wait
	installClient.Timeout = c.timeout

	chrt, err := c.loadChart(spec)
	if err != nil {
		return err
	}
	if _, err := installClient.RunWithContext(ctx, chrt, values); err != nil {
		return fmt.Errorf("failed to install release %s: %w", spec.ReleaseName, err)
	}
	return nil
}

func (c *Client) upgrade(ctx context.Context, cfg *action.Configuration, spec ChartSpec, values map[string]interface{}) error {
	upgradeClient := action.NewUpgrade(cfg)
	upgradeClient.Namespace = spec.Namespace
	upgradeClient.Version = spec.Version
	upgradeClient.Wait = spec.Wait
	upgradeClient.Timeout = c.timeout
	upgradeClient.ReuseValues = false

	chrt, err := c.loadChart(spec)
	if err != nil {
		return err
	}
	if _, err := upgradeClient.RunWithContext(ctx, spec.ReleaseName, chrt, values); err != nil {
		return fmt.Errorf("failed to upgrade release %s: %w", spec.ReleaseName, err)
	}
	return nil
}

func (c *Client) loadChart(spec ChartSpec) (*chart.Chart, error) {
	settings := cli.New()

	chartPath, err := repo.FindChartInRepoURL(
		spec.RepoURL,
		spec.ChartName,
		spec.Version,
		"", "", "",
		getter.All(settings),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find chart %s in repo %s: %w", spec.ChartName, spec.RepoURL, err)
	}

	defer func() { _ = os.Remove(chartPath) }()

	chrt, err := loader.Load(chartPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart %s: %w", spec.ChartName, err)
	}
	return chrt, nil
}
