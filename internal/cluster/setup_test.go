package cluster

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeforge/kubeforge/internal/config"
	"github.com/kubeforge/kubeforge/internal/helm"
	"github.com/kubeforge/kubeforge/internal/login"
	"github.com/kubeforge/kubeforge/internal/orchestration"
	"github.com/kubeforge/kubeforge/internal/ssh"
)

type fakeHosting struct {
	mu sync.Mutex

	// addresses simulates a cloud provider assigning node addresses
	// during provisioning.
	addresses   map[string]string
	provisioned []string
	finalized   bool
	closed      bool
}

func (f *fakeHosting) Name() string                  { return "fake" }
func (f *fakeHosting) RequiresAdminPrivileges() bool { return false }
func (f *fakeHosting) GenerateSecurePassword() bool  { return false }
func (f *fakeHosting) MaxParallel() int              { return 0 }
func (f *fakeHosting) WaitInterval() time.Duration   { return time.Millisecond }

func (f *fakeHosting) AddProvisioningSteps(c *orchestration.Controller) error {
	c.AddNodeStep("fake-provision", func(_ context.Context, node *orchestration.Node) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if addr, ok := f.addresses[node.Name]; ok {
			node.Address = addr
		}
		f.provisioned = append(f.provisioned, node.Name)
		return nil
	}, nil)
	return nil
}

func (f *fakeHosting) AddPostProvisioningSteps(c *orchestration.Controller) error {
	c.AddGlobalStep("fake-finalize", func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.finalized = true
		return nil
	})
	return nil
}

func (f *fakeHosting) DestroyResources(context.Context) error { return nil }

func (f *fakeHosting) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeInstaller struct {
	mu     sync.Mutex
	charts []helm.ChartSpec
}

func (f *fakeInstaller) InstallChart(_ context.Context, spec helm.ChartSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charts = append(f.charts, spec)
	return nil
}

func (f *fakeInstaller) chart(release string) (helm.ChartSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.charts {
		if c.ReleaseName == release {
			return c, true
		}
	}
	return helm.ChartSpec{}, false
}

func (f *fakeInstaller) releases() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.charts))
	for _, c := range f.charts {
		names = append(names, c.ReleaseName)
	}
	return names
}

type fakeWaiter struct{}

func (fakeWaiter) WaitForDeployment(context.Context, string, string, time.Duration, time.Duration) error {
	return nil
}
func (fakeWaiter) WaitForDaemonSet(context.Context, string, string, time.Duration, time.Duration) error {
	return nil
}
func (fakeWaiter) WaitForStatefulSet(context.Context, string, string, time.Duration, time.Duration) error {
	return nil
}
func (fakeWaiter) WaitForReadyNodes(context.Context, int, time.Duration, time.Duration) error {
	return nil
}

const testInitOutput = `[init] cluster initialized
You can now join control-plane nodes by running:

  kubeadm join 10.0.0.1:6443 --token abc.def --discovery-token-ca-cert-hash sha256:1234 --control-plane --certificate-key deadbeefcafe
`

func testConfig() *config.Config {
	return &config.Config{
		ClusterName: "test",
		SSH:         config.SSHConfig{User: "root", Port: 22},
		Hosting:     config.HostingConfig{Provider: "baremetal"},
		Kubernetes: config.KubernetesConfig{
			Version:          "1.31.0",
			PodCIDR:          "10.244.0.0/16",
			ServiceCIDR:      "10.96.0.0/12",
			JoinMaxAttempts:  3,
			JoinDelaySeconds: 1,
		},
		Addons: config.AddonsConfig{
			CNI:     config.AddonConfig{Enabled: true, Version: "1.16.0"},
			Storage: config.AddonConfig{Enabled: true, Version: "1.7.0"},
		},
		Nodes: []config.NodeConfig{
			{Name: "cp-1", Address: "10.0.0.1", Role: config.RoleControlPlane},
			{Name: "cp-2", Address: "10.0.0.2", Role: config.RoleControlPlane},
			{Name: "cp-3", Address: "10.0.0.3", Role: config.RoleControlPlane},
			{Name: "worker-1", Address: "10.0.0.4", Role: config.RoleWorker},
		},
	}
}

// testSetup wires a SetupContext against fakes: one scripted
// communicator per node, a fake installer and waiter, and a fake
// hosting manager.
func testSetup(t *testing.T) (*SetupContext, map[string]*fakeCommunicator, *fakeHosting, *fakeInstaller) {
	t.Helper()

	cfg := testConfig()
	loginFile, err := login.LoadOrCreate(filepath.Join(t.TempDir(), "test-login.yaml"), "test")
	require.NoError(t, err)

	comms := make(map[string]*fakeCommunicator)
	for _, nc := range cfg.Nodes {
		comm := newFakeCommunicator()
		comm.script("kubeadm init", ssh.Result{ExitCode: 0, Output: testInitOutput})
		comm.script("kubeadm token create", ssh.Result{ExitCode: 0, Output: "kubeadm join 10.0.0.1:6443 --token abc.def --discovery-token-ca-cert-hash sha256:1234\n"})
		comm.files["/etc/kubernetes/admin.conf"] = "apiVersion: v1\nkind: Config\n"
		comms[nc.Name] = comm
	}

	hostingMgr := &fakeHosting{}
	installer := &fakeInstaller{}

	s := NewSetupContext(cfg, loginFile, hostingMgr, orchestration.NewRecordingObserver())
	s.Connect = func(node *orchestration.Node) ssh.Communicator {
		return comms[node.Name]
	}
	s.NewInstaller = func([]byte) ChartInstaller { return installer }
	s.NewWaiter = func([]byte) (ReadinessWaiter, error) { return fakeWaiter{}, nil }
	return s, comms, hostingMgr, installer
}

func TestSetupRunsFullPipeline(t *testing.T) {
	t.Parallel()
	s, comms, hostingMgr, installer := testSetup(t)

	nodes := s.Nodes()
	c, err := s.BuildController(nodes, orchestration.WithOnlineProbe(
		func(context.Context, *orchestration.Node) error { return nil },
	))
	require.NoError(t, err)

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Empty(t, result.Faults)

	// Credentials were minted and persisted.
	assert.NotEmpty(t, s.Login.SSHPrivateKey)
	assert.True(t, s.Login.HasJoinMaterial())
	assert.False(t, s.Login.SetupPending)

	// Init ran on the first control plane only.
	assert.Equal(t, 1, comms["cp-1"].countPrefix("kubeadm init"))
	assert.Equal(t, 0, comms["cp-2"].countPrefix("kubeadm init"))

	// Secondary control planes joined with the certificate key.
	assert.Equal(t, 0, comms["cp-1"].countPrefix("kubeadm join"))
	assert.Equal(t, 1, comms["cp-2"].countPrefix("kubeadm join"))
	assert.Equal(t, 1, comms["cp-3"].countPrefix("kubeadm join"))
	assert.Equal(t, 1, comms["worker-1"].countPrefix("kubeadm join"))

	// Per-node provisioning covered every node and the manager was
	// finalized and closed.
	hostingMgr.mu.Lock()
	assert.Len(t, hostingMgr.provisioned, 4)
	assert.True(t, hostingMgr.finalized)
	assert.True(t, hostingMgr.closed)
	hostingMgr.mu.Unlock()

	// CNI and storage installed, monitoring disabled.
	assert.Equal(t, []string{"cilium", "longhorn"}, installer.releases())
}

func TestSetupInitFailureAbortsJoins(t *testing.T) {
	t.Parallel()
	s, comms, _, _ := testSetup(t)
	comms["cp-1"].script("kubeadm init", ssh.Result{ExitCode: 1, Output: "preflight checks failed"})

	nodes := s.Nodes()
	c, err := s.BuildController(nodes, orchestration.WithOnlineProbe(
		func(context.Context, *orchestration.Node) error { return nil },
	))
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preflight checks failed")

	for name, comm := range comms {
		assert.Zero(t, comm.countPrefix("kubeadm join"), "node %s must not attempt a join", name)
	}
	assert.True(t, s.Login.SetupPending)
}

func TestSetupResumeSkipsInit(t *testing.T) {
	t.Parallel()
	s, comms, _, _ := testSetup(t)

	// Simulate a prior run that got as far as init.
	s.Login.Kubeconfig = "apiVersion: v1\nkind: Config\n"
	s.Login.JoinEndpoint = "10.0.0.1:6443"
	s.Login.WorkerJoinCommand = "kubeadm join 10.0.0.1:6443 --token abc.def --discovery-token-ca-cert-hash sha256:1234"
	s.Login.ControlPlaneJoinCommand = s.Login.WorkerJoinCommand + " --control-plane --certificate-key deadbeefcafe"
	require.NoError(t, s.Login.Save())

	nodes := s.Nodes()
	c, err := s.BuildController(nodes, orchestration.WithOnlineProbe(
		func(context.Context, *orchestration.Node) error { return nil },
	))
	require.NoError(t, err)

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, 0, comms["cp-1"].countPrefix("kubeadm init"))
	assert.Equal(t, 1, comms["worker-1"].countPrefix("kubeadm join"))
}

func TestSetupResumeWithSharedRegistryNeverJoinsFirstControlPlane(t *testing.T) {
	t.Parallel()
	s, comms, _, installer := testSetup(t)
	registry := orchestration.NewRegistry()
	probe := orchestration.WithOnlineProbe(
		func(context.Context, *orchestration.Node) error { return nil },
	)

	nodes := s.Nodes()
	c, err := s.BuildController(nodes, orchestration.WithRegistry(registry), probe)
	require.NoError(t, err)
	result, err := c.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 0, comms["cp-1"].countPrefix("kubeadm join"))

	// A resumed run rebuilds everything from the persisted login file
	// and the preserved registry.
	s2 := NewSetupContext(s.Config, s.Login, &fakeHosting{}, orchestration.NewRecordingObserver())
	s2.Connect = func(node *orchestration.Node) ssh.Communicator { return comms[node.Name] }
	s2.NewInstaller = func([]byte) ChartInstaller { return installer }
	s2.NewWaiter = func([]byte) (ReadinessWaiter, error) { return fakeWaiter{}, nil }

	c2, err := s2.BuildController(s2.Nodes(), orchestration.WithRegistry(registry), probe)
	require.NoError(t, err)
	result2, err := c2.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result2.Success)

	// The node that ran kubeadm init is never joined, and completed
	// work does not repeat.
	assert.Equal(t, 0, comms["cp-1"].countPrefix("kubeadm join"))
	assert.Equal(t, 1, comms["cp-1"].countPrefix("kubeadm init"))
	assert.Equal(t, 1, comms["cp-2"].countPrefix("kubeadm join"))
	assert.Equal(t, 1, comms["cp-3"].countPrefix("kubeadm join"))
	assert.Equal(t, 1, comms["worker-1"].countPrefix("kubeadm join"))
}

func TestSetupCloudProviderResolvesEndpointAtInit(t *testing.T) {
	t.Parallel()
	s, comms, hostingMgr, installer := testSetup(t)

	// Cloud-style definition: no configured endpoint, addresses only
	// assigned by the provisioning step.
	s.Config.Hosting.Provider = "hcloud"
	s.Config.Kubernetes.ControlPlaneEndpoint = ""
	for i := range s.Config.Nodes {
		s.Config.Nodes[i].Address = ""
	}
	hostingMgr.addresses = map[string]string{
		"cp-1":     "203.0.113.10",
		"cp-2":     "203.0.113.11",
		"cp-3":     "203.0.113.12",
		"worker-1": "203.0.113.13",
	}

	nodes := s.Nodes()
	c, err := s.BuildController(nodes, orchestration.WithOnlineProbe(
		func(context.Context, *orchestration.Node) error { return nil },
	))
	require.NoError(t, err)

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, "203.0.113.10", s.Login.JoinEndpoint)
	assert.Contains(t, comms["cp-1"].file(kubeadmConfigPath), "controlPlaneEndpoint: 203.0.113.10")

	cilium, ok := installer.chart("cilium")
	require.True(t, ok)
	assert.Equal(t, "203.0.113.10", cilium.Values["k8sServiceHost"])
	assert.Equal(t, "6443", cilium.Values["k8sServicePort"])
}

func TestNodesCarryLoginCredentials(t *testing.T) {
	t.Parallel()
	s, _, _, _ := testSetup(t)
	s.Login.SSHPrivateKey = "fake-key"
	s.Login.NodePassword = "secret"

	nodes := s.Nodes()
	require.Len(t, nodes, 4)
	assert.Equal(t, "cp-1", nodes[0].Name)
	assert.True(t, nodes[0].IsControlPlane())
	assert.False(t, nodes[3].IsControlPlane())
	assert.Equal(t, []byte("fake-key"), nodes[0].Credentials.PrivateKey)
	assert.Equal(t, "secret", nodes[0].Credentials.Password)
}

func TestMinorVersion(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "1.31", minorVersion("1.31.4"))
	assert.Equal(t, "1.31", minorVersion("1.31"))
	assert.Equal(t, "1", minorVersion("1"))
}
