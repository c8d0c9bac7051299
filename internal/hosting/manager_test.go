package hosting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeforge/kubeforge/internal/orchestration"
)

type fakeManager struct{ name string }

func (f *fakeManager) Name() string                  { return f.name }
func (f *fakeManager) RequiresAdminPrivileges() bool { return false }
func (f *fakeManager) GenerateSecurePassword() bool  { return false }
func (f *fakeManager) MaxParallel() int              { return 2 }
func (f *fakeManager) WaitInterval() time.Duration   { return time.Second }
func (f *fakeManager) Close() error                  { return nil }

func (f *fakeManager) AddProvisioningSteps(*orchestration.Controller) error     { return nil }
func (f *fakeManager) AddPostProvisioningSteps(*orchestration.Controller) error { return nil }
func (f *fakeManager) DestroyResources(context.Context) error                   { return nil }

func TestRegistry(t *testing.T) {
	// No t.Parallel: mutates the package-level factory registry.
	Register("fake", func() (Manager, error) {
		return &fakeManager{name: "fake"}, nil
	})

	m, err := New("fake")
	require.NoError(t, err)
	assert.Equal(t, "fake", m.Name())
	assert.Contains(t, Names(), "fake")

	_, err = New("does-not-exist")
	require.Error(t, err)
}
