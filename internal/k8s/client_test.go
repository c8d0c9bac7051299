package k8s

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func int32Ptr(i int32) *int32 { return &i }

func TestEnsureNamespace_Idempotent(t *testing.T) {
	t.Parallel()
	c := NewClientForTesting(fake.NewClientset())
	ctx := context.Background()

	require.NoError(t, c.EnsureNamespace(ctx, "kube-forge"))
	require.NoError(t, c.EnsureNamespace(ctx, "kube-forge"))
}

func TestWaitForDeployment(t *testing.T) {
	t.Parallel()
	clientset := fake.NewClientset(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "cilium-operator", Namespace: "kube-system"},
		Spec:       appsv1.DeploymentSpec{Replicas: int32Ptr(2)},
		Status:     appsv1.DeploymentStatus{AvailableReplicas: 2},
	})
	c := NewClientForTesting(clientset)

	err := c.WaitForDeployment(context.Background(), "kube-system", "cilium-operator", time.Second, 10*time.Millisecond)
	require.NoError(t, err)
}

func TestWaitForDeployment_Timeout(t *testing.T) {
	t.Parallel()
	clientset := fake.NewClientset(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "slow", Namespace: "default"},
		Spec:       appsv1.DeploymentSpec{Replicas: int32Ptr(3)},
		Status:     appsv1.DeploymentStatus{AvailableReplicas: 1},
	})
	c := NewClientForTesting(clientset)

	err := c.WaitForDeployment(context.Background(), "default", "slow", 50*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)
}

func TestWaitForDaemonSet(t *testing.T) {
	t.Parallel()
	clientset := fake.NewClientset(&appsv1.DaemonSet{
		ObjectMeta: metav1.ObjectMeta{Name: "cilium", Namespace: "kube-system"},
		Status: appsv1.DaemonSetStatus{
			DesiredNumberScheduled: 3,
			NumberReady:            3,
		},
	})
	c := NewClientForTesting(clientset)

	err := c.WaitForDaemonSet(context.Background(), "kube-system", "cilium", time.Second, 10*time.Millisecond)
	require.NoError(t, err)
}

func TestWaitForStatefulSet_NotReady(t *testing.T) {
	t.Parallel()
	clientset := fake.NewClientset(&appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{Name: "prometheus", Namespace: "monitoring"},
		Spec:       appsv1.StatefulSetSpec{Replicas: int32Ptr(2)},
		Status:     appsv1.StatefulSetStatus{ReadyReplicas: 1},
	})
	c := NewClientForTesting(clientset)

	err := c.WaitForStatefulSet(context.Background(), "monitoring", "prometheus", 50*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)
}

func TestCountReadyNodes(t *testing.T) {
	t.Parallel()
	ready := corev1.NodeStatus{Conditions: []corev1.NodeCondition{
		{Type: corev1.NodeReady, Status: corev1.ConditionTrue},
	}}
	notReady := corev1.NodeStatus{Conditions: []corev1.NodeCondition{
		{Type: corev1.NodeReady, Status: corev1.ConditionFalse},
	}}
	clientset := fake.NewClientset(
		&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "cp-1"}, Status: ready},
		&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "worker-1"}, Status: ready},
		&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "worker-2"}, Status: notReady},
	)
	c := NewClientForTesting(clientset)

	count, err := c.CountReadyNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSecretLifecycle(t *testing.T) {
	t.Parallel()
	c := NewClientForTesting(fake.NewClientset())
	ctx := context.Background()

	require.NoError(t, c.UpsertSecret(ctx, "default", "cluster-login", map[string][]byte{"password": []byte("one")}))
	require.NoError(t, c.UpsertSecret(ctx, "default", "cluster-login", map[string][]byte{"password": []byte("two")}))

	data, err := c.GetSecretData(ctx, "default", "cluster-login", "password")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), data)

	_, err = c.GetSecretData(ctx, "default", "cluster-login", "missing")
	require.Error(t, err)

	require.NoError(t, c.DeleteSecret(ctx, "default", "cluster-login"))
	require.NoError(t, c.DeleteSecret(ctx, "default", "cluster-login"))
}
