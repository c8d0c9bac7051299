package k8s

import (
	"context"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
)

// WaitForDeployment waits until the deployment's available replicas
// match its desired count.
func (c *Client) WaitForDeployment(ctx context.Context, namespace, name string, timeout, poll time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, poll, timeout, true, func(ctx context.Context) (bool, error) {
		d, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, nil
		}
		desired := int32(1)
		if d.Spec.Replicas != nil {
			desired = *d.Spec.Replicas
		}
		return d.Status.AvailableReplicas >= desired, nil
	})
}

// WaitForDaemonSet waits until the daemonset is ready on every
// scheduled node.
func (c *Client) WaitForDaemonSet(ctx context.Context, namespace, name string, timeout, poll time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, poll, timeout, true, func(ctx context.Context) (bool, error) {
		ds, err := c.clientset.AppsV1().DaemonSets(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, nil
		}
		if ds.Status.DesiredNumberScheduled == 0 {
			return false, nil
		}
		return ds.Status.NumberReady >= ds.Status.DesiredNumberScheduled, nil
	})
}

// WaitForStatefulSet waits until the statefulset's ready replicas match
// its desired count.
func (c *Client) WaitForStatefulSet(ctx context.Context, namespace, name string, timeout, poll time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, poll, timeout, true, func(ctx context.Context) (bool, error) {
		sts, err := c.clientset.AppsV1().StatefulSets(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, nil
		}
		desired := int32(1)
		if sts.Spec.Replicas != nil {
			desired = *sts.Spec.Replicas
		}
		return sts.Status.ReadyReplicas >= desired, nil
	})
}

// WaitForReadyNodes waits until at least count cluster nodes are Ready.
func (c *Client) WaitForReadyNodes(ctx context.Context, count int, timeout, poll time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, poll, timeout, true, func(ctx context.Context) (bool, error) {
		ready, err := c.CountReadyNodes(ctx)
		if err != nil {
			return false, nil
		}
		return ready >= count, nil
	})
}
