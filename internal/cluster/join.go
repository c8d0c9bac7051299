package cluster

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kubeforge/kubeforge/internal/orchestration"
	"github.com/kubeforge/kubeforge/internal/retry"
	"github.com/kubeforge/kubeforge/internal/ssh"
)

// joinWorker joins one worker node using the recorded join command.
func (s *SetupContext) joinWorker(ctx context.Context, node *orchestration.Node) error {
	return s.join(ctx, node, s.Login.WorkerJoinCommand)
}

// joinControlPlane joins a secondary control plane using the join
// command extended with the certificate key.
func (s *SetupContext) joinControlPlane(ctx context.Context, node *orchestration.Node) error {
	return s.join(ctx, node, s.Login.ControlPlaneJoinCommand)
}

func (s *SetupContext) join(ctx context.Context, node *orchestration.Node, joinCommand string) error {
	if joinCommand == "" {
		return fmt.Errorf("no join command recorded for %s", node.Name)
	}
	comm := s.Connect(node)
	return JoinWithRetry(ctx, comm, node, s.maybeSudo(joinCommand),
		s.Config.Kubernetes.JoinAttempts(), s.Config.Kubernetes.JoinDelay())
}

// JoinWithRetry runs the kubeadm join command on node, retrying
// command failures on a fixed delay. The control plane endpoint may
// still be converging right after init, so early failures are
// expected and a fresh attempt usually succeeds. Transport errors
// propagate immediately since repeating them against a dead
// connection wastes the budget.
//
// The bootstrap helper container kubeadm leaves behind on aborted
// joins is removed after the attempts, on success and failure alike,
// so a later resume starts from a clean slate.
func JoinWithRetry(ctx context.Context, comm ssh.Communicator, node *orchestration.Node, joinCommand string, attempts int, delay time.Duration) error {
	if endpoint := parseJoinEndpoint(joinCommand); endpoint != "" {
		node.SetStatus("joining cluster via %s", endpoint)
	} else {
		node.SetStatus("joining cluster")
	}

	var lastOutput string
	joinErr := retry.Fixed(ctx, attempts, delay, func(ctx context.Context) (bool, error) {
		result, err := comm.RunCommand(ctx, joinCommand)
		if err != nil {
			return false, err
		}
		if result.Success() {
			return true, nil
		}
		lastOutput = result.Output
		node.SetStatus("join attempt failed, retrying")
		return false, nil
	})

	// Best effort, the container may not exist.
	cleanup := "crictl rm -f $(crictl ps -a -q --name kube-apiserver-bootstrap 2>/dev/null) 2>/dev/null || true"
	if _, err := comm.RunCommand(ctx, cleanup); err != nil && joinErr == nil {
		return fmt.Errorf("cleaning up bootstrap container on %s: %w", node.Name, err)
	}

	if joinErr != nil {
		if lastOutput != "" {
			return fmt.Errorf("joining %s: %w: %s", node.Name, joinErr, tail(lastOutput, 10))
		}
		return fmt.Errorf("joining %s: %w", node.Name, joinErr)
	}

	node.SetStatus("joined cluster")
	return nil
}

// parseJoinEndpoint extracts the host:port the join command dials,
// used for status reporting.
func parseJoinEndpoint(joinCommand string) string {
	fields := strings.Fields(joinCommand)
	for i, f := range fields {
		if f == "join" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
