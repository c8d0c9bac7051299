package orchestration

import (
	"context"
	"fmt"
	"net"
	"time"
)

const defaultSSHPort = 22

// waitOnlineAction builds the body of the wait-until-online step: poll
// the reachability probe until the node answers or the timeout elapses.
func (c *Controller) waitOnlineAction(timeout time.Duration) NodeAction {
	return func(ctx context.Context, node *Node) error {
		deadline := time.Now().Add(timeout)
		var lastErr error
		for {
			err := c.probe(ctx, node)
			if err == nil {
				c.observer.Event(Event{Type: EventNodeOnline, Scope: NodeScope(node.Name), Step: "wait-until-online"})
				return nil
			}
			lastErr = err

			if time.Now().After(deadline) {
				return fmt.Errorf("node %s not reachable within %v: %w", node.Name, timeout, lastErr)
			}

			select {
			case <-ctx.Done():
				return fmt.Errorf("waiting for node %s: %w", node.Name, ctx.Err())
			case <-time.After(c.pollEvery):
			}
		}
	}
}

// dialProbe is the default reachability check: a TCP connect to the
// node's SSH port.
func (c *Controller) dialProbe(ctx context.Context, node *Node) error {
	port := node.Credentials.Port
	if port == 0 {
		port = defaultSSHPort
	}
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", node.Address, port))
	if err != nil {
		return err
	}
	return conn.Close()
}
