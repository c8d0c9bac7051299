package orchestration

import (
	"context"
	"time"
)

// GlobalAction is the body of a step that runs once for the whole cluster.
type GlobalAction func(ctx context.Context) error

// NodeAction is the body of a step that runs once per eligible node.
type NodeAction func(ctx context.Context, node *Node) error

// NodeFilter selects the subset of nodes a per-node step applies to.
type NodeFilter func(node *Node) bool

// ControlPlanes selects control-plane nodes.
func ControlPlanes(node *Node) bool { return node.IsControlPlane() }

// Workers selects worker nodes.
func Workers(node *Node) bool { return !node.IsControlPlane() }

// AllNodes selects every node.
func AllNodes(*Node) bool { return true }

type stepKind int

const (
	kindGlobal stepKind = iota
	kindPerNode
	kindWaitOnline
)

// step is one entry in the controller's ordered list. The name doubles
// as the idempotency key, so names must be unique within a controller.
type step struct {
	name    string
	kind    stepKind
	global  GlobalAction
	perNode NodeAction
	filter  NodeFilter
	timeout time.Duration // wait-online only
}
