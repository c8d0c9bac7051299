package orchestration

import (
	"fmt"
	"sync"
	"time"
)

// Role identifies a node's function in the cluster.
type Role string

const (
	// RoleControlPlane marks a node that runs the Kubernetes control plane.
	RoleControlPlane Role = "control-plane"
	// RoleWorker marks a node that only runs workloads.
	RoleWorker Role = "worker"
)

// Credentials holds what is needed to open a remote session on a node.
type Credentials struct {
	User       string
	PrivateKey []byte
	Password   string
	Port       int
}

// Fault is a captured node-scoped error. A faulted node is excluded
// from all subsequent per-node steps but does not abort the run.
type Fault struct {
	Step    string
	Err     error
	Message string
	Time    time.Time
}

func (f *Fault) Error() string {
	return fmt.Sprintf("step %q: %s: %v", f.Step, f.Message, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Node is the handle for one machine in the cluster. Identity fields
// are set at construction and never change; Status and Fault are
// mutated by the node's current step task and guarded internally.
type Node struct {
	Name        string
	Address     string
	Role        Role
	Credentials Credentials

	mu     sync.Mutex
	status string
	fault  *Fault
}

// NewNode creates a node handle from its identity.
func NewNode(name, address string, role Role, creds Credentials) *Node {
	return &Node{Name: name, Address: address, Role: role, Credentials: creds}
}

// IsControlPlane reports whether the node hosts the control plane.
func (n *Node) IsControlPlane() bool {
	return n.Role == RoleControlPlane
}

// SetStatus sets the node's free-text progress message. Last writer wins.
func (n *Node) SetStatus(format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = fmt.Sprintf(format, args...)
}

// Status returns the node's current progress message.
func (n *Node) Status() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// SetFault records a fault against the node. The first fault sticks;
// later steps never run for a faulted node, so a second write would
// indicate an engine bug and is ignored.
func (n *Node) SetFault(step string, err error, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fault != nil {
		return
	}
	n.fault = &Fault{Step: step, Err: err, Message: message, Time: time.Now()}
}

// Fault returns the node's recorded fault, or nil.
func (n *Node) Fault() *Fault {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fault
}

// Faulted reports whether the node has a recorded fault.
func (n *Node) Faulted() bool {
	return n.Fault() != nil
}
