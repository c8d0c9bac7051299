package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxParallel bounds per-node fan-out when no limit is configured.
const DefaultMaxParallel = 8

// Disposable is a resource released when Run returns, on success and
// failure alike.
type Disposable interface {
	Close() error
}

// DisposableFunc adapts a func to Disposable.
type DisposableFunc func() error

// Close implements Disposable.
func (f DisposableFunc) Close() error { return f() }

// RunResult is the aggregate outcome of one Run. Success is true iff
// no global step failed and no node faulted.
type RunResult struct {
	Success  bool
	Faults   map[string]*Fault
	Duration time.Duration
}

// Controller owns the ordered step list and the node set, and drives
// execution with barrier-per-step semantics: every node finishes step N
// before any node starts step N+1.
type Controller struct {
	nodes       []*Node
	steps       []step
	maxParallel int64
	registry    *Registry
	observer    Observer
	probe       func(ctx context.Context, node *Node) error
	pollEvery   time.Duration
	disposables []Disposable
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxParallel bounds the number of per-node step bodies running
// concurrently.
func WithMaxParallel(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxParallel = int64(n)
		}
	}
}

// WithObserver sets the progress sink.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithRegistry supplies an existing completion registry, letting a
// resumed run skip steps that finished before the interruption.
func WithRegistry(r *Registry) Option {
	return func(c *Controller) { c.registry = r }
}

// WithOnlineProbe overrides the reachability check used by the
// wait-until-online step. The default probes the node's SSH port.
func WithOnlineProbe(probe func(ctx context.Context, node *Node) error) Option {
	return func(c *Controller) { c.probe = probe }
}

// WithOnlinePollInterval sets the delay between reachability probes.
func WithOnlinePollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollEvery = d
		}
	}
}

// NewController creates a controller over the given node set.
func NewController(nodes []*Node, opts ...Option) *Controller {
	c := &Controller{
		nodes:       nodes,
		maxParallel: DefaultMaxParallel,
		registry:    NewRegistry(),
		observer:    NewConsoleObserver(),
		pollEvery:   5 * time.Second,
	}
	c.probe = c.dialProbe
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Nodes returns the controller's node set.
func (c *Controller) Nodes() []*Node { return c.nodes }

// Registry returns the completion registry. Step bodies use it for
// nested idempotent sub-steps.
func (c *Controller) Registry() *Registry { return c.registry }

// AddGlobalStep appends a step that runs exactly once for the cluster.
// A global step failure aborts the run: everything after it depends on
// its effect. The name is the idempotency key and must be unique.
func (c *Controller) AddGlobalStep(name string, action GlobalAction) {
	c.steps = append(c.steps, step{name: name, kind: kindGlobal, global: action})
}

// AddNodeStep appends a step that runs once per node matching filter
// (all nodes when filter is nil), concurrently up to the parallelism
// bound. A failure faults the offending node and the run continues for
// the others.
func (c *Controller) AddNodeStep(name string, action NodeAction, filter NodeFilter) {
	if filter == nil {
		filter = AllNodes
	}
	c.steps = append(c.steps, step{name: name, kind: kindPerNode, perNode: action, filter: filter})
}

// AddWaitUntilOnlineStep appends a built-in per-node step that polls
// node reachability until each node answers or timeout elapses. A node
// that never comes online is faulted and excluded from later steps.
func (c *Controller) AddWaitUntilOnlineStep(timeout time.Duration) {
	c.steps = append(c.steps, step{
		name:    "wait-until-online",
		kind:    kindWaitOnline,
		filter:  AllNodes,
		timeout: timeout,
	})
}

// AddDisposable registers a resource to release when Run returns.
func (c *Controller) AddDisposable(d Disposable) {
	c.disposables = append(c.disposables, d)
}

// Run executes the step list strictly in declaration order and returns
// the aggregate result. The returned error is non-nil only for a global
// step failure; node faults are reported through the result. Registered
// disposables are closed before returning on every path.
func (c *Controller) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	defer c.dispose()

	c.observer.Printf("starting run: %d steps across %d nodes (max parallel %d)",
		len(c.steps), len(c.nodes), c.maxParallel)

	for i, s := range c.steps {
		label := fmt.Sprintf("%s (%d/%d)", s.name, i+1, len(c.steps))

		var err error
		switch s.kind {
		case kindGlobal:
			err = c.runGlobal(ctx, s)
		case kindPerNode:
			c.runPerNode(ctx, s, s.perNode)
		case kindWaitOnline:
			c.runPerNode(ctx, s, c.waitOnlineAction(s.timeout))
		}
		if err != nil {
			c.observer.Printf("[%s] aborting run: %v", label, err)
			result := c.result(start)
			result.Success = false
			return result, fmt.Errorf("global step %q failed: %w", s.name, err)
		}

		if err := ctx.Err(); err != nil {
			result := c.result(start)
			result.Success = false
			return result, fmt.Errorf("run cancelled after step %q: %w", s.name, err)
		}
	}

	result := c.result(start)
	c.observer.Printf("run finished in %v: success=%t, faults=%d",
		result.Duration.Round(time.Millisecond), result.Success, len(result.Faults))
	return result, nil
}

func (c *Controller) result(start time.Time) *RunResult {
	faults := make(map[string]*Fault)
	for _, n := range c.nodes {
		if f := n.Fault(); f != nil {
			faults[n.Name] = f
		}
	}
	return &RunResult{
		Success:  len(faults) == 0,
		Faults:   faults,
		Duration: time.Since(start),
	}
}

func (c *Controller) runGlobal(ctx context.Context, s step) error {
	if c.registry.IsComplete(ScopeGlobal, s.name) {
		c.observer.Event(Event{Type: EventStepSkipped, Scope: ScopeGlobal, Step: s.name, Message: "already completed"})
		return nil
	}
	c.observer.Event(Event{Type: EventStepStarted, Scope: ScopeGlobal, Step: s.name})

	err := c.registry.InvokeIdempotent(ScopeGlobal, s.name, func() error {
		return s.global(ctx)
	})
	if err != nil {
		c.observer.Event(Event{Type: EventStepFailed, Scope: ScopeGlobal, Step: s.name, Message: err.Error()})
		return err
	}
	c.observer.Event(Event{Type: EventStepCompleted, Scope: ScopeGlobal, Step: s.name})
	return nil
}

// runPerNode fans the step body out across the eligible nodes under the
// parallelism bound and waits for all of them: the step barrier.
func (c *Controller) runPerNode(ctx context.Context, s step, action NodeAction) {
	eligible := make([]*Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		if !n.Faulted() && s.filter(n) {
			eligible = append(eligible, n)
		}
	}
	if len(eligible) == 0 {
		return
	}

	sem := semaphore.NewWeighted(c.maxParallel)
	var wg sync.WaitGroup
	var completed atomic.Int32

	for _, n := range eligible {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				c.fault(n, s.name, err, "cancelled while waiting for a worker slot")
				return
			}
			defer sem.Release(1)

			c.runOnNode(ctx, s.name, n, action)
			c.observer.Progress(s.name, int(completed.Add(1)), len(eligible))
		}()
	}
	wg.Wait()
}

func (c *Controller) runOnNode(ctx context.Context, name string, n *Node, action NodeAction) {
	scope := NodeScope(n.Name)
	if c.registry.IsComplete(scope, name) {
		c.observer.Event(Event{Type: EventStepSkipped, Scope: scope, Step: name, Message: "already completed"})
		return
	}
	c.observer.Event(Event{Type: EventStepStarted, Scope: scope, Step: name})
	n.SetStatus("running %s", name)

	err := c.registry.InvokeIdempotent(scope, name, func() error {
		return action(ctx, n)
	})
	if err != nil {
		c.fault(n, name, err, "step body failed")
		return
	}
	n.SetStatus("finished %s", name)
	c.observer.Event(Event{Type: EventStepCompleted, Scope: scope, Step: name})
}

// fault records the error on the node and swallows it from the run's
// perspective. This is the containment point that lets the rest of the
// fleet continue.
func (c *Controller) fault(n *Node, step string, err error, message string) {
	n.SetFault(step, err, message)
	n.SetStatus("faulted during %s", step)
	c.observer.Event(Event{Type: EventStepFailed, Scope: NodeScope(n.Name), Step: step, Message: err.Error()})
	c.observer.Event(Event{Type: EventNodeFaulted, Scope: NodeScope(n.Name), Step: step, Message: message})
}

func (c *Controller) dispose() {
	// Reverse order: later resources may depend on earlier ones.
	for i := len(c.disposables) - 1; i >= 0; i-- {
		if err := c.disposables[i].Close(); err != nil {
			c.observer.Printf("disposing resource: %v", err)
		}
	}
}
