package orchestration

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Scope identifies the owner of a registry entry: either the synthetic
// cluster-wide scope or a single node's name.
type Scope string

// ScopeGlobal is the scope used for steps that run once per cluster.
const ScopeGlobal Scope = "@cluster"

// NodeScope returns the registry scope for a named node.
func NodeScope(name string) Scope {
	return Scope(name)
}

// Registry is the completion set for idempotent steps, keyed by
// (scope, key). Presence means completed; no result payload is stored.
// A single Registry instance backs one Controller and is safe for
// concurrent and nested use.
type Registry struct {
	mu    sync.Mutex
	done  map[string]struct{}
	group singleflight.Group
}

// NewRegistry creates an empty completion registry.
func NewRegistry() *Registry {
	return &Registry{done: make(map[string]struct{})}
}

func compositeKey(scope Scope, key string) string {
	return string(scope) + "\x00" + key
}

// IsComplete reports whether the given (scope, key) pair has completed.
// Pure lookup, no side effects.
func (r *Registry) IsComplete(scope Scope, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.done[compositeKey(scope, key)]
	return ok
}

// MarkComplete records the (scope, key) pair as completed. Marking an
// already-completed pair is a no-op.
func (r *Registry) MarkComplete(scope Scope, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done[compositeKey(scope, key)] = struct{}{}
}

// InvokeIdempotent runs body at most once for the (scope, key) pair.
// If the pair is already complete the body is not invoked. The pair is
// marked complete only when body returns nil; on error the key stays
// unmarked so a later run retries it. Concurrent callers of the same
// key share a single invocation. Bodies may call InvokeIdempotent
// recursively with other keys: the internal lock is never held across
// the body invocation.
func (r *Registry) InvokeIdempotent(scope Scope, key string, body func() error) error {
	k := compositeKey(scope, key)
	if r.isDone(k) {
		return nil
	}
	_, err, _ := r.group.Do(k, func() (any, error) {
		// A concurrent duplicate may have completed the key between
		// the fast-path check and entering the flight group.
		if r.isDone(k) {
			return nil, nil
		}
		if err := body(); err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.done[k] = struct{}{}
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

func (r *Registry) isDone(composite string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.done[composite]
	return ok
}
