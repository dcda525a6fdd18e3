// Package shutdown coordinates graceful shutdown: it stops accepting new
// generation requests, waits for in-flight engine calls and then runs
// cleanup handlers in priority order.
package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Func is a cleanup step run during shutdown.
type Func func(ctx context.Context) error

// Priorities used by the gateway. Lower runs first.
const (
	PriorityHTTPServer = 10
	PriorityHistory    = 20
	PriorityDatabase   = 30
	PriorityLogger     = 90
)

type entry struct {
	name     string
	fn       Func
	priority int
}

// Registry is an ordered set of cleanup steps. Steps with equal priority
// run in registration order.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a step. Registration after Run is ignored.
func (r *Registry) Register(name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.entries = append(r.entries, entry{name: name, fn: fn, priority: priority})
}

// Run executes every step once, in priority order, even when earlier steps
// fail. The returned errors name the failing step.
func (r *Registry) Run(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := r.sortedLocked()
	r.mu.Unlock()

	var errs []error
	for _, e := range sorted {
		if err := e.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errs
}

// Names returns step names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := r.sortedLocked()
	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = e.name
	}
	return names
}

// Count returns the number of registered steps.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) sortedLocked() []entry {
	sorted := make([]entry, len(r.entries))
	copy(sorted, r.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].priority < sorted[j].priority
	})
	return sorted
}
