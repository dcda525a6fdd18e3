package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrShuttingDown is returned for operations started after shutdown began.
var ErrShuttingDown = errors.New("shutdown: server is shutting down")

// Tracker counts in-flight operations so shutdown can wait for them.
//
//	if !tracker.Start() {
//	    return ErrShuttingDown
//	}
//	defer tracker.Done()
type Tracker struct {
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active atomic.Int64
	closed bool
}

// NewTracker creates an open Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Start registers a new operation. It returns false once the tracker is
// closed; otherwise the caller must call Done exactly once.
func (t *Tracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	t.wg.Add(1)
	t.active.Add(1)
	return true
}

// Done marks an operation finished.
func (t *Tracker) Done() {
	t.active.Add(-1)
	t.wg.Done()
}

// Close rejects further Start calls. Running operations are unaffected.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Wait blocks until every started operation is done or ctx expires.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of running operations.
func (t *Tracker) Active() int64 {
	return t.active.Load()
}

// IsClosed reports whether Close was called.
func (t *Tracker) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
