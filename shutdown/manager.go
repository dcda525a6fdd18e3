package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sdgateway/logging"
)

// DefaultTimeout bounds the whole shutdown sequence.
const DefaultTimeout = 60 * time.Second

// Manager ties a Tracker and a Registry to process signals.
//
// Usage:
//
//	m := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
//	m.Register("http-server", shutdown.PriorityHTTPServer, srv.Shutdown)
//	m.Start()
//	<-m.Context().Done()
//	err := m.Shutdown()
type Manager struct {
	logger    *logging.Logger
	timeout   time.Duration
	forceExit func()

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *Tracker
	registry *Registry

	mu       sync.Mutex
	started  bool
	finished bool
	signals  int
	received os.Signal
	sigChan  chan os.Signal
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets the shutdown deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithForceExit replaces the action taken on a second signal.
func WithForceExit(fn func()) Option {
	return func(m *Manager) {
		m.forceExit = fn
	}
}

// NewManager creates a Manager. A second SIGINT/SIGTERM exits the process
// immediately unless WithForceExit says otherwise.
func NewManager(logger *logging.Logger, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:    logger.Named("shutdown"),
		timeout:   DefaultTimeout,
		forceExit: func() { os.Exit(1) },
		ctx:       ctx,
		cancel:    cancel,
		tracker:   NewTracker(),
		registry:  NewRegistry(),
		sigChan:   make(chan os.Signal, 2),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Context is cancelled when shutdown is triggered.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup step.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority))
}

// Start listens for SIGINT and SIGTERM. The first signal triggers a
// graceful shutdown; the second forces exit. Calling Start twice is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true
	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-m.sigChan:
				m.handleSignal(sig)
			case <-m.ctx.Done():
				if m.signalCount() == 0 {
					return
				}
				// keep listening so a second signal can still force exit
				for sig := range m.sigChan {
					m.handleSignal(sig)
				}
				return
			}
		}
	}()
}

func (m *Manager) handleSignal(sig os.Signal) {
	m.mu.Lock()
	m.signals++
	count := m.signals
	if count == 1 {
		m.received = sig
	}
	m.mu.Unlock()

	if count == 1 {
		m.logger.Info("received shutdown signal, shutting down gracefully",
			zap.String("signal", sig.String()))
		m.cancel()
		return
	}
	m.logger.Warn("received second signal, forcing exit")
	m.forceExit()
}

func (m *Manager) signalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signals
}

// Signal returns the signal that started shutdown, or nil when shutdown
// was triggered some other way.
func (m *Manager) Signal() os.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

// Trigger starts shutdown without a signal, e.g. from a service manager.
func (m *Manager) Trigger() {
	m.cancel()
}

// WrapOperation runs fn as a tracked operation. It returns ErrShuttingDown
// without calling fn once shutdown has begun.
func (m *Manager) WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		m.logger.Debug("operation rejected, shutting down", zap.String("operation", name))
		return ErrShuttingDown
	}
	defer m.tracker.Done()
	return fn(ctx)
}

// ActiveOperations returns the number of running tracked operations.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.Active()
}

// IsShuttingDown reports whether new operations are being rejected.
func (m *Manager) IsShuttingDown() bool {
	return m.tracker.IsClosed()
}

// RegisteredHandlers returns cleanup step names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}

// Shutdown rejects new operations, waits for running ones and then runs
// the cleanup steps, all within the configured timeout. Only the first
// call does anything.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return nil
	}
	m.finished = true
	m.mu.Unlock()

	m.cancel()
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.tracker.Close()
	if active := m.tracker.Active(); active > 0 {
		m.logger.Info("waiting for in-flight operations", zap.Int64("active", active))
	}
	if err := m.tracker.Wait(ctx); err != nil {
		m.logger.Warn("timed out waiting for in-flight operations",
			zap.Int64("remaining", m.tracker.Active()))
	}

	// Cleanup always gets at least a second, even after a slow drain.
	cleanupCtx := ctx
	if deadline, _ := ctx.Deadline(); time.Until(deadline) < time.Second {
		var cleanupCancel context.CancelFunc
		cleanupCtx, cleanupCancel = context.WithTimeout(context.Background(), time.Second)
		defer cleanupCancel()
	}

	m.logger.Info("running cleanup", zap.Strings("handlers", m.registry.Names()))
	errs := m.registry.Run(cleanupCtx)
	for _, err := range errs {
		m.logger.Error("cleanup step failed", zap.Error(err))
	}

	signal.Stop(m.sigChan)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown finished with %d errors: %w", len(errs), errs[0])
	}
	m.logger.Info("shutdown complete", zap.Duration("duration", time.Since(start)))
	return nil
}
