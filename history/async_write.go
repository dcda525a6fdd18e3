package history

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"sdgateway/logging"
)

// DefaultChannelCapacity is the default buffer size for queued records.
const DefaultChannelCapacity = 100

// WriteHandler persists one queued record.
type WriteHandler func(rec Record) error

// AsyncWriter keeps history inserts off the request path. Records are
// buffered in a channel and written by one background goroutine; Stop
// drains whatever is still queued.
type AsyncWriter struct {
	writeChan chan Record
	handler   WriteHandler
	logger    *logging.Logger

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// NewAsyncWriter creates a writer with the given buffer capacity
// (DefaultChannelCapacity when <= 0).
func NewAsyncWriter(handler WriteHandler, capacity int, logger *logging.Logger) *AsyncWriter {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &AsyncWriter{
		writeChan: make(chan Record, capacity),
		handler:   handler,
		logger:    logger.Named("history"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the background goroutine. Calling it twice is a no-op.
func (w *AsyncWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.processWrites()
}

func (w *AsyncWriter) processWrites() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			w.drainChannel()
			return
		case rec := <-w.writeChan:
			w.handle(rec)
		}
	}
}

func (w *AsyncWriter) drainChannel() {
	for {
		select {
		case rec := <-w.writeChan:
			w.handle(rec)
		default:
			return
		}
	}
}

func (w *AsyncWriter) handle(rec Record) {
	if err := w.handler(rec); err != nil {
		w.logger.Warn("failed to write history record",
			zap.String("request_id", rec.RequestID),
			zap.Error(err))
	}
}

// Write queues rec without blocking. It returns false when the buffer is
// full.
func (w *AsyncWriter) Write(rec Record) bool {
	select {
	case w.writeChan <- rec:
		return true
	default:
		return false
	}
}

// Pending returns the number of records waiting in the buffer.
func (w *AsyncWriter) Pending() int {
	return len(w.writeChan)
}

// IsStarted reports whether the background goroutine is running.
func (w *AsyncWriter) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// Stop cancels the writer and waits until the buffer is drained or ctx
// expires.
func (w *AsyncWriter) Stop(ctx context.Context) error {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopWithTimeout is Stop with a fixed deadline.
func (w *AsyncWriter) StopWithTimeout(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return w.Stop(ctx) == nil
}
