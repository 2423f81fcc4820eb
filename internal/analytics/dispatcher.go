// ABOUTME: Fire-and-forget event queue drained by a single worker goroutine
// ABOUTME: Enqueue never blocks; a full queue drops the event and logs it

package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/lamp/internal/apperr"
)

const (
	// defaultQueueSize bounds events waiting for the worker.
	defaultQueueSize = 256
	// sendTimeout bounds a single delivery attempt.
	sendTimeout = 10 * time.Second
)

// Dispatcher is an asynchronous Sender.
type Dispatcher struct {
	next   Sender
	queue  chan Event
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a worker that forwards events to next.
// Pass queueSize <= 0 for the default.
func NewDispatcher(next Sender, queueSize int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	d := &Dispatcher{
		next:   next,
		queue:  make(chan Event, queueSize),
		logger: logger.With("component", "analytics"),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Send enqueues ev and returns immediately. It never returns an error; a
// dropped event is logged.
func (d *Dispatcher) Send(_ context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Debug("dropped event after close", "event", ev.Name)
		return nil
	}
	select {
	case d.queue <- ev:
	default:
		d.logger.Warn("analytics queue full, dropping event", "event", ev.Name)
	}
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := d.next.Send(ctx, ev); err != nil {
			d.logger.Warn("analytics delivery failed",
				"event", ev.Name,
				"error", apperr.Merge(apperr.CodeTransport, err),
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued events to drain or ctx
// to end. Safe to call more than once.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
