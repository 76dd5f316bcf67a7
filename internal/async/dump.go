package async

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/joseph-ayodele/qcqueue/internal/common"
)

// DumpState is the lifecycle of a Dump. Shutdown is terminal.
type DumpState int32

const (
	DumpRunning DumpState = iota
	DumpStopRequested
	DumpStopped
)

func (s DumpState) String() string {
	switch s {
	case DumpRunning:
		return "running"
	case DumpStopRequested:
		return "stop_requested"
	case DumpStopped:
		return "stopped"
	}
	return "unknown"
}

// Dump deletes scratch files on a background goroutine so that cleanup never
// stalls the submit/poll loop.
//
// Delivery is best-effort: names sent before Shutdown are attempted in send
// order unless Shutdown's context ends first, in which case the backlog is
// abandoned. Names sent concurrently with or after Shutdown are dropped.
type Dump struct {
	logger *slog.Logger
	remove func(string) error

	ch   chan string
	stop chan struct{}
	done chan struct{}

	stopOnce sync.Once
	mu       sync.Mutex
	closed   bool
	state    atomic.Int32
}

type Option func(*Dump)

// WithCapacity bounds the number of queued names before Send applies backpressure.
func WithCapacity(n int) Option {
	return func(d *Dump) {
		if n > 0 {
			d.ch = make(chan string, n)
		}
	}
}

// WithRemove replaces os.Remove.
func WithRemove(fn func(string) error) Option {
	return func(d *Dump) {
		if fn != nil {
			d.remove = fn
		}
	}
}

// NewDump starts the cleanup worker.
func NewDump(logger *slog.Logger, opts ...Option) *Dump {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dump{
		logger: logger,
		remove: os.Remove,
		ch:     make(chan string, 4096),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	go d.run()
	return d
}

func (d *Dump) run() {
	defer close(d.done)
	d.logger.Debug("cleanup worker started")
	for {
		// a pending stop wins over queued work
		select {
		case <-d.stop:
			d.logger.Warn("cleanup worker stopped before draining", "abandoned", len(d.ch))
			return
		default:
		}
		select {
		case <-d.stop:
			d.logger.Warn("cleanup worker stopped before draining", "abandoned", len(d.ch))
			return
		case name, ok := <-d.ch:
			if !ok {
				d.logger.Debug("cleanup worker drained")
				return
			}
			if err := d.remove(name); err != nil {
				err = common.CleanupError("failed to remove "+name, err)
				d.logger.Warn("cleanup failed", "file", name, "error", err)
			}
		}
	}
}

// Send queues name for deletion. It only blocks when the queue is full.
func (d *Dump) Send(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("cannot send: cleanup is shutting down", "file", name)
		return
	}
	select {
	case d.ch <- name:
	default:
		d.logger.Warn("cleanup queue full, applying backpressure", "file", name)
		d.ch <- name
	}
}

// Shutdown closes the queue and waits for the worker to exit. If ctx ends
// first the worker is told to stop immediately; Shutdown still waits for it.
func (d *Dump) Shutdown(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.state.Store(int32(DumpStopRequested))
	close(d.ch)
	d.mu.Unlock()

	select {
	case <-d.done:
		d.logger.Debug("cleanup drained, shutdown complete")
	case <-ctx.Done():
		d.logger.Warn("cleanup shutdown interrupted by context")
		d.stopOnce.Do(func() { close(d.stop) })
		<-d.done
	}
	d.state.Store(int32(DumpStopped))
}

// State reports where the dump is in its lifecycle.
func (d *Dump) State() DumpState {
	return DumpState(d.state.Load())
}
