// Package worker holds BaseWorker, the small struct every pipeline stage
// embeds so bus wiring and lifecycle tracking aren't reimplemented per
// stage.
package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/stopdesign/buratino/pkg/bus"
)

// BaseWorker tracks running state, remembers the event kinds a stage has
// subscribed to, and exposes the bus through Emit/Subscribe so concrete
// workers never touch *bus.Bus directly.
type BaseWorker struct {
	Bus *bus.Bus

	mu      sync.Mutex
	kinds   []string
	running atomic.Bool
}

// New wires a BaseWorker onto b.
func New(b *bus.Bus) BaseWorker {
	return BaseWorker{Bus: b}
}

// Subscribe registers fn for kind on the worker's bus and remembers kind
// was subscribed to.
func (w *BaseWorker) Subscribe(kind string, fn func(bus.Event)) {
	w.mu.Lock()
	w.kinds = append(w.kinds, kind)
	w.mu.Unlock()
	w.Bus.Subscribe(kind, fn)
}

// Emit publishes payload under kind on the worker's bus.
func (w *BaseWorker) Emit(kind string, payload interface{}) {
	w.Bus.Publish(kind, payload)
}

// Start marks the worker running. Embedding types call this from their own
// Start and add whatever goroutines/context handling they need.
func (w *BaseWorker) Start(ctx context.Context) {
	w.running.Store(true)
}

// Stop marks the worker no longer running.
func (w *BaseWorker) Stop() {
	w.running.Store(false)
}

// Running reports whether Start has run without a matching Stop.
func (w *BaseWorker) Running() bool {
	return w.running.Load()
}

// Kinds reports the event kinds subscribed to so far, in subscription
// order.
func (w *BaseWorker) Kinds() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.kinds))
	copy(out, w.kinds)
	return out
}
