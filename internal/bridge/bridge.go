// Package bridge routes engine callbacks, which arrive on engine threads,
// into per-session event queues.
//
// The engine only ever sees an opaque spx.Context token. The token is looked
// up in a Registry on every callback; once a session tears down its token
// is removed and any later callback carrying it is dropped and its event
// handle released. Tokens are never reused.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nupi-ai/plugin-stt-azure-speech/internal/events"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/handle"
	"github.com/nupi-ai/plugin-stt-azure-speech/internal/spx"
)

// Observer receives delivery counters. telemetry.Recorder implements it.
type Observer interface {
	EventDelivered()
	CallbackDropped()
}

// Registry maps live context tokens to their sessions.
type Registry struct {
	api      events.API
	log      *slog.Logger
	observer Observer

	next  atomic.Uint64
	sinks sync.Map // spx.Context -> *Registration
}

// NewRegistry constructs an empty registry. observer may be nil.
func NewRegistry(api events.API, logger *slog.Logger, observer Observer) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		api:      api,
		log:      logger.With("component", "bridge"),
		observer: observer,
	}
}

// Register allocates a token for one session. The same token is shared by
// every category the session registers.
func (r *Registry) Register() *Registration {
	token := spx.Context(r.next.Add(1))
	reg := &Registration{
		registry: r,
		token:    token,
		queue:    newQueue[*events.Event](),
	}
	r.sinks.Store(token, reg)
	r.log.Debug("context registered", "token", uint64(token))
	return reg
}

// Len returns the number of live tokens.
func (r *Registry) Len() int {
	n := 0
	r.sinks.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// Trampoline returns the callback registered with the engine for category
// c. It never blocks and never panics into the engine.
func (r *Registry) Trampoline(c spx.Category) spx.Callback {
	return func(source, event spx.Handle, ctx spx.Context) {
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("callback panicked", "category", c.String(), "panic", p)
			}
		}()

		v, ok := r.sinks.Load(ctx)
		if !ok {
			r.drop(c, event, ctx)
			return
		}
		reg := v.(*Registration)
		evt := events.NewEvent(r.api, c, source, event, r.log)
		if !reg.queue.push(evt) {
			evt.Close()
			r.dropped(c, ctx)
			return
		}
		if r.observer != nil {
			r.observer.EventDelivered()
		}
	}
}

func (r *Registry) drop(c spx.Category, event spx.Handle, ctx spx.Context) {
	handle.New(r.api, c.EventFamily(), event, r.log).Release()
	r.dropped(c, ctx)
}

func (r *Registry) dropped(c spx.Category, ctx spx.Context) {
	r.log.Debug("late callback dropped", "category", c.String(), "token", uint64(ctx))
	if r.observer != nil {
		r.observer.CallbackDropped()
	}
}

// Registration is the consumer side of one session's callbacks.
type Registration struct {
	registry *Registry
	token    spx.Context
	queue    *queue[*events.Event]
	closed   atomic.Bool
}

// Context returns the token handed to the engine.
func (g *Registration) Context() spx.Context {
	return g.token
}

// Recv blocks for the next event. It returns io.EOF after Close once all
// buffered events have been read.
func (g *Registration) Recv(ctx context.Context) (*events.Event, error) {
	return g.queue.pop(ctx)
}

// TryRecv returns the next buffered event, spx.ErrWouldBlock if none is
// ready, or io.EOF after Close.
func (g *Registration) TryRecv() (*events.Event, error) {
	return g.queue.tryPop()
}

// Pending returns the number of buffered events.
func (g *Registration) Pending() int {
	return g.queue.len()
}

// Close removes the token so later callbacks are dropped, then closes the
// queue. Events already buffered stay readable.
func (g *Registration) Close() {
	if !g.closed.CompareAndSwap(false, true) {
		return
	}
	g.registry.sinks.Delete(g.token)
	g.queue.close()
	g.registry.log.Debug("context unregistered", "token", uint64(g.token), "pending", g.queue.len())
}
