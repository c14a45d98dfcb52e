// Package marshal runs UI operations on the UI thread on behalf of any
// attached thread and hands the result back to the caller.
//
// A foreign caller enqueues its operation at high priority on the main loop
// and blocks on its own wait event until the UI thread has run it. On the UI
// thread, or before any UI thread exists, operations run inline.
package marshal

import (
	"sync"

	"github.com/odvcencio/uisync/pkg/event"
	"github.com/odvcencio/uisync/pkg/logging"
	"github.com/odvcencio/uisync/pkg/mainloop"
	"github.com/odvcencio/uisync/pkg/namedevent"
	"github.com/odvcencio/uisync/pkg/telemetry"
	"github.com/odvcencio/uisync/pkg/thread"
)

// Options configures a Runtime.
type Options struct {
	// Loop is where foreign calls are queued. Required.
	Loop mainloop.Adapter
	// Identity tells whether a UI thread exists yet. When nil the loop is
	// assumed to be running and every foreign call is queued.
	Identity *thread.Identity
	// Events is the process's named-event registry, if any.
	Events *namedevent.Service
	Logger *logging.Logger
	Hub    *telemetry.Hub
}

// Runtime is the process-wide state shared by every attached thread: the
// main loop, the UI thread identity and the per-thread contexts.
type Runtime struct {
	loop     mainloop.Adapter
	identity *thread.Identity
	events   *namedevent.Service
	logger   *logging.Logger
	hub      *telemetry.Hub

	mu      sync.RWMutex
	threads map[int64]*ThreadContext
}

// NewRuntime creates a runtime around opts.Loop.
func NewRuntime(opts Options) *Runtime {
	return &Runtime{
		loop:     opts.Loop,
		identity: opts.Identity,
		events:   opts.Events,
		logger:   logging.OrNop(opts.Logger).WithCategory(logging.CategoryMarshal),
		hub:      opts.Hub,
		threads:  make(map[int64]*ThreadContext),
	}
}

// Loop returns the adapter calls are marshaled through.
func (r *Runtime) Loop() mainloop.Adapter {
	return r.loop
}

// Events returns the named-event registry, or nil.
func (r *Runtime) Events() *namedevent.Service {
	return r.events
}

// Attach pins the calling goroutine to its OS thread and returns the
// thread's context, creating it on first use. Every Attach must be paired
// with a Detach on the same goroutine before it exits.
func (r *Runtime) Attach() *ThreadContext {
	tid := thread.Pin()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tc, ok := r.threads[tid]; ok {
		tc.refs++
		return tc
	}
	tc := &ThreadContext{
		rt:   r,
		tid:  tid,
		wait: event.New(),
		refs: 1,
	}
	r.threads[tid] = tc
	telemetry.AttachedThreads.Inc()
	r.logger.WithThread(tid).Debug("thread attached")
	return tc
}

// Current returns the context attached to the calling thread, or nil.
// Only meaningful on a goroutine that is still attached.
func (r *Runtime) Current() *ThreadContext {
	tid := thread.ID()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threads[tid]
}

// Attached returns the number of threads holding a context.
func (r *Runtime) Attached() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.threads)
}

// Close shuts down the named-event registry. Attached threads are left to
// detach themselves.
func (r *Runtime) Close() error {
	if r.events == nil {
		return nil
	}
	return r.events.Close()
}

func (r *Runtime) detach(tc *ThreadContext) {
	r.mu.Lock()
	tc.refs--
	last := tc.refs == 0
	if last {
		if r.threads[tc.tid] == tc {
			delete(r.threads, tc.tid)
		}
		telemetry.AttachedThreads.Dec()
	}
	r.mu.Unlock()

	if last {
		tc.mu.Lock()
		tc.fg, tc.bg = nil, nil
		tc.mu.Unlock()
		_ = tc.wait.Close()
		r.logger.WithThread(tc.tid).Debug("thread detached")
	}
	thread.Unpin()
}

// inline reports whether an operation may run on the calling thread.
func (r *Runtime) inline() bool {
	if r.loop == nil {
		return true
	}
	if r.loop.IsCurrentThreadUIThread() {
		return true
	}
	return r.identity != nil && !r.identity.Established()
}
