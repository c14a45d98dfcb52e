// Package event provides a process-local manual-reset event.
//
// Once posted, an Event satisfies every Wait until it is explicitly Reset.
// Reset releases the threads already blocked in Wait before clearing the
// posted state, so no waiter straddles a reset.
package event

import (
	"sync"
	"time"

	"github.com/odvcencio/uisync/pkg/errors"
)

// Infinite makes Wait block until the event is posted, reset or closed.
const Infinite time.Duration = -1

var errClosed = errors.New(errors.ErrCodeGeneral, "event is closed")

// Event is a manual-reset wait/signal primitive built on a mutex and a
// condition variable.
type Event struct {
	mu     sync.Mutex
	cond   *sync.Cond
	posted bool
	closed bool
	// resets counts Reset calls so a waiter can tell it was released by one.
	resets uint64
}

// New returns an unposted event.
func New() *Event {
	e := &Event{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Post marks the event posted and wakes all waiters.
func (e *Event) Post() error {
	if e == nil || e.cond == nil {
		return errors.ErrNonInit
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errClosed
	}
	e.posted = true
	e.cond.Broadcast()
	return nil
}

// Reset wakes every current waiter, then clears the posted state.
func (e *Event) Reset() error {
	if e == nil || e.cond == nil {
		return errors.ErrNonInit
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errClosed
	}
	e.resets++
	e.cond.Broadcast()
	e.posted = false
	return nil
}

// Wait blocks until the event is posted or timeout elapses. An already
// posted event returns immediately. A waiter released by Reset returns nil,
// as does any successful wake. Pass Infinite to wait without a deadline; a
// zero timeout polls.
func (e *Event) Wait(timeout time.Duration) error {
	if e == nil || e.cond == nil {
		return errors.ErrNonInit
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errClosed
	}
	if e.posted {
		return nil
	}
	if timeout == 0 {
		return errors.ErrTimeout
	}

	expired := false
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			e.mu.Lock()
			expired = true
			e.cond.Broadcast()
			e.mu.Unlock()
		})
		defer timer.Stop()
	}

	resets := e.resets
	for !e.posted && !e.closed && !expired && resets == e.resets {
		e.cond.Wait()
	}

	switch {
	case e.posted, resets != e.resets:
		return nil
	case e.closed:
		return errClosed
	default:
		return errors.ErrTimeout
	}
}

// TryWait reports whether the event is posted without blocking.
func (e *Event) TryWait() bool {
	return e.Wait(0) == nil
}

// IsPosted reports the current posted state.
func (e *Event) IsPosted() bool {
	if e == nil || e.cond == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.posted
}

// Close releases all waiters with a GENERAL failure. Further operations on
// the event fail.
func (e *Event) Close() error {
	if e == nil || e.cond == nil {
		return errors.ErrNonInit
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.cond.Broadcast()
	return nil
}
