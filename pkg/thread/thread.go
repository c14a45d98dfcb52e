// Package thread identifies OS threads and records which one is the UI thread.
//
// Goroutines are not threads. Code that needs a stable identity must pin
// itself with runtime.LockOSThread before calling ID; the UI loop and
// attached thread contexts both do.
package thread

import (
	"runtime"
	"sync/atomic"
)

// Identity records the id of the single thread allowed to touch UI state.
// The zero value has no UI thread established.
type Identity struct {
	id atomic.Int64
}

// Establish records the calling thread as the UI thread and returns its id.
// Callers must already hold runtime.LockOSThread.
func (i *Identity) Establish() int64 {
	id := ID()
	i.id.Store(id)
	return id
}

// Release forgets the UI thread, but only if it is still id.
func (i *Identity) Release(id int64) {
	i.id.CompareAndSwap(id, 0)
}

// Established reports whether some thread has been recorded.
func (i *Identity) Established() bool {
	return i != nil && i.id.Load() != 0
}

// Current reports whether the calling thread is the recorded UI thread.
func (i *Identity) Current() bool {
	if i == nil {
		return false
	}
	id := i.id.Load()
	return id != 0 && id == ID()
}

// Load returns the recorded UI thread id, or 0.
func (i *Identity) Load() int64 {
	if i == nil {
		return 0
	}
	return i.id.Load()
}

// Pin locks the calling goroutine to its OS thread and returns the thread id.
// Every Pin must be matched by an Unpin on the same goroutine.
func Pin() int64 {
	runtime.LockOSThread()
	return ID()
}

// Unpin undoes one Pin.
func Unpin() {
	runtime.UnlockOSThread()
}
