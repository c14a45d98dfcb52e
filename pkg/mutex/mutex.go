// Package mutex provides a mutual-exclusion lock that is safe to take on
// the UI thread.
//
// A foreign thread may hold the lock while it waits for a marshaled call
// that sits in the UI thread's idle queue. If the UI thread blocked on the
// lock at that moment neither side could proceed, so on the UI thread Lock
// spins on TryLock and pumps the queue between attempts.
package mutex

import (
	"runtime"
	"sync"
	"time"

	"github.com/odvcencio/uisync/pkg/errors"
	"github.com/odvcencio/uisync/pkg/logging"
	"github.com/odvcencio/uisync/pkg/mainloop"
	"github.com/odvcencio/uisync/pkg/telemetry"
)

const (
	// spinPumps is how many empty pumps yield with Gosched before Lock
	// starts sleeping between attempts.
	spinPumps    = 16
	minPumpSleep = 50 * time.Microsecond
	maxPumpSleep = time.Millisecond
)

// Mutex wraps sync.Mutex with UI-thread reentrancy protection.
type Mutex struct {
	mu     sync.Mutex
	loop   mainloop.Adapter
	logger *logging.Logger
}

// New returns an unlocked mutex bound to loop. A nil loop means no thread
// is ever treated as the UI thread.
func New(loop mainloop.Adapter) *Mutex {
	return &Mutex{loop: loop, logger: logging.Nop()}
}

// WithLogger sets the logger used for pump diagnostics.
func (m *Mutex) WithLogger(logger *logging.Logger) *Mutex {
	m.logger = logging.OrNop(logger).WithCategory(logging.CategoryMutex)
	return m
}

// Lock acquires the mutex. Off the UI thread it blocks; on the UI thread it
// never blocks in the OS and instead drains pending UI work until the lock
// becomes free.
func (m *Mutex) Lock() {
	if m.loop == nil || !m.loop.IsCurrentThreadUIThread() {
		m.mu.Lock()
		return
	}
	idle := 0
	sleep := minPumpSleep
	for !m.mu.TryLock() {
		ran := m.loop.PumpPending(true)
		telemetry.PumpsTotal.Inc()
		m.logger.PumpedForLock(ran)
		if ran {
			idle = 0
			sleep = minPumpSleep
			continue
		}
		// Nothing queued, so the holder is not waiting on us. Yield at
		// first, then back off so a long hold does not burn a core.
		idle++
		if idle <= spinPumps {
			runtime.Gosched()
			continue
		}
		time.Sleep(sleep)
		sleep = min(sleep*2, maxPumpSleep)
	}
}

// TryLock acquires the mutex if it is free. It returns nil on success and
// a TIMEOUT error when the mutex is held.
func (m *Mutex) TryLock() error {
	if m == nil {
		return errors.ErrNonInit
	}
	if m.mu.TryLock() {
		return nil
	}
	return errors.ErrTimeout
}

// Unlock releases the mutex.
func (m *Mutex) Unlock() {
	m.mu.Unlock()
}

// WithLock runs fn while holding the mutex. The mutex is released even if fn panics.
func (m *Mutex) WithLock(fn func()) {
	m.Lock()
	defer m.Unlock()
	fn()
}

// Close releases resources held by the mutex. The mutex must be unlocked.
func (m *Mutex) Close() error {
	if m == nil {
		return errors.ErrNonInit
	}
	m.loop = nil
	return nil
}
