// Package mainloop defines what the synchronization core needs from a UI
// event loop and provides a loop that satisfies it.
package mainloop

//go:generate mockgen -package=mocks -destination=mocks/mock_adapter.go github.com/odvcencio/uisync/pkg/mainloop Adapter

// Priority orders idle tasks. High-priority tasks run before default ones
// on the same loop pass; within a priority tasks run in enqueue order.
type Priority int

const (
	PriorityDefault Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "default"
}

// Adapter is the main loop as seen by the marshaler and the mutex.
type Adapter interface {
	// EnqueueIdle schedules task to run once on the next loop pass, on the
	// UI thread. Safe from any thread.
	EnqueueIdle(priority Priority, task func())

	// IsCurrentThreadUIThread reports whether the caller runs on the UI thread.
	IsCurrentThreadUIThread() bool

	// PumpPending runs the work queued at the time of the call and reports
	// whether anything ran. With nonblocking false it first waits for work.
	PumpPending(nonblocking bool) bool
}
