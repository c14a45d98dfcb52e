package mainloop

import "time"

// Message represents an event flowing into the loop from outside the idle
// queue: timers or background goroutines.
type Message interface {
	isMessage()
}

// TickMsg is delivered on every tick when a tick rate is configured.
type TickMsg struct {
	Time time.Time
}

func (TickMsg) isMessage() {}

// QuitMsg asks the loop to return from Run.
type QuitMsg struct{}

func (QuitMsg) isMessage() {}

// CustomMsg carries an application value through the loop.
type CustomMsg struct {
	Value any
}

func (CustomMsg) isMessage() {}
