package marshal

import (
	"sync"

	"github.com/odvcencio/uisync/pkg/event"
)

// Color is an RGBA drawing color with components in [0, 1].
type Color struct {
	R, G, B, A float64
}

// DrawState is the caller's drawing state handed to a marshaled operation.
// A nil color means unset.
type DrawState struct {
	FG *Color
	BG *Color
}

// ThreadContext is the per-thread state of an attached thread: its wait
// event and its drawing colors. It belongs to the thread that attached it.
type ThreadContext struct {
	rt   *Runtime
	tid  int64
	wait *event.Event
	refs int

	mu     sync.Mutex
	fg, bg *Color
}

// ThreadID returns the OS thread id the context was attached on.
func (tc *ThreadContext) ThreadID() int64 {
	return tc.tid
}

// Runtime returns the runtime the context belongs to.
func (tc *ThreadContext) Runtime() *Runtime {
	return tc.rt
}

// SetColors replaces the thread's drawing colors. nil unsets a color.
func (tc *ThreadContext) SetColors(fg, bg *Color) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.fg = copyColor(fg)
	tc.bg = copyColor(bg)
}

// DrawState returns a copy of the thread's current drawing state.
func (tc *ThreadContext) DrawState() DrawState {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return DrawState{FG: copyColor(tc.fg), BG: copyColor(tc.bg)}
}

// Detach undoes one Attach. The last Detach releases the colors, closes the
// wait event and unregisters the context.
func (tc *ThreadContext) Detach() {
	tc.rt.detach(tc)
}

func copyColor(c *Color) *Color {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
