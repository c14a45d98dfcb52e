package marshal

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/odvcencio/uisync/pkg/errors"
	"github.com/odvcencio/uisync/pkg/event"
	"github.com/odvcencio/uisync/pkg/mainloop"
	"github.com/odvcencio/uisync/pkg/telemetry"
)

type frameState int32

const (
	stateIdle frameState = iota
	stateQueued
	stateExecuting
	stateCompleted
)

func (s frameState) String() string {
	switch s {
	case stateQueued:
		return "queued"
	case stateExecuting:
		return "executing"
	case stateCompleted:
		return "completed"
	default:
		return "idle"
	}
}

// PanicError is what a caller panics with when its operation panicked on
// the UI thread.
type PanicError struct {
	Value any
	// Stack is the UI thread's stack at the time of the panic.
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("marshaled call panicked: %v", p.Value)
}

func (p *PanicError) Unwrap() error {
	err, _ := p.Value.(error)
	return err
}

// frame carries one marshaled call between the caller and the UI thread.
// The caller owns it; the UI thread only touches it between the queued and
// completed states.
type frame[R any] struct {
	id    string
	state atomic.Int32
	draw  DrawState
	op    func(DrawState) R

	result   R
	panicked *PanicError
}

// execute runs the operation at most once and posts done when finished.
func (f *frame[R]) execute(done *event.Event) {
	if !f.state.CompareAndSwap(int32(stateQueued), int32(stateExecuting)) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			f.panicked = &PanicError{Value: r, Stack: debug.Stack()}
		}
		f.state.Store(int32(stateCompleted))
		_ = done.Post()
	}()
	f.result = f.op(f.draw)
}

// Call runs op on the UI thread and returns its result.
//
// tc must be the context attached on the calling thread. On the UI thread,
// or while no UI thread exists, op runs inline, so Call is re-entrant.
// Otherwise the caller blocks until the UI loop has run op; there is no
// timeout and op runs at most once. op always sees the caller's colors.
//
// If op panics on the UI thread, Call panics in the caller with a
// *PanicError. Calling through a detached context panics with a GENERAL
// *errors.Error.
func Call[R any](tc *ThreadContext, op func(DrawState) R) R {
	rt := tc.rt
	draw := tc.DrawState()
	if rt.inline() {
		telemetry.CallsTotal.WithLabelValues("inline").Inc()
		return op(draw)
	}

	f := &frame[R]{
		id:   ulid.Make().String(),
		draw: draw,
		op:   op,
	}
	_, span := telemetry.StartSpan(context.Background(), "marshal.call",
		trace.WithAttributes(
			telemetry.AttrCallID.String(f.id),
			telemetry.AttrThreadID.Int64(tc.tid),
		),
	)
	defer span.End()

	start := time.Now()
	_ = tc.wait.Reset()
	f.state.Store(int32(stateQueued))
	rt.logger.CallQueued(f.id, tc.tid)
	rt.loop.EnqueueIdle(mainloop.PriorityHigh, func() { f.execute(tc.wait) })
	if err := tc.wait.Wait(event.Infinite); err != nil {
		// The frame may still be running; its result cannot be read.
		span.RecordError(err)
		panic(errors.Wrap(err, errors.ErrCodeGeneral, "marshaled call abandoned: wait event unusable").
			WithContext("call_id", f.id))
	}

	elapsed := time.Since(start)
	telemetry.CallsTotal.WithLabelValues("queued").Inc()
	telemetry.CallLatency.Observe(elapsed.Seconds())
	rt.logger.CallCompleted(f.id, float64(elapsed.Microseconds())/1000)
	rt.hub.Publish(telemetry.Event{
		Type: telemetry.EventCallCompleted,
		Data: map[string]any{
			"call_id":     f.id,
			"thread_id":   tc.tid,
			"state":       frameState(f.state.Load()).String(),
			"duration_ms": elapsed.Milliseconds(),
		},
	})

	if f.panicked != nil {
		span.RecordError(f.panicked)
		panic(f.panicked)
	}
	return f.result
}

// Do is Call for operations without a result.
func Do(tc *ThreadContext, op func(DrawState)) {
	Call(tc, func(d DrawState) struct{} {
		op(d)
		return struct{}{}
	})
}

// CallErr is Call for operations that also return an error. The error is
// relayed unchanged.
func CallErr[R any](tc *ThreadContext, op func(DrawState) (R, error)) (R, error) {
	out := Call(tc, func(d DrawState) outcome[R] {
		v, err := op(d)
		return outcome[R]{value: v, err: err}
	})
	return out.value, out.err
}

type outcome[R any] struct {
	value R
	err   error
}
