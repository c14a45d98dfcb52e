package marshal_test

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"

	uierrors "github.com/odvcencio/uisync/pkg/errors"
	"github.com/odvcencio/uisync/pkg/mainloop"
	"github.com/odvcencio/uisync/pkg/mainloop/mocks"
	"github.com/odvcencio/uisync/pkg/marshal"
	"github.com/odvcencio/uisync/pkg/mutex"
	"github.com/odvcencio/uisync/pkg/thread"
)

func startLoop(t *testing.T) *mainloop.Loop {
	t.Helper()
	loop := mainloop.New(mainloop.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	require.Eventually(t, loop.Identity().Established, time.Second, time.Millisecond)
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

func newRuntime(loop *mainloop.Loop) *marshal.Runtime {
	return marshal.NewRuntime(marshal.Options{Loop: loop, Identity: loop.Identity()})
}

// onForeignThread runs fn on a fresh attached goroutine and waits for it.
func onForeignThread(t *testing.T, rt *marshal.Runtime, fn func(tc *marshal.ThreadContext)) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		tc := rt.Attach()
		defer tc.Detach()
		fn(tc)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("foreign thread did not finish")
	}
}

func TestCall_InlineOnUIThreadEnqueuesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	loop := mocks.NewMockAdapter(ctrl)
	loop.EXPECT().IsCurrentThreadUIThread().Return(true).AnyTimes()
	loop.EXPECT().EnqueueIdle(gomock.Any(), gomock.Any()).Times(0)

	rt := marshal.NewRuntime(marshal.Options{Loop: loop})
	tc := rt.Attach()
	defer tc.Detach()

	got := marshal.Call(tc, func(marshal.DrawState) int { return 7 })
	assert.Equal(t, 7, got)
}

func TestCall_InlineBeforeUIThreadExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	loop := mocks.NewMockAdapter(ctrl)
	loop.EXPECT().IsCurrentThreadUIThread().Return(false).AnyTimes()
	loop.EXPECT().EnqueueIdle(gomock.Any(), gomock.Any()).Times(0)

	rt := marshal.NewRuntime(marshal.Options{Loop: loop, Identity: &thread.Identity{}})
	tc := rt.Attach()
	defer tc.Detach()

	got := marshal.Call(tc, func(marshal.DrawState) string { return "early" })
	assert.Equal(t, "early", got)
}

func TestCall_ForeignEnqueuesAtHighPriority(t *testing.T) {
	ctrl := gomock.NewController(t)
	loop := mocks.NewMockAdapter(ctrl)
	loop.EXPECT().IsCurrentThreadUIThread().Return(false).AnyTimes()
	loop.EXPECT().EnqueueIdle(mainloop.PriorityHigh, gomock.Any()).
		Do(func(_ mainloop.Priority, task func()) { go task() }).
		Times(1)

	rt := marshal.NewRuntime(marshal.Options{Loop: loop})
	tc := rt.Attach()
	defer tc.Detach()

	got := marshal.Call(tc, func(marshal.DrawState) int { return 42 })
	assert.Equal(t, 42, got)
}

func TestCall_ForeignRunsOnceOnUIThread(t *testing.T) {
	loop := startLoop(t)
	rt := newRuntime(loop)

	var runs atomic.Int32
	var onUI atomic.Bool
	var got int
	onForeignThread(t, rt, func(tc *marshal.ThreadContext) {
		got = marshal.Call(tc, func(marshal.DrawState) int {
			onUI.Store(loop.IsCurrentThreadUIThread())
			return int(runs.Add(1)) * 10
		})
	})

	assert.Equal(t, 10, got)
	assert.Equal(t, int32(1), runs.Load())
	assert.True(t, onUI.Load(), "operation must run on the UI thread")
}

func TestCall_FIFOPerCallingThread(t *testing.T) {
	loop := startLoop(t)
	rt := newRuntime(loop)

	const workers, calls = 4, 25
	seen := make(map[int][]int) // only touched on the UI thread

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			tc := rt.Attach()
			defer tc.Detach()
			for i := 0; i < calls; i++ {
				marshal.Do(tc, func(marshal.DrawState) {
					seen[w] = append(seen[w], i)
				})
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var total int
	onForeignThread(t, rt, func(tc *marshal.ThreadContext) {
		marshal.Do(tc, func(marshal.DrawState) {
			for w := 0; w < workers; w++ {
				total += len(seen[w])
				for i, v := range seen[w] {
					assert.Equal(t, i, v, "worker %d out of order", w)
				}
			}
		})
	})
	assert.Equal(t, workers*calls, total)
}

func TestCall_ReentrantOnUIThread(t *testing.T) {
	loop := startLoop(t)
	rt := newRuntime(loop)

	var got string
	onForeignThread(t, rt, func(tc *marshal.ThreadContext) {
		got = marshal.Call(tc, func(marshal.DrawState) string {
			return "outer/" + marshal.Call(tc, func(marshal.DrawState) string { return "inner" })
		})
	})
	assert.Equal(t, "outer/inner", got)
}

func TestCall_UsesCallerColors(t *testing.T) {
	loop := startLoop(t)
	rt := newRuntime(loop)

	var seen marshal.DrawState
	var after marshal.DrawState
	onForeignThread(t, rt, func(tc *marshal.ThreadContext) {
		tc.SetColors(&marshal.Color{R: 1, A: 1}, nil)
		marshal.Do(tc, func(d marshal.DrawState) {
			if d.FG != nil {
				fg := *d.FG
				seen.FG = &fg
			}
			seen.BG = d.BG
			d.FG.R = 0
		})
		after = tc.DrawState()
	})

	require.NotNil(t, seen.FG)
	assert.Equal(t, 1.0, seen.FG.R)
	assert.Nil(t, seen.BG)
	require.NotNil(t, after.FG)
	assert.Equal(t, 1.0, after.FG.R, "operation must not mutate the caller's colors")
}

func TestCallErr_RelaysError(t *testing.T) {
	loop := startLoop(t)
	rt := newRuntime(loop)
	sentinel := stderrors.New("widget destroyed")

	var (
		v   int
		err error
	)
	onForeignThread(t, rt, func(tc *marshal.ThreadContext) {
		v, err = marshal.CallErr(tc, func(marshal.DrawState) (int, error) {
			return 3, sentinel
		})
	})
	assert.Equal(t, 3, v)
	assert.ErrorIs(t, err, sentinel)
}

func TestCall_PanicIsRaisedInCaller(t *testing.T) {
	loop := startLoop(t)
	rt := newRuntime(loop)

	var recovered any
	onForeignThread(t, rt, func(tc *marshal.ThreadContext) {
		func() {
			defer func() { recovered = recover() }()
			marshal.Do(tc, func(marshal.DrawState) { panic("boom") })
		}()
	})

	perr, ok := recovered.(*marshal.PanicError)
	require.True(t, ok, "expected *PanicError, got %T", recovered)
	assert.Equal(t, "boom", perr.Value)
	assert.NotEmpty(t, perr.Stack)

	// The loop survives and keeps serving calls.
	var got int
	onForeignThread(t, rt, func(tc *marshal.ThreadContext) {
		got = marshal.Call(tc, func(marshal.DrawState) int { return 1 })
	})
	assert.Equal(t, 1, got)
}

func TestCall_DetachedContextPanicsInsteadOfReturning(t *testing.T) {
	ctrl := gomock.NewController(t)
	loop := mocks.NewMockAdapter(ctrl)
	loop.EXPECT().IsCurrentThreadUIThread().Return(false).AnyTimes()
	// The queued task is never run, so only the wait event can end the call.
	loop.EXPECT().EnqueueIdle(mainloop.PriorityHigh, gomock.Any()).AnyTimes()

	rt := marshal.NewRuntime(marshal.Options{Loop: loop})
	tc := rt.Attach()
	tc.Detach()

	var recovered any
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { recovered = recover() }()
		marshal.Call(tc, func(marshal.DrawState) int { return 1 })
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("call through a detached context blocked")
	}

	err, ok := recovered.(error)
	require.True(t, ok, "expected an error panic, got %T", recovered)
	assert.True(t, uierrors.IsCode(err, uierrors.ErrCodeGeneral))
}

func TestCall_MutexHeldByForeignCallerDoesNotDeadlockUI(t *testing.T) {
	loop := startLoop(t)
	rt := newRuntime(loop)
	m := mutex.New(loop)

	uiAcquired := make(chan struct{})
	var got int
	onForeignThread(t, rt, func(tc *marshal.ThreadContext) {
		m.Lock()
		loop.EnqueueIdle(mainloop.PriorityDefault, func() {
			m.Lock()
			m.Unlock()
			close(uiAcquired)
		})
		time.Sleep(20 * time.Millisecond)
		got = marshal.Call(tc, func(marshal.DrawState) int { return 5 })
		m.Unlock()
	})

	assert.Equal(t, 5, got)
	select {
	case <-uiAcquired:
	case <-time.After(2 * time.Second):
		t.Fatal("UI thread never acquired the mutex")
	}
}

func TestAttach_RefCountsPerThread(t *testing.T) {
	rt := marshal.NewRuntime(marshal.Options{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tc := rt.Attach()
		again := rt.Attach()
		assert.Same(t, tc, again)
		assert.Same(t, tc, rt.Current())
		assert.Equal(t, 1, rt.Attached())
		assert.NotZero(t, tc.ThreadID())

		again.Detach()
		assert.Equal(t, 1, rt.Attached(), "still attached after one detach")
		tc.Detach()
		assert.Equal(t, 0, rt.Attached())
	}()
	wg.Wait()
}

func TestAttach_DistinctThreadsGetDistinctContexts(t *testing.T) {
	rt := marshal.NewRuntime(marshal.Options{})

	ready := make(chan *marshal.ThreadContext, 2)
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tc := rt.Attach()
			defer tc.Detach()
			ready <- tc
			<-release
		}()
	}
	a, b := <-ready, <-ready
	assert.NotSame(t, a, b)
	assert.NotEqual(t, a.ThreadID(), b.ThreadID())
	assert.Equal(t, 2, rt.Attached())
	close(release)
	wg.Wait()
	assert.Equal(t, 0, rt.Attached())
}

func TestCall_NoLoopRunsInline(t *testing.T) {
	rt := marshal.NewRuntime(marshal.Options{})
	onForeignThread(t, rt, func(tc *marshal.ThreadContext) {
		tc.SetColors(nil, &marshal.Color{B: 1})
		d := marshal.Call(tc, func(d marshal.DrawState) marshal.DrawState { return d })
		assert.Nil(t, d.FG)
		require.NotNil(t, d.BG)
		assert.Equal(t, 1.0, d.BG.B)
	})
}
