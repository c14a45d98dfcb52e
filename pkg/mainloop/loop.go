package mainloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odvcencio/uisync/pkg/logging"
	"github.com/odvcencio/uisync/pkg/telemetry"
	"github.com/odvcencio/uisync/pkg/thread"
)

// ErrLoopRunning is returned when Run is called on a loop that is already running.
var ErrLoopRunning = errors.New("mainloop: loop is already running")

// UpdateFunc handles a message posted to the loop. It runs on the UI thread.
type UpdateFunc func(loop *Loop, msg Message)

// Config configures a Loop.
type Config struct {
	// Identity records the UI thread. Run establishes it; a nil Identity
	// gets a private one.
	Identity      *thread.Identity
	Update        UpdateFunc
	MessageBuffer int
	TickRate      time.Duration
	Logger        *logging.Logger
	Hub           *telemetry.Hub
}

// Loop is a single-threaded event loop. The goroutine that calls Run is
// pinned to its OS thread and becomes the UI thread for the duration.
type Loop struct {
	identity *thread.Identity
	update   UpdateFunc
	messages chan Message
	tickRate time.Duration
	logger   *logging.Logger
	hub      *telemetry.Hub

	mu   sync.Mutex
	high []func()
	low  []func()
	wake chan struct{}

	running atomic.Bool
	quit    chan struct{}
	quitMu  sync.Mutex
}

// New creates a new Loop from config.
func New(cfg Config) *Loop {
	bufferSize := cfg.MessageBuffer
	if bufferSize <= 0 {
		bufferSize = 128
	}
	identity := cfg.Identity
	if identity == nil {
		identity = &thread.Identity{}
	}
	return &Loop{
		identity: identity,
		update:   cfg.Update,
		messages: make(chan Message, bufferSize),
		tickRate: cfg.TickRate,
		logger:   logging.OrNop(cfg.Logger).WithCategory(logging.CategoryLoop),
		hub:      cfg.Hub,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
}

// Identity returns the UI thread identity this loop establishes.
func (l *Loop) Identity() *thread.Identity {
	return l.identity
}

// Running reports whether Run is active.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Post sends a message to the event loop. Drops the message if the buffer is full.
func (l *Loop) Post(msg Message) {
	select {
	case l.messages <- msg:
	default:
	}
}

// Quit makes Run return after the current pass. Safe from any thread and
// idempotent; a quit loop does not run again.
func (l *Loop) Quit() {
	l.quitMu.Lock()
	defer l.quitMu.Unlock()
	select {
	case <-l.quit:
	default:
		close(l.quit)
	}
}

// EnqueueIdle implements Adapter. The queue is unbounded: it never drops a
// task and never blocks the caller.
func (l *Loop) EnqueueIdle(priority Priority, task func()) {
	if task == nil {
		return
	}
	l.mu.Lock()
	if priority == PriorityHigh {
		l.high = append(l.high, task)
	} else {
		l.low = append(l.low, task)
	}
	telemetry.IdleQueueDepth.WithLabelValues(priority.String()).Inc()
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// IsCurrentThreadUIThread implements Adapter.
func (l *Loop) IsCurrentThreadUIThread() bool {
	return l.identity.Current()
}

// PumpPending implements Adapter. It does nothing off the UI thread.
func (l *Loop) PumpPending(nonblocking bool) bool {
	if !l.identity.Current() {
		return false
	}
	if ran := l.runPending(); ran || nonblocking {
		return ran
	}
	select {
	case <-l.wake:
	case <-l.quit:
		return false
	}
	return l.runPending()
}

// Run starts the event loop until Quit, a QuitMsg or context cancellation.
func (l *Loop) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)

	thread.Pin()
	defer thread.Unpin()
	tid := l.identity.Establish()
	defer l.identity.Release(tid)

	l.logger.WithThread(tid).Info("loop started")
	l.hub.Publish(telemetry.Event{Type: telemetry.EventLoopStarted, Data: map[string]any{"thread_id": tid}})
	defer l.hub.Publish(telemetry.Event{Type: telemetry.EventLoopStopped})

	var ticks <-chan time.Time
	if l.tickRate > 0 {
		ticker := time.NewTicker(l.tickRate)
		defer ticker.Stop()
		ticks = ticker.C
	}

	// Work queued before Run started is due on the first pass.
	l.runPending()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.quit:
			return nil
		case <-l.wake:
			l.runPending()
		case msg := <-l.messages:
			if _, ok := msg.(QuitMsg); ok {
				l.Quit()
				continue
			}
			l.dispatch(msg)
		case now := <-ticks:
			l.dispatch(TickMsg{Time: now})
		}
	}
}

// RunMain runs the loop on the calling goroutine while fn runs on another,
// and returns once fn returns. Call it from main.main after locking the
// main OS thread when the platform requires UI work on the process's
// first thread.
func (l *Loop) RunMain(ctx context.Context, fn func()) error {
	go func() {
		defer l.Quit()
		fn()
	}()
	return l.Run(ctx)
}

// runPending runs exactly the tasks queued when it was called, high
// priority first. Tasks enqueued meanwhile wait for the next pass.
func (l *Loop) runPending() bool {
	l.mu.Lock()
	high, low := l.high, l.low
	l.high, l.low = nil, nil
	telemetry.IdleQueueDepth.WithLabelValues(PriorityHigh.String()).Sub(float64(len(high)))
	telemetry.IdleQueueDepth.WithLabelValues(PriorityDefault.String()).Sub(float64(len(low)))
	l.mu.Unlock()

	for _, task := range high {
		l.runTask(task)
	}
	for _, task := range low {
		l.runTask(task)
	}
	return len(high)+len(low) > 0
}

func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("idle task panicked", slog.String("panic", fmt.Sprint(r)))
		}
	}()
	task()
}

func (l *Loop) dispatch(msg Message) {
	if l.update == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("update panicked", slog.String("panic", fmt.Sprint(r)))
		}
	}()
	l.update(l, msg)
}
