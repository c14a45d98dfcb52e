package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	uierrors "github.com/odvcencio/uisync/pkg/errors"
	"github.com/odvcencio/uisync/pkg/logging"
	"github.com/odvcencio/uisync/pkg/mainloop"
	"github.com/odvcencio/uisync/pkg/marshal"
	"github.com/odvcencio/uisync/pkg/mutex"
	"github.com/odvcencio/uisync/pkg/telemetry"
)

type demoOptions struct {
	Workers  int
	Calls    int
	TickRate time.Duration
	Buffer   int
	Logger   *logging.Logger
	Hub      *telemetry.Hub
}

type demoResult struct {
	Calls   int
	Counter int
	// Ticks counts ticks on which the UI thread took the shared mutex.
	Ticks   int64
	Elapsed time.Duration
}

func runDemoCommand(args []string) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	workers := fs.Int("workers", 4, "number of foreign threads")
	calls := fs.Int("calls", 100, "marshaled calls per thread")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitUsage)
	}
	if *workers <= 0 || *calls <= 0 {
		return withExitCode(fmt.Errorf("-workers and -calls must be positive"), exitUsage)
	}

	a, err := newApp(logging.CategoryMarshal)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tickRate := a.cfg.Loop.TickRate
	if tickRate <= 0 {
		tickRate = 5 * time.Millisecond
	}
	res, err := runDemo(ctx, demoOptions{
		Workers:  *workers,
		Calls:    *calls,
		TickRate: tickRate,
		Buffer:   a.cfg.Loop.MessageBuffer,
		Logger:   a.logger,
		Hub:      a.hub,
	})
	if err != nil {
		return withStatusExitCode(err)
	}
	fmt.Printf("%d calls from %d threads in %s (counter=%d, ui lock ticks=%d)\n",
		res.Calls, *workers, res.Elapsed.Round(time.Millisecond), res.Counter, res.Ticks)
	return nil
}

// runDemo runs a UI loop on the calling goroutine while opts.Workers
// attached threads each marshal opts.Calls increments of a counter that
// only the UI thread touches. Workers hold a shared mutex around each call
// and the UI thread takes the same mutex on every tick, so the UI side has
// to pump queued calls to make progress.
func runDemo(ctx context.Context, opts demoOptions) (demoResult, error) {
	var (
		counter int // UI thread only
		ticks   atomic.Int64
	)
	var shared *mutex.Mutex

	loop := mainloop.New(mainloop.Config{
		MessageBuffer: opts.Buffer,
		TickRate:      opts.TickRate,
		Logger:        opts.Logger,
		Hub:           opts.Hub,
		Update: func(_ *mainloop.Loop, msg mainloop.Message) {
			if _, ok := msg.(mainloop.TickMsg); !ok {
				return
			}
			shared.WithLock(func() { ticks.Add(1) })
		},
	})
	shared = mutex.New(loop).WithLogger(opts.Logger)
	rt := marshal.NewRuntime(marshal.Options{
		Loop:     loop,
		Identity: loop.Identity(),
		Logger:   opts.Logger,
		Hub:      opts.Hub,
	})

	start := time.Now()
	workDone := make(chan error, 1)
	runErr := loop.RunMain(ctx, func() {
		// Calls queued before the loop owns its thread would run inline.
		for !loop.Identity().Established() {
			time.Sleep(time.Millisecond)
		}
		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < opts.Workers; w++ {
			g.Go(func() error {
				tc := rt.Attach()
				defer tc.Detach()
				tc.SetColors(&marshal.Color{R: float64(w+1) / float64(opts.Workers), A: 1}, nil)

				last := 0
				for i := 0; i < opts.Calls; i++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					shared.Lock()
					got := marshal.Call(tc, func(d marshal.DrawState) int {
						if d.FG == nil {
							return -1
						}
						counter++
						return counter
					})
					shared.Unlock()
					if got <= last {
						return fmt.Errorf("worker %d: counter went from %d to %d", w, last, got)
					}
					last = got
				}
				return nil
			})
		}
		workDone <- g.Wait()
	})

	res := demoResult{Calls: opts.Workers * opts.Calls, Ticks: ticks.Load(), Elapsed: time.Since(start)}
	if runErr != nil {
		// Workers still blocked on the stopped loop are abandoned.
		return res, uierrors.Wrap(runErr, uierrors.ErrCodeInterrupt, "demo interrupted")
	}
	if err := <-workDone; err != nil {
		return res, err
	}
	// The loop has stopped; the counter is no longer shared.
	res.Counter = counter
	if res.Counter != res.Calls {
		return res, fmt.Errorf("counter is %d after %d calls", res.Counter, res.Calls)
	}
	return res, nil
}
