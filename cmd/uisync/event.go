package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odvcencio/uisync/pkg/event"
	"github.com/odvcencio/uisync/pkg/logging"
	"github.com/odvcencio/uisync/pkg/namedevent"
)

// holdUntil blocks a foreground `event create` until interrupted. Tests
// replace it.
var holdUntil = func(ctx context.Context) {
	<-ctx.Done()
}

func runEventCommand(args []string) error {
	if len(args) < 2 {
		return withExitCode(fmt.Errorf("usage: uisync event <create|get|post|reset|wait> <name> [flags]"), exitUsage)
	}
	sub, name, rest := args[0], args[1], args[2:]

	a, err := newApp(logging.CategoryClient)
	if err != nil {
		return err
	}
	defer a.Close()

	switch sub {
	case "create":
		return runEventCreate(a, name, rest)
	case "get":
		h, err := a.events.Get(name)
		if err != nil {
			return withStatusExitCode(err)
		}
		fmt.Printf("%s reachable at %s\n", name, h.Path())
		return withStatusExitCode(h.Close())
	case "post":
		return withHandle(a.events, name, (*namedevent.Handle).Post)
	case "reset":
		return withHandle(a.events, name, (*namedevent.Handle).Reset)
	case "wait":
		return runEventWait(a, name, rest)
	default:
		return withExitCode(fmt.Errorf("unknown event command: %s", sub), exitUsage)
	}
}

func runEventCreate(a *app, name string, args []string) error {
	fs := flag.NewFlagSet("event create", flag.ContinueOnError)
	posted := fs.Bool("posted", false, "post the event right after creating it")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitUsage)
	}

	h, err := a.events.Create(name)
	if err != nil {
		return withStatusExitCode(err)
	}
	defer h.Close()
	if *posted {
		if err := h.Post(); err != nil {
			return withStatusExitCode(err)
		}
	}
	fmt.Printf("%s created at %s; brokering until interrupted\n", name, h.Path())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	holdUntil(ctx)
	return nil
}

func runEventWait(a *app, name string, args []string) error {
	fs := flag.NewFlagSet("event wait", flag.ContinueOnError)
	timeout := fs.Duration("timeout", 5*time.Second, "how long to wait; negative waits forever")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitUsage)
	}
	wait := *timeout
	if wait < 0 {
		wait = event.Infinite
	}

	h, err := a.events.Get(name)
	if err != nil {
		return withStatusExitCode(err)
	}
	defer h.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := h.WaitContext(ctx, wait); err != nil {
		return withStatusExitCode(err)
	}
	fmt.Printf("%s posted\n", name)
	return nil
}

func withHandle(svc *namedevent.Service, name string, op func(*namedevent.Handle) error) error {
	h, err := svc.Get(name)
	if err != nil {
		return withStatusExitCode(err)
	}
	defer h.Close()
	return withStatusExitCode(op(h))
}
