package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/odvcencio/uisync/pkg/bus"
	"github.com/odvcencio/uisync/pkg/logging"
	"github.com/odvcencio/uisync/pkg/telemetry"
)

// openBus connects to the relay bus. Tests replace it.
var openBus = func(url string) (bus.Bus, error) {
	cfg := bus.DefaultConfig()
	cfg.URL = url
	return bus.NewNATSBus(cfg)
}

// tailOutput receives relayed events as JSON lines.
var tailOutput io.Writer = os.Stdout

func runTailCommand(args []string) error {
	a, err := newApp(logging.CategoryRelay)
	if err != nil {
		return err
	}
	defer a.Close()

	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	url := fs.String("relay", a.cfg.Relay.URL, "NATS server carrying relayed telemetry")
	prefix := fs.String("prefix", a.cfg.Relay.SubjectPrefix, "subject prefix to follow")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitUsage)
	}
	if *url == "" {
		return withExitCode(fmt.Errorf("no relay configured; pass -relay or set UISYNC_RELAY_URL"), exitUsage)
	}

	b, err := openBus(*url)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var mu sync.Mutex
	enc := json.NewEncoder(tailOutput)
	sub, err := bus.Tail(ctx, b, *prefix, func(ev telemetry.Event) {
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(ev)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	holdUntil(ctx)
	return nil
}
