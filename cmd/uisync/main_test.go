package main

import (
	"context"
	stderrors "errors"
	"os"
	"testing"
	"time"

	uierrors "github.com/odvcencio/uisync/pkg/errors"
	"github.com/odvcencio/uisync/pkg/namedevent"
)

// isolateEnv points config and the rendezvous directory at temp dirs and
// returns the rendezvous directory.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("UISYNC_EVENT_DIR", dir)
	t.Setenv("UISYNC_LOG_LEVEL", "error")
	t.Setenv("UISYNC_LOG_FORMAT", "json")
	t.Setenv("UISYNC_METRICS_LISTEN", "")
	t.Setenv("UISYNC_TRACING_ENABLED", "")
	t.Setenv("UISYNC_EVENT_WATCH", "")
	t.Setenv("UISYNC_RELAY_URL", "")
	old := configPath
	configPath = ""
	t.Cleanup(func() { configPath = old })
	return dir
}

func TestParseGlobalFlags(t *testing.T) {
	old := configPath
	t.Cleanup(func() { configPath = old })

	args, err := parseGlobalFlags([]string{"--config", "proj.yaml", "event", "post", "x", "--config", "ignored"})
	if err != nil {
		t.Fatalf("parseGlobalFlags: %v", err)
	}
	if configPath != "proj.yaml" {
		t.Fatalf("configPath=%q want proj.yaml", configPath)
	}
	if len(args) != 5 || args[0] != "event" || args[4] != "ignored" {
		t.Fatalf("args=%v", args)
	}

	if _, err := parseGlobalFlags([]string{"--config=other.yaml", "demo"}); err != nil || configPath != "other.yaml" {
		t.Fatalf("inline --config not honored: %v %q", err, configPath)
	}
	if _, err := parseGlobalFlags([]string{"-c"}); err == nil {
		t.Fatal("expected error for --config without a path")
	}
}

func TestDispatchSubcommand(t *testing.T) {
	if handled, code := dispatchSubcommand(nil); handled || code != 0 {
		t.Fatalf("empty args: handled=%v code=%d", handled, code)
	}
	if handled, code := dispatchSubcommand([]string{"version"}); !handled || code != 0 {
		t.Fatalf("version: handled=%v code=%d", handled, code)
	}
	if handled, code := dispatchSubcommand([]string{"frobnicate"}); !handled || code != exitUsage {
		t.Fatalf("unknown: handled=%v code=%d", handled, code)
	}
	if _, code := dispatchSubcommand([]string{"--nope"}); code != exitUsage {
		t.Fatalf("unknown flag: code=%d", code)
	}
}

func TestExitCodeForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{stderrors.New("plain"), exitGeneral},
		{withExitCode(stderrors.New("usage"), exitUsage), exitUsage},
		{withStatusExitCode(uierrors.ErrTimeout), exitTimeout},
		{withStatusExitCode(uierrors.ErrNonInit), exitNonInit},
		{withStatusExitCode(uierrors.ErrInterrupt), exitInterrupt},
		{withStatusExitCode(uierrors.ErrGeneral), exitGeneral},
		{uierrors.New(uierrors.ErrCodeConfigInvalid, "bad"), exitUsage},
		{exitError{err: stderrors.New("zero code")}, 1},
	}
	for _, tc := range cases {
		if got := exitCodeForError(tc.err); got != tc.want {
			t.Errorf("exitCodeForError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
	if withStatusExitCode(nil) != nil {
		t.Error("nil error should stay nil")
	}
}

func TestEventCommands(t *testing.T) {
	dir := isolateEnv(t)
	svc := namedevent.NewService(namedevent.Options{Dir: dir})
	defer svc.Close()
	owner, err := svc.Create("ping")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer owner.Close()

	steps := []struct {
		args []string
		want int
	}{
		{[]string{"wait", "ping", "-timeout", "20ms"}, exitTimeout},
		{[]string{"post", "ping"}, 0},
		{[]string{"wait", "ping", "-timeout", "1s"}, 0},
		{[]string{"reset", "ping"}, 0},
		{[]string{"wait", "ping", "-timeout", "0s"}, exitTimeout},
		{[]string{"get", "ping"}, 0},
		{[]string{"get", "missing"}, exitGeneral},
		{[]string{"post", "bad/name"}, exitUsage},
		{[]string{"bogus", "ping"}, exitUsage},
		{[]string{"wait"}, exitUsage},
		{[]string{"wait", "ping", "-timeout", "soon"}, exitUsage},
	}
	for _, step := range steps {
		if got := runCommand(runEventCommand, step.args); got != step.want {
			t.Errorf("event %v: exit %d, want %d", step.args, got, step.want)
		}
	}
}

func TestEventCreateBrokersUntilReleased(t *testing.T) {
	dir := isolateEnv(t)

	var path string
	old := holdUntil
	t.Cleanup(func() { holdUntil = old })
	holdUntil = func(context.Context) {
		svc := namedevent.NewService(namedevent.Options{Dir: dir})
		h, err := svc.Get("held")
		if err != nil {
			t.Errorf("get while held: %v", err)
			return
		}
		defer h.Close()
		path = h.Path()
		if err := h.Wait(time.Second); err != nil {
			t.Errorf("event created with -posted should satisfy waits: %v", err)
		}
	}

	if code := runCommand(runEventCommand, []string{"create", "held", "-posted"}); code != 0 {
		t.Fatalf("create exit %d", code)
	}
	if path == "" {
		t.Fatal("hold was never reached")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("rendezvous path should be removed after create returns, stat err=%v", err)
	}
}

func TestRunDemo(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := runDemo(ctx, demoOptions{Workers: 3, Calls: 20, TickRate: time.Millisecond})
	if err != nil {
		t.Fatalf("runDemo: %v", err)
	}
	if res.Counter != 60 || res.Calls != 60 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestDemoCommandRejectsBadFlags(t *testing.T) {
	isolateEnv(t)
	if code := runCommand(runDemoCommand, []string{"-workers", "0"}); code != exitUsage {
		t.Fatalf("exit %d, want %d", code, exitUsage)
	}
}

func TestResolveLogFormat(t *testing.T) {
	if got := resolveLogFormat("text", nil); got != "text" {
		t.Fatalf("explicit format should pass through, got %q", got)
	}
	f, err := os.CreateTemp(t.TempDir(), "log")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	defer f.Close()
	if got := resolveLogFormat("auto", f); got != "json" {
		t.Fatalf("non-terminal output should log JSON, got %q", got)
	}
}
