package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/uisync/pkg/bus"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTailPrintsRelayedEvents(t *testing.T) {
	isolateEnv(t)
	mem := bus.NewMemoryBus()

	oldOpen, oldOut, oldHold := openBus, tailOutput, holdUntil
	t.Cleanup(func() { openBus, tailOutput, holdUntil = oldOpen, oldOut, oldHold })

	var gotURL string
	openBus = func(url string) (bus.Bus, error) {
		gotURL = url
		return mem, nil
	}
	out := &lockedBuffer{}
	tailOutput = out
	holdUntil = func(context.Context) {
		payload := []byte(`{"type":"named.posted","name":"sem1"}`)
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			_ = mem.Publish(context.Background(), "uisync.events.named.posted", payload)
			if strings.Contains(out.String(), `"sem1"`) {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	code := runCommand(runTailCommand, []string{"-relay", "nats://example:4222"})
	require.Equal(t, 0, code)
	assert.Equal(t, "nats://example:4222", gotURL)
	assert.Contains(t, out.String(), `"type":"named.posted"`)
}

func TestTailRequiresRelay(t *testing.T) {
	isolateEnv(t)
	assert.Equal(t, exitUsage, runCommand(runTailCommand, nil))
}
