package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odvcencio/uisync/pkg/logging"
	"github.com/odvcencio/uisync/pkg/telemetry"
)

// DefaultSubjectPrefix roots relayed telemetry subjects.
const DefaultSubjectPrefix = "uisync.events"

// Subject returns the subject a telemetry event of type t is relayed on.
func Subject(prefix string, t telemetry.EventType) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + string(t)
}

// Forward publishes every event from hub on b until ctx is done or the hub
// closes. Publish failures are logged and skipped.
func Forward(ctx context.Context, hub *telemetry.Hub, b Bus, prefix string, logger *logging.Logger) error {
	logger = logging.OrNop(logger).WithCategory(logging.CategoryRelay)
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("encode %s event: %w", ev.Type, err)
			}
			subject := Subject(prefix, ev.Type)
			if err := b.Publish(ctx, subject, data); err != nil {
				if errors.Is(err, ErrClosed) {
					return err
				}
				logger.Warn("relay publish failed",
					slog.String("subject", subject),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Tail subscribes to every relayed event under prefix and calls fn with
// each decoded event. Undecodable messages are skipped.
func Tail(ctx context.Context, b Bus, prefix string, fn func(telemetry.Event)) (Subscription, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return b.Subscribe(ctx, strings.TrimSuffix(prefix, ".")+".>", func(msg *Message) {
		var ev telemetry.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		fn(ev)
	})
}
