// Package bus relays telemetry between processes over a publish/subscribe
// message bus. The default implementation uses NATS; MemoryBus serves
// tests and single-process setups.
package bus

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned when operating on a closed bus.
var ErrClosed = errors.New("bus closed")

// Bus is a subject-addressed publish/subscribe transport.
// Implementations must be safe for concurrent use.
type Bus interface {
	// Publish sends data to every subscriber of subject without waiting
	// for delivery.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers handler for subject. "*" matches one token and
	// a trailing ">" matches the rest.
	Subscribe(ctx context.Context, subject string, handler Handler) (Subscription, error)

	Close() error
}

// Handler processes one delivered message.
type Handler func(msg *Message)

// Message is a delivered message.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
	Subject() string
}

// Config holds connection settings for a NATS-backed bus.
type Config struct {
	URL     string
	Name    string
	Timeout time.Duration
}

// DefaultConfig returns a Config for a local NATS server.
func DefaultConfig() Config {
	return Config{
		URL:     "nats://localhost:4222",
		Name:    "uisync",
		Timeout: 5 * time.Second,
	}
}
