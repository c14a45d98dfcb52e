package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Category represents the subsystem generating the log
type Category string

const (
	CategoryMarshal Category = "marshal"
	CategoryLoop    Category = "loop"
	CategoryMutex   Category = "mutex"
	CategoryBroker  Category = "broker"
	CategoryClient  Category = "client"
	CategoryConfig  Category = "config"
	CategoryServer  Category = "server"
	CategoryRelay   Category = "relay"
)

// Options configures a Logger.
type Options struct {
	Level  Level
	Format string // "json" (default) or "text"
	Output io.Writer
}

// Logger is a structured logger for uisync components
type Logger struct {
	*slog.Logger
	// untagged carries every attribute except the category.
	untagged *slog.Logger
}

// NewLogger creates a new structured logger tagged with its category
func NewLogger(category Category, opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level.Slog()}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	base := slog.New(handler).With(slog.String("system", "uisync"))
	return &Logger{
		Logger:   base.With(slog.String("category", string(category))),
		untagged: base,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	l := slog.New(discardHandler{})
	return &Logger{Logger: l, untagged: l}
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil || l.Logger == nil {
		return Nop()
	}
	return l
}

// ParseLevel converts a config string to a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "warning":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// Slog maps the level onto slog's scale.
func (lv Level) Slog() slog.Level {
	switch lv {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithCategory returns a logger re-tagged for another subsystem
func (l *Logger) WithCategory(category Category) *Logger {
	base := l.base()
	return &Logger{Logger: base.With(slog.String("category", string(category))), untagged: base}
}

// WithName returns a logger with named-event fields
func (l *Logger) WithName(name string) *Logger {
	return l.with(slog.String("event_name", name))
}

// WithThread returns a logger with thread-specific fields
func (l *Logger) WithThread(tid int64) *Logger {
	return l.with(slog.Int64("thread_id", tid))
}

func (l *Logger) with(attrs ...any) *Logger {
	return &Logger{Logger: l.Logger.With(attrs...), untagged: l.base().With(attrs...)}
}

func (l *Logger) base() *slog.Logger {
	if l.untagged != nil {
		return l.untagged
	}
	return l.Logger
}

// BrokerStarted logs a broker coming up on a rendezvous path
func (l *Logger) BrokerStarted(brokerID, path string) {
	l.Info("broker started",
		slog.String("broker_id", brokerID),
		slog.String("path", path),
	)
}

// BrokerStopped logs broker shutdown
func (l *Logger) BrokerStopped(brokerID, reason string) {
	l.Info("broker stopped",
		slog.String("broker_id", brokerID),
		slog.String("reason", reason),
	)
}

// PeerConnected logs a new connection accepted by a broker
func (l *Logger) PeerConnected(brokerID string, peers int) {
	l.Debug("peer connected",
		slog.String("broker_id", brokerID),
		slog.Int("peers", peers),
	)
}

// PeerDisconnected logs a connection leaving a broker
func (l *Logger) PeerDisconnected(brokerID string, peers int, err error) {
	attrs := []any{
		slog.String("broker_id", brokerID),
		slog.Int("peers", peers),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.Debug("peer disconnected", attrs...)
}

// CallQueued logs a call handed to the UI loop
func (l *Logger) CallQueued(callID string, tid int64) {
	l.Debug("call queued",
		slog.String("call_id", callID),
		slog.Int64("caller_thread", tid),
	)
}

// CallCompleted logs a call finishing on the UI thread
func (l *Logger) CallCompleted(callID string, durationMs float64) {
	l.Debug("call completed",
		slog.String("call_id", callID),
		slog.Float64("duration_ms", durationMs),
	)
}

// PumpedForLock logs the UI thread draining its queue while contending a mutex
func (l *Logger) PumpedForLock(ran bool) {
	l.Debug("pumped pending work for lock", slog.Bool("ran", ran))
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
