package main

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/odvcencio/uisync/pkg/config"
	"github.com/odvcencio/uisync/pkg/logging"
	"github.com/odvcencio/uisync/pkg/namedevent"
	"github.com/odvcencio/uisync/pkg/telemetry"
)

// loadConfigFn allows tests to stub configuration loading.
var loadConfigFn = func() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// app bundles what every subcommand needs: configuration, logging,
// telemetry and the named-event service.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	hub    *telemetry.Hub
	events *namedevent.Service
	tracer *telemetry.TracerProvider
}

func newApp(category logging.Category) (*app, error) {
	cfg, err := loadConfigFn()
	if err != nil {
		return nil, withExitCode(err, exitUsage)
	}
	mode, err := cfg.SocketMode()
	if err != nil {
		return nil, withExitCode(err, exitUsage)
	}

	logger := logging.NewLogger(category, logging.Options{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: resolveLogFormat(cfg.Logging.Format, os.Stderr),
		Output: os.Stderr,
	})

	a := &app{
		cfg:    cfg,
		logger: logger,
		hub:    telemetry.NewHub(),
	}
	if cfg.Tracing.Enabled {
		tp, err := telemetry.NewTracerProvider(cfg.Tracing.ServiceName, os.Stderr)
		if err != nil {
			logger.Warn("tracing disabled", "error", err.Error())
		} else {
			a.tracer = tp
		}
	}
	a.events = namedevent.NewService(namedevent.Options{
		Dir:         cfg.EventDir(),
		Prefix:      cfg.Events.Prefix,
		SocketMode:  mode,
		DialTimeout: cfg.Events.DialTimeout,
		Watch:       cfg.Events.Watch,
		Logger:      logger,
		Hub:         a.hub,
	})
	return a, nil
}

func (a *app) Close() {
	_ = a.events.Close()
	a.hub.Close()
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.tracer.Shutdown(ctx)
	}
}

// resolveLogFormat turns "auto" into text on a terminal and JSON otherwise.
func resolveLogFormat(format string, w io.Writer) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "auto" && format != "" {
		return format
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "text"
	}
	return "json"
}
