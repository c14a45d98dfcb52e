package main

import (
	"context"
	"encoding/json"
	stdliberrors "errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/odvcencio/uisync/pkg/bus"
	"github.com/odvcencio/uisync/pkg/errors"
	"github.com/odvcencio/uisync/pkg/logging"
	"github.com/odvcencio/uisync/pkg/namedevent"
	"github.com/odvcencio/uisync/pkg/telemetry"
)

const (
	wsPingInterval = 30 * time.Second
	maxHTTPWait    = time.Minute
)

func runServeCommand(args []string) error {
	a, err := newApp(logging.CategoryServer)
	if err != nil {
		return err
	}
	defer a.Close()

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", a.cfg.Metrics.Listen, "address for metrics, health and event endpoints")
	names := fs.String("events", "", "comma-separated named events to create and broker")
	relayURL := fs.String("relay", a.cfg.Relay.URL, "NATS server to relay telemetry to")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitUsage)
	}

	srv := newEventServer(a.events, a.hub, a.logger)
	defer srv.Close()
	for _, name := range splitCommaList(*names) {
		if err := srv.Create(name); err != nil {
			return withStatusExitCode(err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *relayURL != "" {
		b, err := openBus(*relayURL)
		if err != nil {
			return err
		}
		defer b.Close()
		go func() {
			if err := bus.Forward(ctx, a.hub, b, a.cfg.Relay.SubjectPrefix, a.logger); err != nil {
				a.logger.Warn("relay stopped", slog.String("error", err.Error()))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              *listen,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}
	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("serving", slog.String("listen", *listen), slog.Any("events", srv.Names()))
		if err := httpServer.ListenAndServe(); err != nil && !stdliberrors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return httpServer.Shutdown(shutdownCtx)
}

// eventServer exposes named events over HTTP and streams telemetry to
// websocket clients.
type eventServer struct {
	events *namedevent.Service
	hub    *telemetry.Hub
	logger *logging.Logger

	mu      sync.Mutex
	handles map[string]*namedevent.Handle // creator handles kept open while serving
}

func newEventServer(events *namedevent.Service, hub *telemetry.Hub, logger *logging.Logger) *eventServer {
	return &eventServer{
		events:  events,
		hub:     hub,
		logger:  logging.OrNop(logger).WithCategory(logging.CategoryServer),
		handles: make(map[string]*namedevent.Handle),
	}
}

// Create creates name and keeps its creator handle open.
func (s *eventServer) Create(name string) error {
	h, err := s.events.Create(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	prev := s.handles[name]
	s.handles[name] = h
	s.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

func (s *eventServer) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.handles))
	for name := range s.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *eventServer) Close() {
	s.mu.Lock()
	handles := s.handles
	s.handles = make(map[string]*namedevent.Handle)
	s.mu.Unlock()
	for _, h := range handles {
		_ = h.Close()
	}
}

func (s *eventServer) routes() http.Handler {
	router := chi.NewRouter()
	router.Get("/healthz", s.handleHealthz)
	router.Get("/metrics", promhttp.Handler().ServeHTTP)
	router.Get("/events", s.handleStream)
	router.Route("/events/{name}", func(r chi.Router) {
		r.Put("/", s.handleCreate)
		r.Post("/post", s.handleOp)
		r.Post("/reset", s.handleOp)
		r.Get("/wait", s.handleWait)
	})
	return router
}

func (s *eventServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"events": s.Names(),
	})
}

func (s *eventServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.Create(name); err != nil {
		respondStatus(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"name": name, "status": errors.StatusNone.String()})
}

func (s *eventServer) handleOp(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h, err := s.events.Get(name)
	if err != nil {
		respondStatus(w, err)
		return
	}
	defer h.Close()

	if strings.HasSuffix(r.URL.Path, "/reset") {
		err = h.Reset()
	} else {
		err = h.Post()
	}
	respondStatus(w, err)
}

func (s *eventServer) handleWait(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	timeout := 5 * time.Second
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid timeout"})
			return
		}
		timeout = d
	}
	if timeout > maxHTTPWait {
		timeout = maxHTTPWait
	}

	h, err := s.events.Get(name)
	if err != nil {
		respondStatus(w, err)
		return
	}
	defer h.Close()
	respondStatus(w, h.WaitContext(r.Context(), timeout))
}

// handleStream sends every telemetry event to the websocket client as JSON.
func (s *eventServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutdown")

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	// Reading is only needed to notice the client going away.
	ctx := conn.CloseRead(r.Context())
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_ = conn.Ping(pingCtx)
			cancel()
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

var statusHTTPCodes = map[errors.Status]int{
	errors.StatusNone:      http.StatusOK,
	errors.StatusTimeout:   http.StatusRequestTimeout,
	errors.StatusNonInit:   http.StatusConflict,
	errors.StatusInterrupt: http.StatusServiceUnavailable,
}

func respondStatus(w http.ResponseWriter, err error) {
	status := errors.StatusOf(err)
	code, ok := statusHTTPCodes[status]
	if !ok {
		code = http.StatusInternalServerError
	}
	if errors.IsCode(err, errors.ErrCodeInvalidInput) {
		code = http.StatusBadRequest
	}
	body := map[string]string{"status": status.String()}
	if err != nil {
		body["error"] = err.Error()
	}
	respondJSON(w, code, body)
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
