package namedevent

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/odvcencio/uisync/pkg/errors"
	"github.com/odvcencio/uisync/pkg/logging"
	"github.com/odvcencio/uisync/pkg/paths"
	"github.com/odvcencio/uisync/pkg/telemetry"
)

const (
	DefaultPrefix                  = "uisync-"
	DefaultSocketMode  os.FileMode = 0o666
	DefaultDialTimeout             = 2 * time.Second

	socketSuffix = ".sock"
	// maxSocketPath is the smallest sun_path limit among supported platforms.
	maxSocketPath = 103
)

// Options configures a Service.
type Options struct {
	// Dir is the rendezvous directory shared by cooperating processes.
	// Empty means paths.EventDir("").
	Dir    string
	Prefix string
	// SocketMode is applied to each socket so other local users may connect.
	SocketMode  os.FileMode
	DialTimeout time.Duration
	// Watch makes a broker close its listener once its path is removed or
	// replaced.
	Watch  bool
	Logger *logging.Logger
	Hub    *telemetry.Hub
}

// Service creates and opens named events in one rendezvous directory and
// tracks the brokers this process runs.
type Service struct {
	dir         string
	prefix      string
	mode        os.FileMode
	dialTimeout time.Duration
	watch       bool
	logger      *logging.Logger
	hub         *telemetry.Hub

	mu      sync.Mutex
	brokers map[string]*Broker
	closed  bool
}

// NewService returns a service rooted at opts.Dir.
func NewService(opts Options) *Service {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	mode := opts.SocketMode
	if mode == 0 {
		mode = DefaultSocketMode
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	dir := opts.Dir
	if dir == "" {
		dir = paths.EventDir("")
	}
	return &Service{
		dir:         filepath.Clean(dir),
		prefix:      prefix,
		mode:        mode,
		dialTimeout: dialTimeout,
		watch:       opts.Watch,
		logger:      logging.OrNop(opts.Logger),
		hub:         opts.Hub,
		brokers:     make(map[string]*Broker),
	}
}

// Dir returns the rendezvous directory.
func (s *Service) Dir() string {
	return s.dir
}

// Path derives the rendezvous path for name.
func (s *Service) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, "/\\\x00") {
		return "", errors.New(errors.ErrCodeInvalidInput, "invalid event name").
			WithContext("name", name)
	}
	path := filepath.Join(s.dir, s.prefix+name+socketSuffix)
	if len(path) > maxSocketPath {
		return "", errors.New(errors.ErrCodeInvalidInput, "rendezvous path too long").
			WithContext("path", path)
	}
	return path, nil
}

// Create makes name available to other processes and returns the creator's
// handle. A path left by an earlier creator is replaced: the latest creator
// wins, and a broker of this process previously serving name stops
// listening.
func (s *Service) Create(name string) (*Handle, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	if err := s.ensureDir(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New(errors.ErrCodeGeneral, "named event service is closed")
	}
	b, socket, err := s.listen(name, path)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	conn, accepted, err := s.connectCreator(b.listener, name, path)
	if err != nil {
		_ = b.listener.Close()
		removeIfOurs(path, socket)
		s.mu.Unlock()
		return nil, err
	}
	if prev := s.brokers[name]; prev != nil {
		prev.StopListening()
	}
	s.brokers[name] = b
	b.start(accepted)
	if s.watch {
		s.watchPath(b, socket)
	}
	s.mu.Unlock()

	return newHandle(name, path, conn, socket, s.clientLogger(name)), nil
}

// Get connects to an event created by any process. No broker is started.
func (s *Service) Get(name string) (*Handle, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	conn, err := s.dial(name, path)
	if err != nil {
		return nil, err
	}
	return newHandle(name, path, conn, nil, s.clientLogger(name)), nil
}

// Broker returns this process's broker for name, if it runs one.
func (s *Service) Broker(name string) *Broker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brokers[name]
}

// Names lists the events this process is brokering.
func (s *Service) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.brokers))
	for name := range s.brokers {
		names = append(names, name)
	}
	return names
}

// Close stops every broker of this process and removes the rendezvous
// paths that still belong to them. Handles stay open but their broker is
// gone.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	brokers := make([]*Broker, 0, len(s.brokers))
	for _, b := range s.brokers {
		brokers = append(brokers, b)
	}
	s.mu.Unlock()

	for _, b := range brokers {
		b.Stop()
		if b.socket != nil {
			removeIfOurs(b.path, b.socket)
		}
	}
	return nil
}

func (s *Service) listen(name, path string) (*Broker, os.FileInfo, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, nil, errors.Wrap(err, errors.ErrCodeGeneral, "remove stale rendezvous path").
			WithContext("path", path)
	}
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeGeneral, "listen on rendezvous path").
			WithContext("path", path)
	}
	// The path is removed by the creator's handle, not by the listener.
	ln.SetUnlinkOnClose(false)

	fail := func(err error, msg string) (*Broker, os.FileInfo, error) {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, nil, errors.Wrap(err, errors.ErrCodeGeneral, msg).WithContext("path", path)
	}
	if err := os.Chmod(path, s.mode); err != nil {
		return fail(err, "set socket permissions")
	}
	socket, err := os.Lstat(path)
	if err != nil {
		return fail(err, "stat rendezvous path")
	}

	logger := s.logger.WithCategory(logging.CategoryBroker).WithName(name)
	b := newBroker(name, path, ln, logger, s.hub, s.brokerExited)
	b.socket = socket
	return b, socket, nil
}

// connectCreator dials the fresh listener and accepts that connection
// before the broker runs, so the creator is a peer even if the listener is
// closed right after Create returns.
func (s *Service) connectCreator(ln *net.UnixListener, name, path string) (*net.UnixConn, *net.UnixConn, error) {
	client, err := s.dial(name, path)
	if err != nil {
		return nil, nil, err
	}
	_ = ln.SetDeadline(time.Now().Add(s.dialTimeout))
	server, err := ln.AcceptUnix()
	_ = ln.SetDeadline(time.Time{})
	if err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrap(err, errors.ErrCodeGeneral, "accept creator connection").
			WithContext("name", name)
	}
	return client, server, nil
}

func (s *Service) dial(name, path string) (*net.UnixConn, error) {
	conn, err := net.DialTimeout("unix", path, s.dialTimeout)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGeneral, "connect to named event").
			WithContext("name", name)
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		_ = conn.Close()
		return nil, errors.New(errors.ErrCodeGeneral, fmt.Sprintf("unexpected connection type %T", conn))
	}
	return uc, nil
}

// ensureDir creates the rendezvous directory. A directory created here is
// world-writable and sticky, like the system temp dir, so every local user
// can create events in it.
func (s *Service) ensureDir() error {
	if _, err := os.Stat(s.dir); err == nil {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o777); err != nil {
		return errors.Wrap(err, errors.ErrCodeGeneral, "create rendezvous directory").
			WithContext("dir", s.dir)
	}
	if err := os.Chmod(s.dir, 0o777|os.ModeSticky); err != nil {
		s.logger.Warn("could not share rendezvous directory", slog.String("dir", s.dir), slog.String("error", err.Error()))
	}
	return nil
}

func (s *Service) brokerExited(b *Broker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.brokers[b.name] == b {
		delete(s.brokers, b.name)
	}
}

func (s *Service) clientLogger(name string) *logging.Logger {
	return s.logger.WithCategory(logging.CategoryClient).WithName(name)
}

// removeIfOurs removes path only while it still names socket.
func removeIfOurs(path string, socket os.FileInfo) {
	cur, err := os.Lstat(path)
	if err != nil || !os.SameFile(cur, socket) {
		return
	}
	_ = os.Remove(path)
}
