package namedevent

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sys/unix"

	"github.com/odvcencio/uisync/pkg/errors"
	"github.com/odvcencio/uisync/pkg/logging"
	"github.com/odvcencio/uisync/pkg/telemetry"
)

// Handle is one process's connection to a named event. Waits on a handle
// are serialized; Post, Reset and Close never wait behind them.
type Handle struct {
	name   string
	path   string
	logger *logging.Logger
	conn   *net.UnixConn
	// socket is set on the creator's handle only.
	socket os.FileInfo

	// waitMu covers the WAIT, reply, DONE_WAITING sequence; wmu covers a
	// single opcode write.
	waitMu sync.Mutex
	wmu    sync.Mutex
	closed atomic.Bool
}

func newHandle(name, path string, conn *net.UnixConn, socket os.FileInfo, logger *logging.Logger) *Handle {
	return &Handle{
		name:   name,
		path:   path,
		conn:   conn,
		socket: socket,
		logger: logger,
	}
}

// Name returns the event name.
func (h *Handle) Name() string { return h.name }

// Path returns the rendezvous path the handle connected to.
func (h *Handle) Path() string { return h.path }

// Owner reports whether the handle belongs to the event's creator.
func (h *Handle) Owner() bool { return h.socket != nil }

// Post marks the event posted and releases every waiter.
func (h *Handle) Post() error {
	return h.send(OpPost, "post")
}

// Reset clears the posted state.
func (h *Handle) Reset() error {
	return h.send(OpReset, "reset")
}

// Wait blocks until the event is posted or timeout elapses. A negative
// timeout waits forever; zero only checks for a reply already delivered.
func (h *Handle) Wait(timeout time.Duration) error {
	return h.WaitContext(context.Background(), timeout)
}

// WaitContext is Wait that also returns INTERRUPT when ctx is done.
func (h *Handle) WaitContext(ctx context.Context, timeout time.Duration) (err error) {
	if h == nil {
		return errors.ErrNonInit
	}
	h.waitMu.Lock()
	defer h.waitMu.Unlock()
	if h.closed.Load() {
		return errors.ErrNonInit
	}

	_, span := telemetry.StartSpan(ctx, "namedevent.wait",
		trace.WithAttributes(telemetry.AttrEventName.String(h.name)),
	)
	defer func() {
		status := errors.StatusOf(err).String()
		span.SetAttributes(telemetry.AttrWaitStatus.String(status))
		span.End()
		telemetry.NamedWaits.WithLabelValues(status).Inc()
	}()

	if cerr := ctx.Err(); cerr != nil {
		return errors.Wrap(cerr, errors.ErrCodeInterrupt, "wait cancelled")
	}
	if n := h.drainStale(); n > 0 {
		h.logger.Debug("discarded stale replies", slog.String("event_name", h.name), slog.Int("bytes", n))
	}
	if werr := h.write(OpWait); werr != nil {
		return classify(werr, "wait")
	}

	got, rerr := h.awaitReply(ctx, timeout)

	// The broker owes nothing once told we are done. A reply that crossed
	// the timeout stays buffered and the next Wait drains it.
	derr := h.write(OpDoneWaiting)
	switch {
	case got:
		return classify(derr, "wait")
	case ctx.Err() != nil:
		return errors.Wrap(ctx.Err(), errors.ErrCodeInterrupt, "wait cancelled")
	case rerr == nil, stderrors.Is(rerr, os.ErrDeadlineExceeded):
		if derr != nil {
			return classify(derr, "wait")
		}
		return errors.ErrTimeout
	default:
		return classify(rerr, "wait")
	}
}

// awaitReply reads the reply byte. It reports whether one arrived.
func (h *Handle) awaitReply(ctx context.Context, timeout time.Duration) (bool, error) {
	var buf [1]byte
	if timeout == 0 {
		n, err := h.readNow(buf[:])
		return n > 0, err
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := h.conn.SetReadDeadline(deadline); err != nil {
		return false, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = h.conn.SetReadDeadline(time.Now())
	})
	n, err := h.conn.Read(buf[:])
	stop()
	_ = h.conn.SetReadDeadline(time.Time{})
	return n > 0, err
}

// Close disconnects from the broker. The creator's handle also removes the
// rendezvous path, provided it still names the socket it created.
func (h *Handle) Close() error {
	if h == nil {
		return errors.ErrNonInit
	}
	if h.closed.Swap(true) {
		return errors.ErrNonInit
	}
	// A Wait blocked in Read returns once the connection closes.
	err := h.conn.Close()
	if h.socket != nil {
		removeIfOurs(h.path, h.socket)
	}
	if err != nil {
		return classify(err, "close")
	}
	return nil
}

func (h *Handle) send(op Opcode, name string) error {
	if h == nil {
		return errors.ErrNonInit
	}
	if h.closed.Load() {
		return errors.ErrNonInit
	}
	return classify(h.write(op), name)
}

func (h *Handle) write(op Opcode) error {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	_, err := h.conn.Write([]byte{byte(op)})
	return err
}

// drainStale discards reply bytes left over from earlier waits and returns
// how many there were.
func (h *Handle) drainStale() int {
	var buf [16]byte
	total := 0
	for {
		n, err := h.readNow(buf[:])
		total += n
		if n == 0 || err != nil {
			return total
		}
	}
}

// readNow reads whatever is already buffered on the connection without
// blocking. A read deadline cannot express this: an expired deadline fails
// before looking at the buffer.
func (h *Handle) readNow(buf []byte) (int, error) {
	raw, err := h.conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var (
		n    int
		rerr error
	)
	if err := raw.Read(func(fd uintptr) bool {
		n, rerr = unix.Read(int(fd), buf)
		return true
	}); err != nil {
		return 0, err
	}
	switch {
	case rerr == unix.EAGAIN:
		return 0, nil
	case rerr != nil:
		return 0, rerr
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}
