package namedevent

import (
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/uisync/pkg/logging"
	"github.com/odvcencio/uisync/pkg/telemetry"
)

// replyTimeout bounds a reply write so one stuck client cannot stall the
// broker.
const replyTimeout = time.Second

type brokerEventKind int

const (
	evAccepted brokerEventKind = iota
	evOpcode
	evClosed
	evListenerDone
)

type brokerEvent struct {
	kind brokerEventKind
	peer *peer
	op   Opcode
	err  error
}

// peer is one client connection. Only the broker goroutine touches its
// flags.
type peer struct {
	conn    net.Conn
	waiting bool
	// replied is set once the byte owed for the current WAIT was sent.
	replied bool
}

// Broker owns the state of one named event and serves every connection to
// it. All state lives in the run goroutine; the accept loop and the
// per-connection readers only forward events to it.
type Broker struct {
	id       string
	name     string
	path     string
	listener *net.UnixListener
	socket   os.FileInfo
	logger   *logging.Logger
	hub      *telemetry.Hub

	events chan brokerEvent
	stop   chan struct{}
	done   chan struct{}

	closeListenerOnce sync.Once
	stopOnce          sync.Once
	peerCount         atomic.Int32
	onExit            func(*Broker)

	// owned by run
	peers     []*peer
	posted    bool
	listening bool
}

func newBroker(name, path string, ln *net.UnixListener, logger *logging.Logger, hub *telemetry.Hub, onExit func(*Broker)) *Broker {
	id := ulid.Make().String()
	return &Broker{
		id:        id,
		name:      name,
		path:      path,
		listener:  ln,
		logger:    logger,
		hub:       hub,
		events:    make(chan brokerEvent),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		onExit:    onExit,
		listening: true,
	}
}

// ID is a unique id for this broker instance.
func (b *Broker) ID() string { return b.id }

// Name is the event name the broker serves.
func (b *Broker) Name() string { return b.name }

// Path is the socket path the broker listens on.
func (b *Broker) Path() string { return b.path }

// Peers returns the number of open connections.
func (b *Broker) Peers() int { return int(b.peerCount.Load()) }

// Done is closed once the broker has exited.
func (b *Broker) Done() <-chan struct{} { return b.done }

// StopListening closes the listener. Connections already open keep being
// served; the broker exits once the last one closes.
func (b *Broker) StopListening() {
	b.closeListenerOnce.Do(func() {
		_ = b.listener.Close()
	})
}

// Stop closes the listener and every connection and waits for the broker
// to exit.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.done
}

// start launches the broker with creator, an already accepted connection,
// as its first peer.
func (b *Broker) start(creator net.Conn) {
	telemetry.BrokersActive.Inc()
	b.logger.BrokerStarted(b.id, b.path)
	b.hub.Publish(telemetry.Event{
		Type: telemetry.EventBrokerStarted,
		Name: b.name,
		Data: map[string]any{"broker_id": b.id, "path": b.path},
	})
	if creator != nil {
		p := &peer{conn: creator}
		b.peers = append(b.peers, p)
		b.peersChanged()
		b.logger.PeerConnected(b.id, len(b.peers))
		go b.read(p)
	}
	go b.accept()
	go b.run()
}

// send hands ev to the run goroutine. It reports false once the broker has
// exited.
func (b *Broker) send(ev brokerEvent) bool {
	select {
	case b.events <- ev:
		return true
	case <-b.done:
		return false
	}
}

func (b *Broker) accept() {
	for {
		conn, err := b.listener.AcceptUnix()
		if err != nil {
			b.send(brokerEvent{kind: evListenerDone, err: err})
			return
		}
		if !b.send(brokerEvent{kind: evAccepted, peer: &peer{conn: conn}}) {
			_ = conn.Close()
			return
		}
	}
}

func (b *Broker) read(p *peer) {
	buf := make([]byte, 64)
	for {
		n, err := p.conn.Read(buf)
		for _, op := range buf[:n] {
			if !b.send(brokerEvent{kind: evOpcode, peer: p, op: Opcode(op)}) {
				return
			}
		}
		if err != nil {
			b.send(brokerEvent{kind: evClosed, peer: p, err: err})
			return
		}
	}
}

func (b *Broker) run() {
	reason := "idle"
	defer func() { b.finish(reason) }()

	for b.listening || len(b.peers) > 0 {
		select {
		case <-b.stop:
			reason = "stopped"
			b.StopListening()
			for _, p := range b.peers {
				_ = p.conn.Close()
			}
			b.peers = nil
			return
		case ev := <-b.events:
			b.handle(ev)
		}
	}
}

func (b *Broker) handle(ev brokerEvent) {
	switch ev.kind {
	case evAccepted:
		b.peers = append(b.peers, ev.peer)
		b.peersChanged()
		b.logger.PeerConnected(b.id, len(b.peers))
		b.hub.Publish(telemetry.Event{Type: telemetry.EventPeerConnected, Name: b.name, Data: map[string]any{"peers": len(b.peers)}})
		go b.read(ev.peer)
	case evListenerDone:
		b.listening = false
		b.logger.Info("listener closed", slog.String("broker_id", b.id), slog.Int("peers", len(b.peers)))
	case evClosed:
		b.drop(ev.peer, ev.err)
	case evOpcode:
		b.dispatch(ev.peer, ev.op)
	}
}

func (b *Broker) dispatch(p *peer, op Opcode) {
	telemetry.BrokerOpcodes.WithLabelValues(op.String()).Inc()
	switch op {
	case OpReset:
		b.posted = false
		b.hub.Publish(telemetry.Event{Type: telemetry.EventNamedReset, Name: b.name})
	case OpPost:
		b.posted = true
		for _, waiter := range append([]*peer(nil), b.peers...) {
			if waiter.waiting {
				b.reply(waiter)
			}
		}
		b.hub.Publish(telemetry.Event{Type: telemetry.EventNamedPosted, Name: b.name})
	case OpWait:
		p.waiting = true
		p.replied = false
		if b.posted {
			b.reply(p)
		}
	case OpDoneWaiting:
		p.waiting = false
		p.replied = false
	default:
		b.logger.Warn("ignoring unknown opcode", slog.String("broker_id", b.id), slog.Int("opcode", int(op)))
	}
}

// reply sends the byte owed for the peer's current WAIT, at most once.
func (b *Broker) reply(p *peer) {
	if p.replied {
		return
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(replyTimeout))
	if _, err := p.conn.Write([]byte{replyByte}); err != nil {
		b.drop(p, err)
		return
	}
	p.replied = true
}

func (b *Broker) drop(p *peer, err error) {
	for i, cur := range b.peers {
		if cur != p {
			continue
		}
		b.peers = append(b.peers[:i], b.peers[i+1:]...)
		_ = p.conn.Close()
		b.peersChanged()
		b.logger.PeerDisconnected(b.id, len(b.peers), err)
		b.hub.Publish(telemetry.Event{Type: telemetry.EventPeerDisconnected, Name: b.name, Data: map[string]any{"peers": len(b.peers)}})
		return
	}
}

func (b *Broker) peersChanged() {
	b.peerCount.Store(int32(len(b.peers)))
	telemetry.BrokerPeers.WithLabelValues(b.name).Set(float64(len(b.peers)))
}

func (b *Broker) finish(reason string) {
	b.peerCount.Store(0)
	telemetry.BrokerPeers.DeleteLabelValues(b.name)
	telemetry.BrokersActive.Dec()
	if b.onExit != nil {
		b.onExit(b)
	}
	close(b.done)
	b.logger.BrokerStopped(b.id, reason)
	b.hub.Publish(telemetry.Event{
		Type: telemetry.EventBrokerStopped,
		Name: b.name,
		Data: map[string]any{"broker_id": b.id, "reason": reason},
	})
}
