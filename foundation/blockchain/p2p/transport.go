// Package p2p carries consensus messages and shared transactions between
// nodes over TCP. Every frame is a type byte followed by a msgpack encoded
// body. Connections are one directional: a node dials a peer to send and
// accepts connections from peers to receive. The status exchange is the
// exception, its reply comes back on the connection that asked.
package p2p

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-msgpack/codec"
	"github.com/quorumchain/node/foundation/blockchain/consensus"
	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/peer"
)

// ErrTransportShutdown is returned when the transport is used after Close.
var ErrTransportShutdown = errors.New("p2p: transport shutdown")

// Set of frame types.
const (
	frameConsensus uint8 = iota + 1
	frameTx
	frameStatusRequest
	frameStatus
)

// Default settings used when the config leaves them empty.
const (
	defaultMaxPool = 3
	defaultTimeout = 5 * time.Second
)

// Config represents the configuration required to start the transport.
type Config struct {
	Bind        string
	Host        string
	Peers       *peer.Set
	MaxPool     int
	Timeout     time.Duration
	OnConsensus func(ctx context.Context, msg consensus.Message)
	OnTx        func(ctx context.Context, tx database.SignedTx)
	OnStatus    func() (peer.Status, error)
	EvHandler   func(v string, args ...any)
}

// Transport sends frames to peers and dispatches inbound frames to the
// configured handlers.
type Transport struct {
	cfg      Config
	listener net.Listener
	poolMu   sync.Mutex
	pool     map[string][]*outConn
	shut     chan struct{}
	shutOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New binds the listener and starts accepting connections.
func New(cfg Config) (*Transport, error) {
	if cfg.MaxPool <= 0 {
		cfg.MaxPool = defaultMaxPool
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.Peers == nil {
		cfg.Peers = peer.NewSet()
	}

	ev := cfg.EvHandler
	cfg.EvHandler = func(v string, args ...any) {
		if ev != nil {
			ev(v, args...)
		}
	}

	listener, err := net.Listen("tcp", cfg.Bind)
	if err != nil {
		return nil, fmt.Errorf("p2p: listen %s: %w", cfg.Bind, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := Transport{
		cfg:      cfg,
		listener: listener,
		pool:     make(map[string][]*outConn),
		shut:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.listen()
	}()

	return &t, nil
}

// Addr returns the address the transport listens on.
func (t *Transport) Addr() string {
	return t.listener.Addr().String()
}

// Host returns the address peers reach this node on. It defaults to the
// listen address.
func (t *Transport) Host() string {
	if t.cfg.Host != "" {
		return t.cfg.Host
	}
	return t.Addr()
}

// Close stops accepting connections, closes the pooled connections and
// waits for the inbound handlers to exit.
func (t *Transport) Close() error {
	t.shutOnce.Do(func() {
		close(t.shut)
		t.cancel()
		t.listener.Close()

		t.poolMu.Lock()
		for target, conns := range t.pool {
			for _, oc := range conns {
				oc.release()
			}
			delete(t.pool, target)
		}
		t.poolMu.Unlock()
	})

	t.wg.Wait()
	return nil
}

// =============================================================================
// These methods implement the consensus.Transport interface.

// Broadcast sends the message to every known peer. Failures are logged,
// consensus treats a missing vote like a slow one.
func (t *Transport) Broadcast(ctx context.Context, msg consensus.Message) {
	for _, p := range t.cfg.Peers.Copy(t.Host()) {
		if err := t.Send(ctx, p.Host, msg); err != nil {
			t.cfg.EvHandler("p2p: Broadcast: %s: ERROR: %s", p.Host, err)
		}
	}
}

// Send sends the message to the peer at host.
func (t *Transport) Send(ctx context.Context, host string, msg consensus.Message) error {
	return t.send(host, frameConsensus, msg)
}

// =============================================================================

// BroadcastTx shares a transaction with every known peer.
func (t *Transport) BroadcastTx(ctx context.Context, tx database.SignedTx) {
	for _, p := range t.cfg.Peers.Copy(t.Host()) {
		if err := t.send(p.Host, frameTx, tx); err != nil {
			t.cfg.EvHandler("p2p: BroadcastTx: %s: ERROR: %s", p.Host, err)
		}
	}
}

// Status asks the node at host for its status. The request uses a
// connection of its own so the reply can't interleave with pooled frames.
func (t *Transport) Status(ctx context.Context, host string) (peer.Status, error) {
	if t.isShutdown() {
		return peer.Status{}, ErrTransportShutdown
	}

	oc, err := dial(host, t.cfg.Timeout)
	if err != nil {
		return peer.Status{}, err
	}
	defer oc.release()

	// Unblock the read when the caller gives up.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			oc.release()
		case <-done:
		}
	}()

	if err := oc.send(frameStatusRequest, struct{}{}, t.cfg.Timeout); err != nil {
		return peer.Status{}, err
	}

	if err := oc.conn.SetReadDeadline(time.Now().Add(t.cfg.Timeout)); err != nil {
		return peer.Status{}, err
	}

	r := bufio.NewReader(oc.conn)
	frame, err := r.ReadByte()
	if err != nil {
		return peer.Status{}, err
	}

	if frame != frameStatus {
		return peer.Status{}, fmt.Errorf("p2p: status from %s: unexpected frame type %d", host, frame)
	}

	var status peer.Status
	if err := codec.NewDecoder(r, &codec.MsgpackHandle{}).Decode(&status); err != nil {
		return peer.Status{}, err
	}

	return status, nil
}

// send writes one frame on a pooled connection to the target.
func (t *Transport) send(target string, frame uint8, body any) error {
	if t.isShutdown() {
		return ErrTransportShutdown
	}

	oc, err := t.getConn(target)
	if err != nil {
		return err
	}

	if err := oc.send(frame, body, t.cfg.Timeout); err != nil {
		oc.release()
		return err
	}

	t.returnConn(oc)
	return nil
}

// getConn returns an idle pooled connection or dials a new one.
func (t *Transport) getConn(target string) (*outConn, error) {
	t.poolMu.Lock()
	conns := t.pool[target]
	if n := len(conns); n > 0 {
		oc := conns[n-1]
		conns[n-1] = nil
		t.pool[target] = conns[:n-1]
		t.poolMu.Unlock()
		return oc, nil
	}
	t.poolMu.Unlock()

	return dial(target, t.cfg.Timeout)
}

// returnConn keeps the connection for reuse unless the pool is full.
func (t *Transport) returnConn(oc *outConn) {
	t.poolMu.Lock()
	defer t.poolMu.Unlock()

	conns := t.pool[oc.target]
	if !t.isShutdown() && len(conns) < t.cfg.MaxPool {
		t.pool[oc.target] = append(conns, oc)
		return
	}

	oc.release()
}

// =============================================================================

// listen accepts inbound connections until the transport is closed.
func (t *Transport) listen() {
	const baseDelay = 5 * time.Millisecond
	const maxDelay = time.Second

	var loopDelay time.Duration
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.isShutdown() {
				return
			}

			if loopDelay == 0 {
				loopDelay = baseDelay
			} else {
				loopDelay *= 2
			}
			if loopDelay > maxDelay {
				loopDelay = maxDelay
			}

			t.cfg.EvHandler("p2p: listen: accept: ERROR: %s", err)

			select {
			case <-t.shut:
				return
			case <-time.After(loopDelay):
				continue
			}
		}
		loopDelay = 0

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.handleConn(conn)
		}()
	}
}

// handleConn decodes frames from an inbound connection for its lifespan.
func (t *Transport) handleConn(conn net.Conn) {
	defer conn.Close()

	// Unblock the read when the transport closes.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-t.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	r := bufio.NewReader(conn)
	dec := codec.NewDecoder(r, &codec.MsgpackHandle{})
	reply := newOutConn(conn.RemoteAddr().String(), conn)

	for {
		if err := t.handleFrame(r, dec, reply); err != nil {
			if !errors.Is(err, io.EOF) && !t.isShutdown() {
				t.cfg.EvHandler("p2p: handleConn: %s: ERROR: %s", conn.RemoteAddr(), err)
			}
			return
		}
	}
}

// handleFrame decodes a single frame and hands it to its handler. Frames
// that expect an answer are answered on reply.
func (t *Transport) handleFrame(r *bufio.Reader, dec *codec.Decoder, reply *outConn) error {
	frame, err := r.ReadByte()
	if err != nil {
		return err
	}

	switch frame {
	case frameConsensus:
		var msg consensus.Message
		if err := dec.Decode(&msg); err != nil {
			return err
		}
		if t.cfg.OnConsensus != nil {
			t.cfg.OnConsensus(t.ctx, msg)
		}

	case frameTx:
		var tx database.SignedTx
		if err := dec.Decode(&tx); err != nil {
			return err
		}
		if t.cfg.OnTx != nil {
			t.cfg.OnTx(t.ctx, tx)
		}

	case frameStatusRequest:
		var req struct{}
		if err := dec.Decode(&req); err != nil {
			return err
		}

		if t.cfg.OnStatus == nil {
			return errors.New("status requested, no status handler")
		}

		status, err := t.cfg.OnStatus()
		if err != nil {
			return fmt.Errorf("building status: %w", err)
		}

		if err := reply.send(frameStatus, status, t.cfg.Timeout); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown frame type %d", frame)
	}

	return nil
}

func (t *Transport) isShutdown() bool {
	select {
	case <-t.shut:
		return true
	default:
		return false
	}
}
