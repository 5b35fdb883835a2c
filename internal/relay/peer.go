package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1ureka/tunrelay/internal/util"
)

// Tuning constants.
const (
	defaultOutboxSize = 256             // per-peer queued envelopes
	drainTimeout      = 2 * time.Second // write deadline while flushing on shutdown
)

var (
	ErrPeerClosed = errors.New("peer closed")
	ErrOutboxFull = errors.New("peer outbox full")
)

// State is the lifecycle stage of a peer connection.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Peer holds the complete lifecycle state for one connection. Two goroutines
// own it while it is active: the writer draining the outbox and the
// outbound pump reading the socket.
type Peer struct {
	// Identity
	id     ID
	conn   net.Conn
	remote string

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	state     atomic.Int32
	drain     chan struct{}
	drainOnce sync.Once
	closeOnce sync.Once
	closeErr  error
	onClose   func(*Peer)
	wg        sync.WaitGroup

	// Encoded envelopes waiting for the writer.
	outbox chan []byte

	// Tunnel source address first seen from this peer.
	addr atomic.Pointer[netip.Addr]
}

// newPeer creates a peer in the Connecting state. onClose runs exactly once
// when the peer closes.
func newPeer(id ID, conn net.Conn, outboxSize int, onClose func(*Peer)) *Peer {
	if outboxSize <= 0 {
		outboxSize = defaultOutboxSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		id:      id,
		conn:    conn,
		ctx:     ctx,
		cancel:  cancel,
		drain:   make(chan struct{}),
		onClose: onClose,
		outbox:  make(chan []byte, outboxSize),
	}
	if ra := conn.RemoteAddr(); ra != nil {
		p.remote = ra.String()
	}
	return p
}

func (p *Peer) ID() ID             { return p.id }
func (p *Peer) RemoteAddr() string { return p.remote }
func (p *Peer) State() State       { return State(p.state.Load()) }

// Done is closed once the peer reaches StateClosed.
func (p *Peer) Done() <-chan struct{} { return p.ctx.Done() }

// Wait blocks until both peer goroutines have returned.
func (p *Peer) Wait() { p.wg.Wait() }

// Addr returns the learned tunnel address, if any packet has revealed it.
func (p *Peer) Addr() (netip.Addr, bool) {
	a := p.addr.Load()
	if a == nil {
		return netip.Addr{}, false
	}
	return *a, true
}

// learnAddr records addr the first time it is called and reports whether it
// did so.
func (p *Peer) learnAddr(addr netip.Addr) bool {
	return p.addr.CompareAndSwap(nil, &addr)
}

// Send queues one encoded envelope. It never blocks: a full outbox rejects
// the frame so a slow peer cannot stall the caller.
func (p *Peer) Send(frame []byte) error {
	if p.State() >= StateDraining {
		return ErrPeerClosed
	}
	select {
	case p.outbox <- frame:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Shutdown moves the peer to Draining. The writer flushes what is queued and
// then closes the connection. A peer whose writer never started is closed
// directly.
func (p *Peer) Shutdown() {
	p.drainOnce.Do(func() {
		if !p.state.CompareAndSwap(int32(StateActive), int32(StateDraining)) {
			p.close(nil)
			return
		}
		close(p.drain)
	})
}

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

// writeLoop is the single writer for the socket. Frames leave in the order
// they were queued.
func (p *Peer) writeLoop() {
	defer p.wg.Done()

	for {
		select {
		case frame := <-p.outbox:
			if err := p.writeFrame(frame); err != nil {
				p.close(fmt.Errorf("write: %w", err))
				return
			}

		case <-p.drain:
			p.flush()
			p.close(nil)
			return

		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Peer) writeFrame(frame []byte) error {
	if _, err := p.conn.Write(frame); err != nil {
		return err
	}
	util.Stats.AddSent(len(frame))
	return nil
}

// flush writes whatever is still queued, bounded by drainTimeout.
func (p *Peer) flush() {
	_ = p.conn.SetWriteDeadline(time.Now().Add(drainTimeout))
	for {
		select {
		case frame := <-p.outbox:
			if err := p.writeFrame(frame); err != nil {
				util.LogDebug("[peer %d] flush stopped: %v", p.id, err)
				return
			}
		default:
			return
		}
	}
}

// close consolidates all shutdown actions behind sync.Once so that
// regardless of which goroutine exits first, the socket is closed and the
// registry entry removed exactly once.
func (p *Peer) close(reason error) {
	p.closeOnce.Do(func() {
		p.state.Store(int32(StateClosed))
		p.cancel()
		if err := p.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			p.closeErr = fmt.Errorf("peer %d: %w", p.id, err)
		}
		if p.onClose != nil {
			p.onClose(p)
		}
		if reason != nil {
			util.LogWarning("[peer %d] closed: %v", p.id, reason)
		} else {
			util.LogInfo("[peer %d] disconnected", p.id)
		}
	})
}
