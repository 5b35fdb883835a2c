// Package relay moves packets between the TUN endpoint and the connected
// peers.
//
// Each attached peer runs two goroutines: a writer that drains the peer's
// outbox onto its socket, and an outbound pump that reads envelopes from the
// socket into the TUN endpoint. A single inbound pump (PumpTUN) reads the
// endpoint, seals each packet once, and fans the envelope out through the
// registry.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/1ureka/tunrelay/internal/secure"
	"github.com/1ureka/tunrelay/internal/util"
)

// acceptBackoff spaces out retries after a transient accept failure.
const acceptBackoff = 50 * time.Millisecond

// PacketDevice is the TUN side of the relay. *tun.Endpoint satisfies it.
type PacketDevice interface {
	ReadPacket() ([]byte, error)
	WritePacket(pkt []byte) error
}

// Relay wires a packet device, an encryption gateway and a peer registry.
type Relay struct {
	dev        PacketDevice
	gw         secure.Gateway
	reg        *Registry
	ids        idGen
	outboxSize int
}

// Option customizes a Relay.
type Option func(*Relay)

// WithOutboxSize sets how many envelopes may queue per peer before new ones
// are dropped.
func WithOutboxSize(n int) Option {
	return func(r *Relay) { r.outboxSize = n }
}

// New creates a relay with an empty registry.
func New(dev PacketDevice, gw secure.Gateway, opts ...Option) *Relay {
	r := &Relay{
		dev:        dev,
		gw:         gw,
		reg:        NewRegistry(),
		outboxSize: defaultOutboxSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry exposes the live peer table.
func (r *Relay) Registry() *Registry { return r.reg }

// Attach registers conn as a new peer and starts its writer and outbound
// pump. The peer is Active before it becomes visible in the registry, so a
// concurrent Shutdown always sees a fully started peer.
func (r *Relay) Attach(conn net.Conn) *Peer {
	p := newPeer(r.ids.next(), conn, r.outboxSize, r.detach)
	p.state.Store(int32(StateActive))
	p.wg.Add(2)
	util.Stats.AddPeer()
	r.reg.Insert(p)

	go p.writeLoop()
	go r.pumpPeerToTUN(p)

	util.LogInfo("[peer %d] connected from %s", p.id, p.remote)
	return p
}

// detach is the peer's onClose hook.
func (r *Relay) detach(p *Peer) {
	if _, ok := r.reg.Remove(p.id); ok {
		util.Stats.RemovePeer()
	}
}

// Serve accepts connections on ln and attaches each one as a peer. It
// returns nil once ctx is cancelled, or the accept error if ln fails for any
// other reason.
func (r *Relay) Serve(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)

	// Close the listener when ctx is done so Accept() returns an error.
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept error: %w", err)
			}
			util.LogError("connection failed: %v", err)
			time.Sleep(acceptBackoff)
			continue
		}
		r.Attach(conn)
	}
}

// Shutdown drains and closes every peer.
func (r *Relay) Shutdown() error {
	return r.reg.CloseAll()
}
