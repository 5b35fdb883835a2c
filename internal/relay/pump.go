package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/1ureka/tunrelay/internal/protocol"
	"github.com/1ureka/tunrelay/internal/tun"
	"github.com/1ureka/tunrelay/internal/util"
)

// readErrorBackoff keeps a persistently failing device from spinning the
// inbound pump.
const readErrorBackoff = 10 * time.Millisecond

// ---------------------------------------------------------------------------
// TUN → peers
// ---------------------------------------------------------------------------

// PumpTUN reads packets from the device, seals each one and broadcasts the
// envelope to every peer except the one the packet came from. It returns nil
// when the device is closed or ctx is cancelled; every other error is logged
// and the loop keeps going.
func (r *Relay) PumpTUN(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		pkt, err := r.dev.ReadPacket()
		if err != nil {
			if errors.Is(err, tun.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			util.LogError("TUN read error: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readErrorBackoff):
			}
			continue
		}
		util.Stats.AddFromTUN()

		sealed, err := r.gw.Encrypt(pkt)
		if err != nil {
			util.LogError("encryption error: %v", err)
			util.Stats.AddDropped()
			continue
		}
		frame := protocol.Encode(sealed)

		exclude := NoPeer
		if src, ok := sourceAddr(pkt); ok {
			if id, found := r.reg.LookupAddr(src); found {
				exclude = id
			}
		}

		n := r.reg.Broadcast(frame, exclude)
		if util.DebugEnabled() {
			util.LogDebug("TUN → %d peer(s): %s", n, describe(pkt))
		}
	}
}

// ---------------------------------------------------------------------------
// Peer → TUN
// ---------------------------------------------------------------------------

// pumpPeerToTUN reads envelopes from the peer socket and injects the opened
// packets into the device. A bad envelope or ciphertext costs one packet; a
// closed or broken stream ends the peer.
func (r *Relay) pumpPeerToTUN(p *Peer) {
	defer p.wg.Done()

	for {
		data, err := protocol.ReadEnvelope(p.conn)
		if err != nil {
			var fe *protocol.FormatError
			if errors.As(err, &fe) && fe.Recoverable() {
				util.LogWarning("[peer %d] dropping envelope: %v", p.id, err)
				util.Stats.AddDropped()
				continue
			}

			switch {
			case p.State() >= StateDraining:
				// Already shutting down; the socket was closed under us.
				p.close(nil)
			case errors.Is(err, io.EOF):
				p.close(nil)
			default:
				p.close(fmt.Errorf("read: %w", err))
			}
			return
		}
		util.Stats.AddRecv(protocol.HeaderSize + len(data))

		pkt, err := r.gw.Decrypt(data)
		if err != nil {
			util.LogWarning("[peer %d] dropping envelope: %v", p.id, err)
			util.Stats.AddDropped()
			continue
		}

		if src, ok := sourceAddr(pkt); ok && p.learnAddr(src) {
			util.LogInfo("[peer %d] tunnel address %s", p.id, src)
		}

		if err := r.dev.WritePacket(pkt); err != nil {
			if errors.Is(err, tun.ErrClosed) {
				p.close(nil)
				return
			}
			util.LogError("[peer %d] TUN write error: %v", p.id, err)
			util.Stats.AddDropped()
			continue
		}
		util.Stats.AddToTUN()

		if util.DebugEnabled() {
			util.LogDebug("[peer %d] → TUN: %s", p.id, describe(pkt))
		}
	}
}
