package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide traffic/peer counter.
var Stats = &stats{}

type stats struct {
	PeersAccepted  atomic.Int64 // cumulative peers attached since process start
	PeersClosed    atomic.Int64 // cumulative peers closed since process start
	BytesSent      atomic.Int64 // cumulative envelope bytes written to peers
	BytesRecv      atomic.Int64 // cumulative envelope bytes read from peers
	PacketsFromTUN atomic.Int64 // packets read from the TUN device
	PacketsToTUN   atomic.Int64 // packets injected into the TUN device
	Dropped        atomic.Int64 // packets or envelopes discarded on a per-packet error
}

func (s *stats) AddPeer()      { s.PeersAccepted.Add(1) }
func (s *stats) RemovePeer()   { s.PeersClosed.Add(1) }
func (s *stats) AddSent(n int) { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int) { s.BytesRecv.Add(int64(n)) }
func (s *stats) AddFromTUN()   { s.PacketsFromTUN.Add(1) }
func (s *stats) AddToTUN()     { s.PacketsToTUN.Add(1) }
func (s *stats) AddDropped()   { s.Dropped.Add(1) }

// ActivePeers is the number of peers attached and not yet closed.
func (s *stats) ActivePeers() int64 {
	return s.PeersAccepted.Load() - s.PeersClosed.Load()
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// DefaultStatsInterval is how often the CLI logs throughput.
const DefaultStatsInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs tunnel statistics
// every interval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevSent, prevRecv, prevDropped int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				dropped := Stats.Dropped.Load()

				outS := float64(sent-prevSent) / secs
				inS := float64(recv-prevRecv) / secs

				if outS > 10 || inS > 10 || dropped != prevDropped {
					pterm.DefaultLogger.Info(formatStats(inS, outS, Stats.ActivePeers(), dropped-prevDropped))
				}

				prevSent = sent
				prevRecv = recv
				prevDropped = dropped

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, peers, dropped int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Peers: %2d | Dropped: %d",
		formatBytes(inS),
		formatBytes(outS),
		peers,
		dropped,
	)
}
