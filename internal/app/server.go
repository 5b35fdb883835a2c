package app

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/1ureka/tunrelay/internal/config"
	"github.com/1ureka/tunrelay/internal/relay"
	"github.com/1ureka/tunrelay/internal/transport"
	"github.com/1ureka/tunrelay/internal/util"
)

// RunServer orchestrates the full server lifecycle:
//  1. Build the encryption gateway
//  2. Open and provision the TUN device
//  3. Listen for peers
//  4. Relay traffic until ctx is cancelled
//  5. Drain peers, then release the device
func RunServer(ctx context.Context, cfg config.Config) error {
	// ── 1. Gateway ─────────────────────────────────────────────────────
	gw, err := cfg.NewGateway()
	if err != nil {
		return err
	}

	// ── 2. TUN device ──────────────────────────────────────────────────
	dev, release, err := setupDevice(cfg)
	if err != nil {
		return err
	}
	defer release()

	// ── 3. Listener ────────────────────────────────────────────────────
	ln, err := transport.Listen(cfg.Transport, cfg.Listen)
	if err != nil {
		return err
	}
	util.LogInfo("listening for peers on %s (%s)", ln.Addr(), cfg.Transport)

	// ── 4. Relay ───────────────────────────────────────────────────────
	r := relay.New(dev, gw, relay.WithOutboxSize(cfg.OutboxSize))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.Serve(gctx, ln) })
	g.Go(func() error { return r.PumpTUN(gctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr) })
	}

	// ── 5. Shutdown ────────────────────────────────────────────────────
	// Peers drain before the device closes; closing it unblocks PumpTUN.
	g.Go(func() error {
		<-gctx.Done()
		return multierr.Append(r.Shutdown(), dev.Close())
	})

	err = g.Wait()

	// A peer accepted while shutdown was snapshotting the registry.
	err = multierr.Append(err, r.Shutdown())
	if err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	util.LogInfo("server stopped")
	return nil
}
