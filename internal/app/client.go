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

// RunClient orchestrates the full client lifecycle:
//  1. Build the encryption gateway
//  2. Connect to the server
//  3. Open and provision the TUN device (address + route through the server)
//  4. Relay traffic until ctx is cancelled or the server goes away
//
// There is no reconnection: a lost server ends the run.
func RunClient(ctx context.Context, cfg config.Config) error {
	// ── 1. Gateway ─────────────────────────────────────────────────────
	gw, err := cfg.NewGateway()
	if err != nil {
		return err
	}

	// ── 2. Connect ─────────────────────────────────────────────────────
	conn, err := transport.Dial(ctx, cfg.Transport, cfg.Server)
	if err != nil {
		return err
	}
	util.LogInfo("connected to %s (%s)", cfg.Server, cfg.Transport)

	// ── 3. TUN device ──────────────────────────────────────────────────
	dev, release, err := setupDevice(cfg)
	if err != nil {
		conn.Close()
		return err
	}
	defer release()

	// ── 4. Relay ───────────────────────────────────────────────────────
	r := relay.New(dev, gw, relay.WithOutboxSize(cfg.OutboxSize))
	server := r.Attach(conn)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.PumpTUN(gctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr) })
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-server.Done():
			util.LogWarning("connection to server closed")
			cancel()
		}
		err := multierr.Append(r.Shutdown(), dev.Close())
		if err != nil {
			return fmt.Errorf("client stopped: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	util.LogInfo("tunnel closed")
	return nil
}
