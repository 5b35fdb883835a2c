// tunrelay: CLI entry point.
//
// This tool relays IP packets between a local TUN interface and encrypted
// TCP (or WebSocket) connections. One server fans traffic out to any number
// of clients; each client routes its traffic through the server.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -listen, -server, -key, ...).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/1ureka/tunrelay/internal/app"
	"github.com/1ureka/tunrelay/internal/config"
	"github.com/1ureka/tunrelay/internal/secure"
	"github.com/1ureka/tunrelay/internal/transport"
	"github.com/1ureka/tunrelay/internal/util"
)

var version = "dev"

// flagValues mirrors the command line before role defaults are applied.
type flagValues struct {
	role       string
	listen     string
	server     string
	transport  string
	key        string
	passphrase string
	tun        string
	addr       string
	route      string
	gateway    string
	mtu        int
	provision  bool
	metrics    string
	outbox     int
	debug      bool
	genkey     bool
}

func main() {
	// Root context, cancelled on Ctrl+C or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// CLI flags.
	var f flagValues
	flag.StringVar(&f.role, "role", "", "Role: server or client")
	flag.StringVar(&f.listen, "listen", "", "Address to accept peers on (server, default 0.0.0.0:12345)")
	flag.StringVar(&f.server, "server", "", "Server address host:port (client)")
	flag.StringVar(&f.transport, "transport", string(transport.TCP), "Peer transport: tcp or ws")
	flag.StringVar(&f.key, "key", os.Getenv(config.EnvKey), "Pre-shared key, 64 hex characters")
	flag.StringVar(&f.passphrase, "passphrase", os.Getenv(config.EnvPassphrase), "Derive the key from this passphrase instead of -key")
	flag.StringVar(&f.tun, "tun", config.DefaultTUN, "TUN interface name")
	flag.StringVar(&f.addr, "addr", "", "Interface address in CIDR form (default 10.8.0.1/24 server, 10.8.0.2/24 client)")
	flag.StringVar(&f.route, "route", "", "Destination routed through the tunnel (client, default 0.0.0.0/0, \"none\" to skip)")
	flag.StringVar(&f.gateway, "gateway", "", "Next hop for -route (client, default 10.8.0.1)")
	flag.IntVar(&f.mtu, "mtu", 0, "Interface MTU (default 1500)")
	flag.BoolVar(&f.provision, "provision", true, "Configure address and routes with the ip tool")
	flag.StringVar(&f.metrics, "metrics", "", "Serve Prometheus metrics on this address")
	flag.IntVar(&f.outbox, "outbox", config.DefaultOutboxSize, "Envelopes queued per peer before dropping")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&f.genkey, "genkey", false, "Print a new random key and exit")
	flag.Parse()

	if f.genkey {
		key, err := secure.GenerateKey()
		if err != nil {
			util.LogError("failed to generate key: %v", err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	if f.debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("tunrelay — v%s", version))
	pterm.Println()

	var cfg config.Config
	if f.role == "" {
		// No -role flag → interactive mode.
		cfg = runInteractive(f)
	} else {
		var err error
		if cfg, err = buildConfig(f); err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.StartStatsReporter(ctx, util.DefaultStatsInterval)

	var err error
	switch cfg.Role {
	case config.RoleServer:
		err = app.RunServer(ctx, cfg)
	case config.RoleClient:
		err = app.RunClient(ctx, cfg)
	}
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("successfully closed tunnel")
}

// buildConfig layers the parsed flags over the role defaults.
func buildConfig(f flagValues) (config.Config, error) {
	role := config.Role(f.role)
	if role != config.RoleServer && role != config.RoleClient {
		return config.Config{}, errors.New("invalid -role: must be 'server' or 'client'")
	}

	kind, err := transport.ParseKind(f.transport)
	if err != nil {
		return config.Config{}, err
	}

	cfg := config.Default(role)
	cfg.Transport = kind
	cfg.Server = f.server
	cfg.Key = f.key
	cfg.Passphrase = f.passphrase
	cfg.TUN = f.tun
	cfg.Provision = f.provision
	cfg.MetricsAddr = f.metrics
	cfg.OutboxSize = f.outbox
	cfg.Debug = f.debug

	if f.listen != "" {
		cfg.Listen = f.listen
	}
	if f.addr != "" {
		cfg.Address = f.addr
	}
	switch f.route {
	case "":
	case "none":
		cfg.Route = ""
	default:
		cfg.Route = f.route
	}
	if f.gateway != "" {
		cfg.Gateway = f.gateway
	}
	if f.mtu > 0 {
		cfg.MTU = f.mtu
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// Interactive mode
// ---------------------------------------------------------------------------

// runInteractive asks for the role and whatever the flags left unset.
func runInteractive(f flagValues) config.Config {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Server — Accept clients and relay their traffic", "Client — Route traffic through a server"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Server") {
		f.role = string(config.RoleServer)
	} else {
		f.role = string(config.RoleClient)
		for f.server == "" {
			f.server = askText("Server address (e.g. 203.0.113.7:12345)")
		}
	}

	if f.key == "" && f.passphrase == "" {
		for f.passphrase == "" {
			f.passphrase = askSecret("Shared passphrase")
		}
	}

	cfg, err := buildConfig(f)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	return cfg
}

// askText prompts until a non-empty answer is entered.
func askText(prompt string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()
		pterm.Println()

		if s := strings.TrimSpace(raw); s != "" {
			return s
		}
		util.LogWarning("invalid input: value must not be empty")
	}
}

// askSecret prompts with masked input.
func askSecret(prompt string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		WithMask("*").
		Show()
	pterm.Println()
	return strings.TrimSpace(raw)
}
