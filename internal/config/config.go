// Package config holds the runtime configuration for both roles.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/1ureka/tunrelay/internal/secure"
	"github.com/1ureka/tunrelay/internal/transport"
	"github.com/1ureka/tunrelay/internal/tun"
)

// Role represents the chosen side of the tunnel (server or client).
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Defaults shared by both roles.
const (
	DefaultPort       = 12345
	DefaultTUN        = "tun0"
	DefaultServerAddr = "10.8.0.1/24"
	DefaultClientAddr = "10.8.0.2/24"
	DefaultRoute      = "0.0.0.0/0"
	DefaultGateway    = "10.8.0.1"
	DefaultOutboxSize = 256
)

// Environment variables consulted when no key flag is given.
const (
	EnvKey        = "TUNRELAY_KEY"
	EnvPassphrase = "TUNRELAY_PASSPHRASE"
)

var ErrNoKey = errors.New("no key: set -key, -passphrase, " + EnvKey + " or " + EnvPassphrase)

// Config stores every parameter gathered from flags, the environment or the
// interactive prompts.
type Config struct {
	Role      Role
	Listen    string         // Server: address to accept peers on
	Server    string         // Client: address of the server
	Transport transport.Kind // tcp or ws

	Key        string // hex-encoded 32-byte key
	Passphrase string // used when Key is empty

	TUN       string
	MTU       int
	Address   string // interface CIDR
	Route     string // Client: destination routed through the tunnel
	Gateway   string // Client: next hop for Route
	Provision bool

	MetricsAddr string // empty disables the endpoint
	OutboxSize  int
	Debug       bool
}

// Default returns the configuration a role starts from.
func Default(role Role) Config {
	c := Config{
		Role:       role,
		Transport:  transport.TCP,
		TUN:        DefaultTUN,
		MTU:        tun.DefaultMTU,
		Provision:  true,
		OutboxSize: DefaultOutboxSize,
	}
	switch role {
	case RoleServer:
		c.Listen = fmt.Sprintf("0.0.0.0:%d", DefaultPort)
		c.Address = DefaultServerAddr
	case RoleClient:
		c.Address = DefaultClientAddr
		c.Route = DefaultRoute
		c.Gateway = DefaultGateway
	}
	return c
}

// Validate reports the first problem that would stop the role from starting.
func (c Config) Validate() error {
	switch c.Role {
	case RoleServer:
		if _, _, err := net.SplitHostPort(c.Listen); err != nil {
			return fmt.Errorf("invalid -listen %q: %w", c.Listen, err)
		}
	case RoleClient:
		if c.Server == "" {
			return errors.New("missing -server for client role")
		}
		if c.Transport == transport.TCP {
			if _, _, err := net.SplitHostPort(c.Server); err != nil {
				return fmt.Errorf("invalid -server %q: %w", c.Server, err)
			}
		}
	default:
		return fmt.Errorf("invalid role %q: must be 'server' or 'client'", c.Role)
	}

	if _, err := transport.ParseKind(string(c.Transport)); err != nil {
		return err
	}
	if c.Key == "" && c.Passphrase == "" {
		return ErrNoKey
	}
	if c.Key != "" {
		if _, err := secure.ParseKey(c.Key); err != nil {
			return err
		}
	}
	if c.TUN == "" {
		return errors.New("missing -tun interface name")
	}
	if c.MTU < 576 || c.MTU > 65535 {
		return fmt.Errorf("invalid -mtu %d: must be 576 ~ 65535", c.MTU)
	}
	if c.OutboxSize < 1 {
		return fmt.Errorf("invalid -outbox %d: must be at least 1", c.OutboxSize)
	}

	if c.Provision {
		if _, err := netip.ParsePrefix(c.Address); err != nil {
			return fmt.Errorf("invalid -addr %q: %w", c.Address, err)
		}
		if c.Route != "" {
			if _, err := netip.ParsePrefix(c.Route); err != nil {
				return fmt.Errorf("invalid -route %q: %w", c.Route, err)
			}
			if _, err := netip.ParseAddr(c.Gateway); err != nil {
				return fmt.Errorf("invalid -gateway %q: %w", c.Gateway, err)
			}
		}
	}

	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return fmt.Errorf("invalid -metrics %q: %w", c.MetricsAddr, err)
		}
	}
	return nil
}

// NewGateway builds the encryption gateway from the key or the passphrase.
func (c Config) NewGateway() (*secure.XChaCha, error) {
	var (
		key []byte
		err error
	)
	switch {
	case c.Key != "":
		key, err = secure.ParseKey(c.Key)
	case c.Passphrase != "":
		key, err = secure.DeriveKey(c.Passphrase)
	default:
		err = ErrNoKey
	}
	if err != nil {
		return nil, err
	}
	return secure.NewXChaCha(key)
}

// ProvisionConfig describes how the interface should be brought up.
func (c Config) ProvisionConfig() tun.ProvisionConfig {
	return tun.ProvisionConfig{
		Name:    c.TUN,
		MTU:     c.MTU,
		Address: c.Address,
		Route:   c.Route,
		Gateway: c.Gateway,
	}
}
