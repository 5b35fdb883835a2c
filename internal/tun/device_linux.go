//go:build linux

package tun

import (
	"fmt"

	"github.com/songgao/water"
)

// Open creates the named TUN interface and wraps it in an Endpoint.
func Open(name string, mtu int) (*Endpoint, error) {
	cfg := water.Config{
		DeviceType: water.TUN,
	}
	if name != "" {
		cfg.PlatformSpecificParams.Name = name
	}

	iface, err := water.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create TUN interface: %w", err)
	}
	return NewEndpoint(iface, mtu), nil
}
