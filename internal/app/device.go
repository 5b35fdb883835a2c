// Package app contains the top-level orchestration for server and client
// roles.
package app

import (
	"fmt"

	"github.com/1ureka/tunrelay/internal/config"
	"github.com/1ureka/tunrelay/internal/tun"
	"github.com/1ureka/tunrelay/internal/util"
)

// Hooks for the OS-facing steps. Tests swap them for in-memory devices and a
// command recorder.
var (
	openDevice = tun.Open
	runCommand tun.Runner
)

// setupDevice opens the TUN interface and, when requested, assigns its
// address and routes. The returned release function closes the device and
// removes the interface.
func setupDevice(cfg config.Config) (*tun.Endpoint, func(), error) {
	dev, err := openDevice(cfg.TUN, cfg.MTU)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open TUN device %s: %w", cfg.TUN, err)
	}
	util.LogInfo("TUN device %s opened (mtu %d)", dev.Name(), dev.MTU())

	if !cfg.Provision {
		return dev, func() { dev.Close() }, nil
	}

	pc := cfg.ProvisionConfig()
	pc.Name = dev.Name()
	if err := tun.Provision(pc, runCommand); err != nil {
		dev.Close()
		return nil, nil, fmt.Errorf("failed to provision %s: %w", pc.Name, err)
	}
	util.LogInfo("%s configured with %s", pc.Name, pc.Address)
	if pc.Route != "" {
		util.LogDebug("route %s via %s requested", pc.Route, pc.Gateway)
	}

	release := func() {
		dev.Close()
		// Closing a non-persistent TUN usually removes the link already.
		if err := tun.Teardown(pc.Name, runCommand); err != nil {
			util.LogDebug("teardown %s: %v", pc.Name, err)
		}
	}
	return dev, release, nil
}
