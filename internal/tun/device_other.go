//go:build !linux

package tun

import (
	"errors"
	"runtime"
)

// Open is only implemented on Linux.
func Open(name string, mtu int) (*Endpoint, error) {
	return nil, errors.New("TUN devices are not supported on " + runtime.GOOS)
}
