// Package tun owns the process-wide virtual network interface.
package tun

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultMTU is the largest packet read from or written to the device.
const DefaultMTU = 1500

var (
	ErrClosed         = errors.New("tun endpoint closed")
	ErrPacketTooLarge = errors.New("packet exceeds MTU")
)

// Device is the raw interface handle. *water.Interface satisfies it.
type Device interface {
	io.ReadWriteCloser
	Name() string
}

// Endpoint serializes access to a Device. One goroutine may be inside Read
// and one inside Write at any time; the two never wait on each other, so a
// blocked read cannot stall packets headed into the kernel.
type Endpoint struct {
	dev Device
	mtu int

	readMu  sync.Mutex
	readBuf []byte

	writeMu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewEndpoint wraps an already-created device.
func NewEndpoint(dev Device, mtu int) *Endpoint {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &Endpoint{
		dev:     dev,
		mtu:     mtu,
		readBuf: make([]byte, mtu),
	}
}

// Name returns the OS interface name.
func (e *Endpoint) Name() string { return e.dev.Name() }

// MTU returns the configured packet size limit.
func (e *Endpoint) MTU() int { return e.mtu }

// ReadPacket blocks until the kernel hands over one packet and returns a copy
// of it.
func (e *Endpoint) ReadPacket() ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	e.readMu.Lock()
	n, err := e.dev.Read(e.readBuf)
	var pkt []byte
	if n > 0 {
		pkt = make([]byte, n)
		copy(pkt, e.readBuf[:n])
	}
	e.readMu.Unlock()

	if err != nil {
		if e.closed.Load() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("read %s: %w", e.dev.Name(), err)
	}
	return pkt, nil
}

// WritePacket injects one packet into the kernel.
func (e *Endpoint) WritePacket(pkt []byte) error {
	if len(pkt) > e.mtu {
		return fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, len(pkt), e.mtu)
	}
	if e.closed.Load() {
		return ErrClosed
	}

	e.writeMu.Lock()
	_, err := e.dev.Write(pkt)
	e.writeMu.Unlock()

	if err != nil {
		if e.closed.Load() {
			return ErrClosed
		}
		return fmt.Errorf("write %s: %w", e.dev.Name(), err)
	}
	return nil
}

// Close releases the device. A reader blocked in ReadPacket returns ErrClosed.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.closeErr = e.dev.Close()
	})
	return e.closeErr
}
