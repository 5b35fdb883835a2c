// Package transport produces the byte streams peers talk over. Both kinds
// yield a plain net.Conn, so the relay never knows which one it is using.
package transport

import (
	"context"
	"fmt"
	"net"
)

// Kind selects the carrier for envelopes.
type Kind string

const (
	TCP       Kind = "tcp"
	WebSocket Kind = "ws"
)

// ParseKind validates a -transport flag value.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case TCP, WebSocket:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown transport %q (want tcp or ws)", s)
}

// Listen opens a listener of the given kind on addr.
func Listen(kind Kind, addr string) (net.Listener, error) {
	switch kind {
	case TCP:
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		return ln, nil
	case WebSocket:
		ln, err := listenWS(addr)
		if err != nil {
			return nil, err
		}
		return ln, nil
	}
	return nil, fmt.Errorf("unknown transport %q", kind)
}

// Dial connects to a server listening with the given kind.
func Dial(ctx context.Context, kind Kind, addr string) (net.Conn, error) {
	switch kind {
	case TCP:
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		return conn, nil
	case WebSocket:
		return dialWS(ctx, addr)
	}
	return nil, fmt.Errorf("unknown transport %q", kind)
}
