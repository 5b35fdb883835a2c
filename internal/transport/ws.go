package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/tunrelay/internal/protocol"
	"github.com/1ureka/tunrelay/internal/util"
)

// TunnelPath is the HTTP path the WebSocket listener upgrades.
const TunnelPath = "/tunnel"

const closeGrace = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  protocol.HeaderSize + protocol.MaxPayloadSize,
	WriteBufferSize: protocol.HeaderSize + protocol.MaxPayloadSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ---------------------------------------------------------------------------
// Listener
// ---------------------------------------------------------------------------

// wsListener adapts an HTTP server that upgrades TunnelPath into a
// net.Listener. Each upgraded connection is handed to Accept.
type wsListener struct {
	ln     net.Listener
	srv    *http.Server
	connCh chan net.Conn
	done   chan struct{}
	once   sync.Once
}

func listenWS(addr string) (*wsListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start WS server: %w", err)
	}

	l := &wsListener{
		ln:     ln,
		connCh: make(chan net.Conn),
		done:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(TunnelPath, l.handleTunnel)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("WS server stopped: %v", err)
		}
	}()

	return l, nil
}

func (l *wsListener) handleTunnel(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogDebug("WS upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	conn := newWSConn(ws)

	select {
	case l.connCh <- conn:
	case <-l.done:
		conn.Close()
	}
}

// Accept blocks until a client completes the upgrade or the listener closes.
func (l *wsListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.connCh:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close stops the HTTP server. Connections already accepted stay open.
func (l *wsListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

func (l *wsListener) Addr() net.Addr { return l.ln.Addr() }

// ---------------------------------------------------------------------------
// Dialer
// ---------------------------------------------------------------------------

// tunnelURL turns "host:port", "ws://host:port" or "wss://host/anything"
// into the tunnel endpoint URL.
func tunnelURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket address: %s", raw)
	}
	scheme := "ws"
	if u.Scheme == "wss" {
		scheme = u.Scheme
	}
	return fmt.Sprintf("%s://%s%s", scheme, u.Host, TunnelPath), nil
}

func dialWS(ctx context.Context, addr string) (net.Conn, error) {
	u, err := tunnelURL(addr)
	if err != nil {
		return nil, err
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return newWSConn(ws), nil
}

// ---------------------------------------------------------------------------
// Conn
// ---------------------------------------------------------------------------

// wsConn presents a WebSocket as a byte stream. Every Write becomes one
// binary message; Read concatenates incoming binary messages.
type wsConn struct {
	ws *websocket.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	ws.SetReadLimit(protocol.HeaderSize + protocol.MaxPayloadSize)
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(b []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			mt, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(b)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (c *wsConn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close sends a close frame and releases the socket.
func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	return errors.Join(c.ws.SetReadDeadline(t), c.ws.SetWriteDeadline(t))
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
