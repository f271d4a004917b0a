package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/koltyakov/tunnelpool/internal/versionutil"
)

// WebSocket is the concrete Transport for "ws://"/"wss://" tunnel URLs,
// used when the remote endpoint is only reachable through HTTP-capable
// middleboxes. A gorilla/websocket connection is not safe for concurrent
// writers, so each handle serializes its writes through a dedicated
// write-pump goroutine, stripped to the single-priority case a
// best-effort packet send needs.
type WebSocket struct {
	log      *slog.Logger
	dialer   websocket.Dialer
	maxIdle  time.Duration
}

// NewWebSocket constructs a WebSocket transport.
func NewWebSocket(log *slog.Logger, maxIdle time.Duration) *WebSocket {
	if maxIdle <= 0 {
		maxIdle = 5 * time.Minute
	}
	return &WebSocket{
		log: log,
		dialer: websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
		},
		maxIdle: maxIdle,
	}
}

type wsWriteRequest struct {
	payload []byte
	done    chan error
}

type wsHandle struct {
	id   string
	conn *websocket.Conn
	seal *sealer

	writeCh chan wsWriteRequest
	stop    chan struct{}
	stopped sync.Once

	mu       sync.Mutex
	lastUsed time.Time
}

func (h *wsHandle) ID() string { return h.id }

func (h *wsHandle) touch() {
	h.mu.Lock()
	h.lastUsed = time.Now()
	h.mu.Unlock()
}

func (h *wsHandle) idleFor(now time.Time) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return now.Sub(h.lastUsed)
}

func (h *wsHandle) pump() {
	for {
		select {
		case <-h.stop:
			return
		case req := <-h.writeCh:
			err := h.conn.WriteMessage(websocket.BinaryMessage, req.payload)
			if req.done != nil {
				req.done <- err
			}
			if err != nil {
				return
			}
		}
	}
}

func (h *wsHandle) close() {
	h.stopped.Do(func() { close(h.stop) })
	_ = h.conn.Close()
}

// Open dials url (the scheme's host[:port]/path, with an optional #secret
// fragment used to derive the session AEAD key) and starts its write pump.
func (t *WebSocket) Open(ctx context.Context, rawURL string) (Handle, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("websocket transport: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("websocket transport: url %q is not a ws(s):// tunnel", rawURL)
	}

	seal, err := newSealer(u.Fragment)
	if err != nil {
		return nil, fmt.Errorf("websocket transport: %w", err)
	}

	dialURL := *u
	dialURL.Fragment = ""
	headers := http.Header{"User-Agent": {versionutil.UserAgent()}}
	conn, _, err := t.dialer.DialContext(ctx, dialURL.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("websocket transport: dial %s: %w", dialURL.String(), err)
	}

	h := &wsHandle{
		id:       uuid.New().String(),
		conn:     conn,
		seal:     seal,
		writeCh:  make(chan wsWriteRequest, 64),
		stop:     make(chan struct{}),
		lastUsed: time.Now(),
	}
	go h.pump()
	return h, nil
}

func (t *WebSocket) Close(h Handle) {
	wh, ok := h.(*wsHandle)
	if !ok || wh == nil {
		return
	}
	wh.close()
}

func (t *WebSocket) Send(h Handle, packet []byte) {
	wh, ok := h.(*wsHandle)
	if !ok || wh == nil {
		return
	}
	sealed, err := wh.seal.seal(packet)
	if err != nil {
		t.log.Warn("websocket transport: seal failed, dropping packet", "err", err)
		return
	}
	select {
	case wh.writeCh <- wsWriteRequest{payload: sealed}:
		wh.touch()
	default:
		t.log.Warn("websocket transport: write pump backpressure, dropping packet")
	}
}

func (t *WebSocket) MTU(h Handle, configMTU uint16) uint16 {
	_, ok := h.(*wsHandle)
	if !ok {
		return 0
	}
	// WebSocket framing over TCP has no meaningful path-MTU discovery of
	// its own; the configured ceiling stands as-is, with a conservative
	// fallback when unconfigured.
	const wsDefaultTunnelMTU = 1400
	if configMTU == 0 {
		return wsDefaultTunnelMTU
	}
	return configMTU
}

func (t *WebSocket) Timeout(h Handle, now time.Time) bool {
	wh, ok := h.(*wsHandle)
	if !ok || wh == nil {
		return true
	}
	return wh.idleFor(now) > t.maxIdle
}

func (t *WebSocket) FragmentationRequired(h Handle, mtu uint16, primary []byte) {
	wh, ok := h.(*wsHandle)
	if !ok || wh == nil {
		return
	}
	notice := fmt.Sprintf("FRAG_REQUIRED mtu=%d", mtu)
	sealed, err := wh.seal.seal([]byte(notice))
	if err != nil {
		t.log.Warn("websocket transport: seal fragmentation notice failed", "err", err)
		return
	}
	select {
	case wh.writeCh <- wsWriteRequest{payload: sealed}:
	default:
		t.log.Warn("websocket transport: write pump backpressure, dropping fragmentation notice")
	}
}

func (t *WebSocket) ParseURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "ws" || u.Scheme == "wss") && u.Host != ""
}
