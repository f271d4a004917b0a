package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
)

// QUIC is the concrete Transport for "quic://" tunnel URLs. It dials a
// QUIC session per tunnel and multiplexes packets over a single
// bidirectional stream. The pool never imports this type directly; it goes
// through the Registry (see transport.go).
type QUIC struct {
	log        *slog.Logger
	tlsConfig  *tls.Config
	quicConfig *quic.Config
	maxIdle    time.Duration
}

// NewQUIC constructs a QUIC transport. maxIdle bounds how long a tunnel may
// go without traffic before Timeout reports it as expired.
func NewQUIC(log *slog.Logger, maxIdle time.Duration) *QUIC {
	if maxIdle <= 0 {
		maxIdle = 5 * time.Minute
	}
	return &QUIC{
		log:     log,
		tlsConfig: &tls.Config{
			InsecureSkipVerify: false,
			NextProtos:         []string{"tunnelpool/1"},
			MinVersion:         tls.VersionTLS13,
		},
		quicConfig: &quic.Config{
			MaxIdleTimeout:  maxIdle,
			KeepAlivePeriod: maxIdle / 3,
		},
		maxIdle: maxIdle,
	}
}

type quicHandle struct {
	id     string
	conn   *quic.Conn
	stream *quic.Stream
	seal   *sealer

	mu       sync.Mutex
	openedAt time.Time
	lastUsed time.Time
}

func (h *quicHandle) ID() string { return h.id }

func (h *quicHandle) touch() {
	h.mu.Lock()
	h.lastUsed = time.Now()
	h.mu.Unlock()
}

func (h *quicHandle) idleFor(now time.Time) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return now.Sub(h.lastUsed)
}

// Open dials url (host[:port] plus an optional #secret fragment used to
// derive the session AEAD key) and opens one bidirectional stream.
func (t *QUIC) Open(ctx context.Context, rawURL string) (Handle, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("quic transport: parse url: %w", err)
	}
	if u.Scheme != "quic" || u.Host == "" {
		return nil, fmt.Errorf("quic transport: url %q is not a quic:// tunnel", rawURL)
	}

	seal, err := newSealer(u.Fragment)
	if err != nil {
		return nil, fmt.Errorf("quic transport: %w", err)
	}

	conn, err := quic.DialAddr(ctx, u.Host, t.tlsConfig, t.quicConfig)
	if err != nil {
		return nil, fmt.Errorf("quic transport: dial %s: %w", u.Host, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "stream open failed")
		return nil, fmt.Errorf("quic transport: open stream: %w", err)
	}

	now := time.Now()
	return &quicHandle{
		id:       uuid.New().String(),
		conn:     conn,
		stream:   stream,
		seal:     seal,
		openedAt: now,
		lastUsed: now,
	}, nil
}

func (t *QUIC) Close(h Handle) {
	qh, ok := h.(*quicHandle)
	if !ok || qh == nil {
		return
	}
	_ = qh.stream.Close()
	qh.conn.CloseWithError(0, "closed")
}

func (t *QUIC) Send(h Handle, packet []byte) {
	qh, ok := h.(*quicHandle)
	if !ok || qh == nil {
		return
	}
	sealed, err := qh.seal.seal(packet)
	if err != nil {
		t.log.Warn("quic transport: seal failed, dropping packet", "err", err)
		return
	}
	if _, err := qh.stream.Write(sealed); err != nil {
		t.log.Warn("quic transport: send failed", "err", err)
		return
	}
	qh.touch()
}

func (t *QUIC) MTU(h Handle, configMTU uint16) uint16 {
	qh, ok := h.(*quicHandle)
	if !ok || qh == nil {
		return 0
	}
	select {
	case <-qh.conn.Context().Done():
		return 0
	default:
	}
	// quic-go handles its own fragmentation below the path MTU it
	// discovers; the pool-visible MTU is simply the configured ceiling,
	// clamped to a sane maximum datagram-adjacent size.
	const quicMaxTunnelMTU = 1350
	if configMTU == 0 || configMTU > quicMaxTunnelMTU {
		return quicMaxTunnelMTU
	}
	return configMTU
}

func (t *QUIC) Timeout(h Handle, now time.Time) bool {
	qh, ok := h.(*quicHandle)
	if !ok || qh == nil {
		return true
	}
	select {
	case <-qh.conn.Context().Done():
		return true
	default:
	}
	return qh.idleFor(now) > t.maxIdle
}

func (t *QUIC) FragmentationRequired(h Handle, mtu uint16, primary []byte) {
	qh, ok := h.(*quicHandle)
	if !ok || qh == nil {
		return
	}
	notice := fmt.Sprintf("FRAG_REQUIRED mtu=%d", mtu)
	sealed, err := qh.seal.seal([]byte(notice))
	if err != nil {
		t.log.Warn("quic transport: seal fragmentation notice failed", "err", err)
		return
	}
	if _, err := qh.stream.Write(sealed); err != nil {
		t.log.Warn("quic transport: send fragmentation notice failed", "err", err)
	}
}

func (t *QUIC) ParseURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "quic" && u.Host != ""
}
