// Package transport defines the tunnel transport contract the pool depends
// on, plus a scheme registry so the pool never imports a concrete transport
// implementation directly.
package transport

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Handle is an opaque reference to an open tunnel transport.
type Handle interface {
	// ID is a short string useful for log correlation; it carries no
	// semantic meaning to the pool.
	ID() string
}

// Transport is the external collaborator the pool forwards packets
// through. Implementations may block in Open; every other method must be
// cheap enough to call while holding the pool mutex, except Close, Send and
// FragmentationRequired, which the pool calls after releasing the mutex.
type Transport interface {
	// Open dials the tunnel named by url. It may block and must respect
	// ctx cancellation. Returns a nil Handle and an error if the tunnel
	// could not be established.
	Open(ctx context.Context, url string) (Handle, error)

	// Close releases a handle. Idempotent; safe to call with a nil handle.
	Close(h Handle)

	// Send is best-effort; it has no return value by design.
	Send(h Handle, packet []byte)

	// MTU returns the effective MTU for h, given the configured ceiling.
	// Zero means the tunnel is unusable.
	MTU(h Handle, configMTU uint16) uint16

	// Timeout reports whether h has exceeded its transport-declared
	// lifetime as of now.
	Timeout(h Handle, now time.Time) bool

	// FragmentationRequired notifies the tunnel peer that primary exceeded
	// mtu and must be fragmented by the transport layer, not the pool.
	FragmentationRequired(h Handle, mtu uint16, primary []byte)

	// ParseURL performs a syntactic check only; it does not dial.
	ParseURL(url string) bool
}

// Registry maps URL schemes to Transport implementations, so pool.Pool
// depends only on the Transport interface and this registry, never on a
// concrete quic or websocket implementation.
type Registry struct {
	mu    sync.RWMutex
	byScm map[string]Transport
}

// NewRegistry creates an empty scheme registry.
func NewRegistry() *Registry {
	return &Registry{byScm: make(map[string]Transport)}
}

// Register associates scheme (e.g. "quic", "ws", "wss") with t.
func (r *Registry) Register(scheme string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byScm[strings.ToLower(scheme)] = t
}

// For returns the Transport registered for url's scheme.
func (r *Registry) For(url string) (Transport, bool) {
	scheme, _, ok := strings.Cut(url, "://")
	if !ok {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byScm[strings.ToLower(scheme)]
	return t, ok
}

// ParseURL reports whether url is syntactically valid for any registered
// scheme's transport.
func (r *Registry) ParseURL(url string) bool {
	t, ok := r.For(url)
	if !ok {
		return false
	}
	return t.ParseURL(url)
}
