package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/koltyakov/tunnelpool/internal/transport"
)

// fakeHandle and fakeTransport give the pool's background workers
// something to drive without a real network, the same role a stub
// collaborator plays in any mutex-guarded worker-pool test.
type fakeHandle struct {
	id string
}

func (h *fakeHandle) ID() string { return h.id }

type fakeTransport struct {
	mu sync.Mutex

	// failTimes is how many consecutive Open calls per URL should fail
	// before succeeding; absent entries always succeed immediately.
	failTimes map[string]int
	opens     map[string]int
	closed    []string
	sent      [][]byte
	mtu       uint16
	timedOut  bool

	// blockSend, when non-nil, is closed by the test once it has observed
	// that Send is blocking, letting a probe goroutine confirm the pool
	// mutex was released before this call.
	blockSend <-chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		failTimes: make(map[string]int),
		opens:     make(map[string]int),
		mtu:       1400,
	}
}

func (t *fakeTransport) Open(ctx context.Context, url string) (transport.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens[url]++
	if t.failTimes[url] > 0 {
		t.failTimes[url]--
		return nil, errors.New("fake: dial failed")
	}
	return &fakeHandle{id: url}, nil
}

func (t *fakeTransport) Close(h transport.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h == nil {
		return
	}
	t.closed = append(t.closed, h.ID())
}

func (t *fakeTransport) Send(h transport.Handle, packet []byte) {
	if t.blockSend != nil {
		<-t.blockSend
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, packet)
}

func (t *fakeTransport) MTU(h transport.Handle, configMTU uint16) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mtu
}

func (t *fakeTransport) Timeout(h transport.Handle, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timedOut
}

func (t *fakeTransport) FragmentationRequired(h transport.Handle, mtu uint16, primary []byte) {}

func (t *fakeTransport) ParseURL(url string) bool { return true }

func (t *fakeTransport) openCount(url string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens[url]
}

func newTestRegistry(scheme string, tr transport.Transport) *transport.Registry {
	r := transport.NewRegistry()
	r.Register(scheme, tr)
	return r
}
