package httpadmin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/koltyakov/tunnelpool/internal/pool"
	"github.com/koltyakov/tunnelpool/internal/transport"
)

type stubHandle struct{ id string }

func (h *stubHandle) ID() string { return h.id }

// stubTransport is just enough of transport.Transport for Pool.Add's
// validation path; no test here opens a real tunnel.
type stubTransport struct{}

func (stubTransport) Open(ctx context.Context, rawURL string) (transport.Handle, error) {
	return &stubHandle{id: rawURL}, nil
}
func (stubTransport) Close(transport.Handle)                                {}
func (stubTransport) Send(transport.Handle, []byte)                         {}
func (stubTransport) MTU(transport.Handle, uint16) uint16                   { return 1400 }
func (stubTransport) Timeout(transport.Handle, time.Time) bool              { return false }
func (stubTransport) FragmentationRequired(transport.Handle, uint16, []byte) {}
func (stubTransport) ParseURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && u.Scheme == "stub" && u.Host != ""
}

func newTestPool(t *testing.T) *pool.Pool {
	t.Helper()
	registry := transport.NewRegistry()
	registry.Register("stub", stubTransport{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return pool.New(logger, registry, pool.Config{
		CachePath:        t.TempDir() + "/TUNNELS",
		MaxActiveTunnels: 4,
		MaxRetries:       1,
	})
}

func TestStatusHandlerServesEmptyTable(t *testing.T) {
	p := newTestPool(t)
	req := httptest.NewRequest(http.MethodGet, "/tunnels-status.html", nil)
	rr := httptest.NewRecorder()

	StatusHandler(p).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "<table>") {
		t.Fatalf("body %q missing table", rr.Body.String())
	}
}

func TestSnapshotsHandlerServesJSONForRequestedSet(t *testing.T) {
	p := newTestPool(t)
	req := httptest.NewRequest(http.MethodGet, "/tunnels.json?set=all", nil)
	rr := httptest.NewRecorder()

	SnapshotsHandler(p).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var snapshots []pool.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snapshots); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(snapshots) != 0 {
		t.Fatalf("got %d snapshots, want 0 for an empty pool", len(snapshots))
	}
}

func TestAddHandlerRejectsGet(t *testing.T) {
	p := newTestPool(t)
	req := httptest.NewRequest(http.MethodGet, "/add", nil)
	rr := httptest.NewRecorder()

	AddHandler(p).ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

func TestAddHandlerRejectsMissingURL(t *testing.T) {
	p := newTestPool(t)
	req := httptest.NewRequest(http.MethodPost, "/add", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	AddHandler(p).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAddHandlerAcceptsValidURL(t *testing.T) {
	p := newTestPool(t)
	form := strings.NewReader("url=" + url.QueryEscape("stub://a"))
	req := httptest.NewRequest(http.MethodPost, "/add", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	AddHandler(p).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %q", rr.Code, rr.Body.String())
	}
}

func TestDeleteHandlerAcceptsUnknownURL(t *testing.T) {
	p := newTestPool(t)
	form := strings.NewReader("url=" + url.QueryEscape("stub://a"))
	req := httptest.NewRequest(http.MethodPost, "/delete", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	DeleteHandler(p).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
}
