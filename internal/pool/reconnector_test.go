package pool

import (
	"context"
	"testing"
	"time"
)

func TestReconnectorPassFlagsTimedOutActiveTunnels(t *testing.T) {
	tr := newFakeTransport()
	tr.timedOut = true
	p := newTestPool(t, tr)

	r := newRecord("fake://stale", TunnelInitAge)
	r.st = stateOpen
	r.handle = &fakeHandle{id: "fake://stale"}
	r.transport = tr
	p.active.insert(r)
	p.cache.insert(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.reconnectorPass(ctx)

	p.mu.Lock()
	flagged := r.reconnect
	p.mu.Unlock()
	if !flagged {
		t.Fatal("expected reconnect flag to be set for a timed-out active tunnel")
	}
}

func TestReconnectorPassSkipsTunnelsAlreadyReconnecting(t *testing.T) {
	tr := newFakeTransport()
	tr.timedOut = true
	p := newTestPool(t, tr)

	r := newRecord("fake://inflight", TunnelInitAge)
	r.st = stateOpen
	r.handle = &fakeHandle{id: "fake://inflight"}
	r.transport = tr
	r.reconnect = true
	p.active.insert(r)

	before := tr.openCount("fake://inflight")
	p.reconnectorPass(context.Background())
	if after := tr.openCount("fake://inflight"); after != before {
		t.Fatalf("open count changed from %d to %d; reconnecting tunnel should not be re-spawned", before, after)
	}
}

func TestReconnectFinishSuccessSwapsInFreshRecordAndClosesOld(t *testing.T) {
	tr := newFakeTransport()
	p := newTestPool(t, tr)

	old := newRecord("fake://swap", TunnelInitAge)
	old.st = stateOpen
	old.handle = &fakeHandle{id: "old-handle"}
	old.transport = tr
	p.active.insert(old)
	p.cache.insert(old)

	fresh := newRecord("fake://swap", TunnelInitAge)
	fresh.st = stateOpen
	fresh.handle = &fakeHandle{id: "new-handle"}
	fresh.transport = tr

	p.reconnectFinishSuccess(fresh, "attempt-1")

	p.mu.Lock()
	got := p.active.get("fake://swap")
	p.mu.Unlock()
	if got != fresh {
		t.Fatalf("active record after swap = %v, want the fresh record", got)
	}
	waitUntil(t, time.Second, func() bool { return len(tr.closed) == 1 && tr.closed[0] == "old-handle" })
}

func TestReconnectFinishFailureMarksDeadAndRemovesFromActive(t *testing.T) {
	tr := newFakeTransport()
	p := newTestPool(t, tr)

	r := newRecord("fake://fail", TunnelInitAge)
	r.st = stateOpen
	r.handle = &fakeHandle{id: "fake://fail"}
	r.transport = tr
	r.reconnect = true
	p.active.insert(r)
	p.cache.insert(r)

	p.reconnectFinishFailure("fake://fail", "attempt-2")

	p.mu.Lock()
	stillActive := p.active.get("fake://fail")
	p.mu.Unlock()
	if stillActive != nil {
		t.Fatal("expected record to be removed from the active set after a failed reconnect")
	}
	if r.st != stateDead {
		t.Fatalf("record state = %v, want dead", r.st)
	}
}
