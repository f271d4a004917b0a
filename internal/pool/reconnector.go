package pool

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reconnector tuning constants.
const (
	reconnectPollInterval = 1 * time.Second
	reconnectJitterMaxMs  = 1000
)

// runReconnectorManager polls the active set for transport-declared expiry
// and spawns a replacement worker per timed-out tunnel (manager
// thread).
func (p *Pool) runReconnectorManager(ctx context.Context) {
	for {
		jitter := p.drawJitter(reconnectJitterMaxMs)
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectPollInterval + time.Duration(jitter)*time.Millisecond):
		}

		p.reconnectorPass(ctx)
	}
}

func (p *Pool) reconnectorPass(ctx context.Context) {
	now := time.Now()

	p.mu.Lock()
	var toSpawn []string
	for _, r := range p.active.all() {
		if r.reconnect {
			continue
		}
		if r.transport == nil || r.handle == nil {
			continue
		}
		if r.transport.Timeout(r.handle, now) {
			r.reconnect = true
			toSpawn = append(toSpawn, r.URL)
		}
	}
	p.mu.Unlock()

	for _, url := range toSpawn {
		p.spawnReconnectorWorker(ctx, url)
	}
}

func (p *Pool) spawnReconnectorWorker(ctx context.Context, url string) {
	// url is an owned, immutable Go string; the worker keeps its own copy
	// by capturing this parameter
	// (the original's lifetime hazard around a stack-allocated C buffer
	// has no Go analogue, but we still pass by value here rather than by
	// pointer so the worker's reference can never alias a caller's reuse
	// of the variable).
	url = string([]byte(url))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reconnectorWorker(ctx, url)
	}()
}

// reconnectorWorker opens a fresh tunnel for url and swaps it in for the
// old record, or tears down on failure.
func (p *Pool) reconnectorWorker(ctx context.Context, url string) {
	attemptID := uuid.New().String()

	fresh := newRecord(url, TunnelInitAge)
	fresh.st = stateOpening

	ok, done := p.boundedOpenLoop(ctx, fresh, "reconnector", attemptID)
	if !done {
		return
	}

	if ok {
		p.reconnectFinishSuccess(fresh, attemptID)
	} else {
		p.reconnectFinishFailure(url, attemptID)
	}
}

func (p *Pool) reconnectFinishSuccess(fresh *Record, attemptID string) {
	p.mu.Lock()
	fresh.st = stateOpen
	fresh.age = TunnelInitAge

	oldActive := p.active.replace(fresh)
	if oldActive != nil {
		oldCache := p.cache.replace(fresh)
		_ = oldCache // same pointer as oldActive in steady state; nothing extra to free.
		h, t := oldActive.handle, oldActive.transport
		p.mu.Unlock()

		p.log.Info("reconnector: swapped in fresh tunnel", "url", fresh.URL, "old_id", oldActive.id, "new_id", fresh.id, "attempt_id", attemptID)
		if h != nil && t != nil {
			t.Close(h)
		}
		p.writeCache()
		return
	}

	oldCache := p.cache.replace(fresh)
	if oldCache != nil {
		freshHandle, freshTransport := fresh.handle, fresh.transport
		fresh.handle = nil
		fresh.st = stateDead
		fresh.reconnect = false
		p.mu.Unlock()

		p.log.Info("reconnector: tunnel no longer active, discarding fresh open", "url", fresh.URL, "attempt_id", attemptID)
		if freshHandle != nil && freshTransport != nil {
			freshTransport.Close(freshHandle)
		}
		p.writeCache()
		return
	}

	// URL disappeared from both sets while the open was in flight: discard
	// the fresh record entirely.
	h, t := fresh.handle, fresh.transport
	p.mu.Unlock()
	if h != nil && t != nil {
		t.Close(h)
	}
}

func (p *Pool) reconnectFinishFailure(url string, attemptID string) {
	p.mu.Lock()
	old := p.active.delete(url)
	if old == nil {
		p.mu.Unlock()
		p.log.Warn("reconnector: open failed and tunnel no longer active", "url", url, "attempt_id", attemptID)
		return
	}

	h, t := old.handle, old.transport
	old.handle = nil
	old.st = stateDead
	old.reconnect = false
	p.mu.Unlock()

	p.log.Warn("reconnector: replacement open failed, marking dead", "url", url, "attempt_id", attemptID)
	if h != nil && t != nil {
		t.Close(h)
	}
	p.writeCache()
}
