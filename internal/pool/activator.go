package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Activator tuning constants.
const (
	maxRetries            = 3
	activatorBaseBackoff  = 10 * time.Second
	activatorBackoffMul   = 6
	activatorJitterMaxMs  = 1000
	activatorPassInterval = 150 * time.Second
	activatorJitterMaxUs  = 10_000
)

// runActivatorManager walks the cache at startup, opening closed tunnels up
// to the concurrency budget, until the active set reaches the configured
// cap or ctx is cancelled.
func (p *Pool) runActivatorManager(ctx context.Context) {
	for {
		exhausted := p.activatorPass(ctx)

		jitter := p.drawJitter(activatorJitterMaxUs)

		if exhausted {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(activatorPassInterval + time.Duration(jitter)*time.Microsecond):
		}

		if p.activeLen() >= p.maxActiveTunnels {
			return
		}
	}
}

// activatorPass claims up to budget Closed cache records and spawns a
// worker per claim, returning whether the budget was fully spent this
// pass. len(active) is sampled under the mutex for both the budget
// computation and the post-loop check.
func (p *Pool) activatorPass(ctx context.Context) bool {
	p.mu.Lock()
	budget := p.maxActiveTunnels - p.active.len() + 1
	claimed := 0
	var toSpawn []*Record
	for _, r := range p.cache.all() {
		if claimed >= budget {
			break
		}
		if p.tryActivate(r) {
			toSpawn = append(toSpawn, r)
			claimed++
		}
	}
	activeCount := p.active.len()
	p.mu.Unlock()

	for _, r := range toSpawn {
		p.spawnActivatorWorker(ctx, r)
	}

	p.logPass(claimed, budget, activeCount)

	return claimed >= budget
}

// tryActivate claims r for activation if it is Closed, flipping it to
// Opening and returning true. It is a no-op returning false for any other
// state. Callers holding the pool mutex may call this directly per record,
// separately from the pass loop that batches claims against the budget.
func (p *Pool) tryActivate(r *Record) bool {
	if r.st != stateClosed {
		return false
	}
	r.st = stateOpening
	return true
}

// logPass emits the per-pass summary line: how many records were claimed
// against the budget, and how many tunnels are active out of the target.
func (p *Pool) logPass(claimed, budget, active int) {
	p.log.Info("activator pass complete", "claimed", claimed, "budget", budget, "active", active, "target", p.maxActiveTunnels)
}

// drawJitter returns a pseudorandom value in [0, max), drawing from the
// pool's shared RNG under the mutex (the RNG is shared mutable
// state protected by the pool mutex).
func (p *Pool) drawJitter(max int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(max)
}

func (p *Pool) spawnActivatorWorker(ctx context.Context, r *Record) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.activatorWorker(ctx, r)
	}()
}

// activatorWorker attempts to open one tunnel with bounded exponential
// backoff, then dispatches on whatever state the record is in once the
// attempt concludes.
func (p *Pool) activatorWorker(ctx context.Context, r *Record) {
	attemptID := uuid.New().String()
	ok, done := p.boundedOpenLoop(ctx, r, "activator", attemptID)
	if !done {
		return
	}

	p.activatorFinish(r, ok, attemptID)
}

// boundedOpenLoop is the bounded exponential-backoff open procedure shared
// by the Activator worker and the Reconnector worker. It checks r's state
// at each checkpoint and stops early, without dispatching, if the state
// moved out of Opening; the second return value is false in that case so
// the caller can exit without double-handling the record.
func (p *Pool) boundedOpenLoop(ctx context.Context, r *Record, tag, attemptID string) (ok bool, reachedDispatch bool) {
	retries := p.maxRetries
	retryTime := activatorBaseBackoff + time.Duration(p.drawJitter(activatorJitterMaxMs))*time.Millisecond

	for {
		p.mu.Lock()
		opening := r.st == stateOpening
		p.mu.Unlock()
		if !opening {
			return false, true
		}

		t, found := p.registry.For(r.URL)
		if !found {
			return false, true
		}

		h, err := t.Open(ctx, r.URL)
		if err == nil {
			p.mu.Lock()
			r.transport = t
			r.handle = h
			p.mu.Unlock()
			return true, true
		}

		retries--
		if retries <= 0 {
			return false, true
		}

		p.log.Warn(tag+": open failed, retrying", "url", r.URL, "attempt_id", attemptID, "retry_in", retryTime, "err", err)
		select {
		case <-ctx.Done():
			return false, false
		case <-time.After(retryTime):
		}
		retryTime *= activatorBackoffMul
	}
}

func (p *Pool) activatorFinish(r *Record, ok bool, attemptID string) {
	p.mu.Lock()
	switch r.st {
	case stateDeleting:
		h, t := r.handle, r.transport
		p.mu.Unlock()
		if h != nil && t != nil {
			t.Close(h)
		}
		return

	case stateClosing:
		h, t := r.handle, r.transport
		r.handle = nil
		r.st = stateClosed
		p.mu.Unlock()
		if h != nil && t != nil {
			t.Close(h)
		}

	case stateOpening:
		if ok {
			p.log.Info("activator: tunnel opened", "url", r.URL, "attempt_id", attemptID)
			r.st = stateOpen
			r.age = TunnelInitAge
			if p.active.lookup(r.URL) < 0 {
				p.active.insert(r)
			}
			p.mu.Unlock()
		} else {
			p.log.Warn("activator: tunnel open exhausted retries", "url", r.URL, "attempt_id", attemptID)
			r.st = stateDead
			r.decrementAge()
			p.mu.Unlock()
		}

	default:
		p.mu.Unlock()
		panic(fmt.Sprintf("pool: activator worker observed record %s in unreachable state %s", r.URL, r.st))
	}

	p.writeCache()
}
