package pool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/koltyakov/tunnelpool/internal/persist"
	"github.com/koltyakov/tunnelpool/internal/transport"
)

// MaxActiveTunnels is the concurrency budget enforced by the Activator.
const MaxActiveTunnels = 8

// Pool is the tunnel pool's Control API. A single mutex protects both
// TunnelSets, the RNG, and every record's mutable fields; it is never held
// across a blocking transport call, file I/O, or sleep.
type Pool struct {
	mu sync.Mutex

	log      *slog.Logger
	registry *transport.Registry

	cachePath        string
	maxActiveTunnels int
	maxRetries       int

	cache   *tunnelSet
	active  *tunnelSet
	history history
	rng     *rand.Rand

	// workerCtx is the daemon-lifetime context handed to every detached
	// background worker. It is set once by Open and must never be a
	// caller-supplied, request-scoped context: an HTTP handler's context
	// is canceled the instant it returns, which would abort an Activator
	// worker's dial mid-flight and strand its record in Opening forever.
	workerCtx      context.Context
	cancelManagers context.CancelFunc
	wg             sync.WaitGroup

	// writeMu serializes cache file writes, which run without mu held.
	writeMu sync.Mutex
}

// Config carries the tunable parameters the Control API needs at
// construction (New); it mirrors internal/config.PoolConfig's relevant fields so callers
// don't need to depend on internal/config from this package.
type Config struct {
	CachePath        string
	MaxActiveTunnels int
	MaxRetries       int
}

// New constructs a Pool. FileRead must happen before Open if the cache is
// to be restored.
func New(log *slog.Logger, registry *transport.Registry, cfg Config) *Pool {
	if cfg.MaxActiveTunnels <= 0 {
		cfg.MaxActiveTunnels = MaxActiveTunnels
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = maxRetries
	}
	return &Pool{
		log:              log,
		registry:         registry,
		cachePath:        cfg.CachePath,
		maxActiveTunnels: cfg.MaxActiveTunnels,
		maxRetries:       cfg.MaxRetries,
		cache:            newTunnelSet(),
		active:           newTunnelSet(),
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
		workerCtx:        context.Background(),
	}
}

// FileRead loads the persisted cache, inserting each parsed record into
// the cache set in stateClosed.
func (p *Pool) FileRead() {
	entries := persist.Read(p.log, p.cachePath)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		if p.cache.lookup(e.URL) >= 0 {
			continue
		}
		p.cache.insert(newRecord(e.URL, e.Age))
	}
}

// Open spawns the Activator and Reconnector background managers. The
// context it derives from ctx also becomes the daemon-lifetime context
// used for every worker Add spawns afterward, so a caller's request-scoped
// context can never reach a detached goroutine.
func (p *Pool) Open(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.workerCtx = ctx
	p.cancelManagers = cancel
	p.mu.Unlock()

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.runActivatorManager(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.runReconnectorManager(ctx)
	}()
}

// Close stops both background managers and closes every open record's
// transport, so the CLI's "run" subcommand can exit cleanly.
func (p *Pool) Close() {
	if p.cancelManagers != nil {
		p.cancelManagers()
	}
	p.wg.Wait()

	type openHandle struct {
		t transport.Transport
		h transport.Handle
	}
	p.mu.Lock()
	var toClose []openHandle
	for _, r := range p.active.all() {
		if r.handle != nil && r.transport != nil {
			toClose = append(toClose, openHandle{r.transport, r.handle})
		}
	}
	p.mu.Unlock()

	for _, c := range toClose {
		c.t.Close(c.h)
	}
}

// Ready reports whether the active set is non-empty.
func (p *Pool) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active.len() > 0
}

func (p *Pool) activeLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active.len()
}

// writeCache snapshots the cache set and persists it. It acquires the
// mutex itself; callers must not already hold it. Writes are serialized by
// writeMu so concurrent workers never interleave the file rotation.
func (p *Pool) writeCache() {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	entries := make([]persist.Entry, 0, p.cache.len())
	for _, r := range p.cache.all() {
		entries = append(entries, persist.Entry{URL: r.URL, Age: r.age})
	}
	path := p.cachePath
	p.mu.Unlock()

	persist.Write(p.log, path, entries)
}

// Add registers url for activation, inserting it into the cache if unseen
// and spawning an Activator worker to open it. URLs containing whitespace
// are rejected outright: they are not representable in the persisted
// line-oriented cache format.
//
// The ctx parameter bounds only the validation performed here; the spawned
// worker is detached and runs against the pool's own daemon-lifetime
// context (set by Open), never against ctx. A caller-supplied context, an
// HTTP handler's request context for instance, is canceled as soon as the
// caller returns, which would otherwise abort the worker's dial mid-flight
// and strand the record in Opening forever.
func (p *Pool) Add(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "add", URL: url, Err: err}
	}
	if strings.ContainsAny(url, " \t\r\n") || len(url) > MaxURLLength || !p.registry.ParseURL(url) {
		return &Error{Op: "add", URL: url, Err: ErrInvalidURL}
	}

	p.mu.Lock()
	r := p.cache.get(url)
	if r == nil {
		r = newRecord(url, TunnelInitAge)
		p.cache.insert(r)
	} else if r.st == stateOpen || r.st == stateOpening {
		p.mu.Unlock()
		p.log.Warn("add: tunnel already open or opening", "url", url)
		return &Error{Op: "add", URL: url, Err: ErrTunnelBusy}
	}
	r.st = stateOpening
	workerCtx := p.workerCtx
	p.mu.Unlock()

	p.spawnActivatorWorker(workerCtx, r)
	p.writeCache()
	return nil
}

// Delete removes url from the active set if it is there, closing its
// transport if it was open and signalling any in-flight open attempt to
// abandon it; the record then stays in the cache. Only a url that is not
// in the active set is removed from the cache.
func (p *Pool) Delete(url string) {
	p.mu.Lock()

	if r := p.active.delete(url); r != nil {
		switch r.st {
		case stateOpening:
			r.st = stateClosing
		case stateClosing:
			// unchanged
		case stateOpen:
			if r.handle != nil && r.transport != nil {
				t, h := r.transport, r.handle
				r.handle = nil
				r.st = stateClosed
				p.mu.Unlock()
				t.Close(h)
				p.writeCache()
				return
			}
			r.st = stateClosed
		default:
			p.mu.Unlock()
			panic(fmt.Sprintf("pool: delete observed record %s in unreachable state %s", url, r.st))
		}
		p.mu.Unlock()
		p.writeCache()
		return
	}

	if r := p.cache.delete(url); r != nil {
		if r.st == stateOpening {
			// The record is already evicted from both sets here; flipping
			// it to Closing is purely a signal to the worker that owns
			// this open attempt to close whatever it opens and stop,
			// rather than insert into active.
			r.st = stateClosing
		}
		p.mu.Unlock()
		p.writeCache()
		return
	}

	p.mu.Unlock()
}

// ForwardPackets selects an active tunnel and sends packets through it,
// or requests fragmentation (passing primary) if any entry of packets
// exceeds the tunnel's MTU. It releases the mutex on every exit path,
// including the fragmentation and zero-MTU cases; the MTU query runs under
// the mutex, while Send and FragmentationRequired run after releasing it.
func (p *Pool) ForwardPackets(primary []byte, packets [][]byte, flowHash uint64, repeat uint32, configMTU uint16) bool {
	p.mu.Lock()

	r := p.selectTunnel(flowHash, repeat)
	if r == nil {
		p.mu.Unlock()
		p.log.Warn("forward_packets: no active tunnel available")
		return false
	}

	t, h := r.transport, r.handle
	mtu := t.MTU(h, configMTU)
	if mtu == 0 {
		p.mu.Unlock()
		p.log.Warn("forward_packets: tunnel reported zero mtu", "url", r.URL)
		return false
	}

	fit := true
	for _, pkt := range packets {
		if totalLength(pkt) > mtu {
			fit = false
			break
		}
	}
	if !fit {
		p.mu.Unlock()
		t.FragmentationRequired(h, mtu, primary)
		return true
	}

	p.mu.Unlock()
	for _, pkt := range packets {
		t.Send(h, pkt)
	}
	return true
}

// RenderList emits an <option> line per record in the requested set.
func (p *Pool) RenderList(w io.Writer, active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.cache
	if active {
		set = p.active
	}
	for _, r := range set.all() {
		fmt.Fprintf(w, "<option value=\"%s\">%s</option>\n", r.URL, r.URL)
	}
}

// Snapshot is a read-only view of a record, used by renderers outside this
// package (e.g. internal/httpadmin) that need more than the bare
// <option> list.
type Snapshot struct {
	URL    string
	State  string
	Age    uint8
	Weight float64
	ID     uint16
}

// Snapshots returns a copy of every record in the requested set.
func (p *Pool) Snapshots(active bool) []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.cache
	if active {
		set = p.active
	}
	out := make([]Snapshot, 0, set.len())
	for _, r := range set.all() {
		out = append(out, Snapshot{URL: r.URL, State: r.st.String(), Age: r.age, Weight: r.weight, ID: r.id})
	}
	return out
}
