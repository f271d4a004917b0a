// Package pool implements the tunnel pool: a concurrent manager of outbound
// tunnel transports. It owns the tunnel state machine, the weighted
// selector, and the background activator/reconnector managers.
package pool

import (
	"sync/atomic"

	"github.com/koltyakov/tunnelpool/internal/transport"
)

// state is a tunnel's position in the lifecycle state machine.
type state uint8

const (
	stateClosed state = iota
	stateOpening
	stateOpen
	stateDead
	stateClosing
	stateDeleting
)

func (s state) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpening:
		return "opening"
	case stateOpen:
		return "open"
	case stateDead:
		return "dead"
	case stateClosing:
		return "closing"
	case stateDeleting:
		return "deleting"
	default:
		return "unknown"
	}
}

const (
	// TunnelInitAge is the age a record is (re)initialised to on successful
	// open or on add.
	TunnelInitAge uint8 = 16

	// MaxURLLength bounds the URL identity key, mirroring CKTP_MAX_URL_LENGTH.
	MaxURLLength = 2048

	minWeight = 0.005
	maxWeight = 1.0
)

var nextTunnelID uint32

// newTunnelID returns a 16-bit id, monotonic for the process lifetime and
// never reused. It wraps past 65535 only after 2^16 tunnels have been
// created, which does not happen at the target fleet size (~8); the wrap is
// tolerated rather than guarded against.
func newTunnelID() uint16 {
	return uint16(atomic.AddUint32(&nextTunnelID, 1))
}

// Record is a single tunnel's identity, state, and transport handle.
//
// All field access outside of this package happens through Pool methods
// that hold the pool mutex; Record itself enforces no locking.
type Record struct {
	URL   string
	id    uint16
	st    state
	age   uint8
	weight float64

	// reconnect guards against a second Reconnector worker being spawned
	// for the same active record while one is already in flight.
	reconnect bool

	handle    transport.Handle
	transport transport.Transport
}

// newRecord creates a record in stateClosed with the given initial age.
func newRecord(url string, age uint8) *Record {
	return &Record{
		URL:    url,
		id:     newTunnelID(),
		st:     stateClosed,
		age:    age,
		weight: maxWeight,
	}
}

// ID returns the record's stable numeric identity.
func (r *Record) ID() uint16 { return r.id }

// Age returns the record's current reputation counter.
func (r *Record) Age() uint8 { return r.age }

// Weight returns the record's current selector weight.
func (r *Record) Weight() float64 { return r.weight }

// State returns a human-readable state name, for logging and rendering.
func (r *Record) State() string { return r.st.String() }

func (r *Record) decrementAge() {
	if r.age > 0 {
		r.age--
	}
}

func clampWeight(w float64) float64 {
	if w < minWeight {
		return minWeight
	}
	if w > maxWeight {
		return maxWeight
	}
	return w
}
