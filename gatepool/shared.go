// Package gatepool implements the stream call gate pool of spec.md §4.9:
// a shared pool (many logical callers multiplex a bounded set of physical
// connections), an exclusive pool (one connection per checkout, LIFO
// reuse), a dedicated pool (always a fresh connection), and a registry
// tying all three together per pool key with a periodic idle-connection
// purge.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package gatepool

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/fiberpc/clock"
	"github.com/momentics/fiberpc/gate"
	"github.com/momentics/fiberpc/metrics"
	"github.com/momentics/fiberpc/protocol"
)

// Factory constructs one fresh connection's gate. Returned errors propagate
// to the caller of Acquire.
type Factory[F protocol.Frame] func() (*gate.StreamCallGate[F], error)

// forceReuseThreshold is kForceReuseThreshold from
// stream_call_gate_pool.cc: an entry idle for less than this is still
// "recently handed out" for the purposes of the random-pick-at-capacity
// rule, and an entry idle for at least this long is eligible for reuse
// regardless of how busy it looks.
const forceReuseThreshold = 25 * time.Millisecond

// minimumUsers mirrors kMinimumUsers: an entry with fewer concurrent
// holders than minimumUsers+1 is considered lightly loaded and fair game
// for reuse even if it was only just handed out.
const minimumUsers = 2

type sharedEntry[F protocol.Frame] struct {
	gate          *gate.StreamCallGate[F]
	lastUsedNanos atomic.Int64
	refcount      atomic.Int32
}

// SharedPool hands out one of up to maxConnsPerGroup physical connections
// for a given pool key, reusing existing connections under burst load and
// growing the pool when traffic is sustained. Reads of the connection list
// take an atomic snapshot (copy-on-write on the writer side) rather than
// locking the hot acquire path — the original's hazard-pointer-protected
// reads achieve the same "never block a reader behind a writer" property;
// an immutable snapshot behind an atomic pointer is the idiomatic Go
// rendering of that guarantee.
type SharedPool[F protocol.Frame] struct {
	maxConnsPerGroup int
	factory          Factory[F]
	poolKey          string

	writeMu  sync.Mutex // serializes snapshot replacement (the COW "writer")
	snapshot atomic.Pointer[[]*sharedEntry[F]]

	lastStoppedMu sync.Mutex
	lastStopped   []*sharedEntry[F]
}

// NewSharedPool constructs a pool bounded to maxConnsPerGroup live
// connections (clamped to at least 1).
func NewSharedPool[F protocol.Frame](maxConnsPerGroup int, factory Factory[F]) *SharedPool[F] {
	if maxConnsPerGroup < 1 {
		maxConnsPerGroup = 1
	}
	p := &SharedPool[F]{maxConnsPerGroup: maxConnsPerGroup, factory: factory}
	empty := []*sharedEntry[F]{}
	p.snapshot.Store(&empty)
	return p
}

// SetPoolKey labels this pool's size gauge for Prometheus export; the
// Registry calls this once right after construction since SharedPool
// itself has no notion of the key it was registered under.
func (p *SharedPool[F]) SetPoolKey(key string) { p.poolKey = key }

// Acquire returns a connection to use for one fast call or stream call, per
// spec.md §4.9's ConsiderReuseGate algorithm (stream_call_gate_pool.cc):
//
//  1. At capacity, with the most recently created connection still inside
//     forceReuseThreshold of now, pick a connection at random rather than
//     scanning — a burst that just grew the pool to its cap reuses
//     whatever it gets rather than piling onto one entry.
//  2. Otherwise scan for any connection that is lightly loaded (refcount
//     below minimumUsers+1) or has sat idle past forceReuseThreshold, and
//     reuse the first one found.
//  3. Otherwise grow the pool: create a new connection and append it.
//
// The caller should call Release once it is done with the returned
// connection so later Acquire calls see an accurate refcount; forgetting
// to only biases rule 2 toward treating the connection as busier than it
// is; Purge's idle eviction is unaffected.
func (p *SharedPool[F]) Acquire() (*gate.StreamCallGate[F], error) {
	healthy := p.healthySnapshot()
	now := clock.CoarseSteadyNanos()

	if len(healthy) > 0 {
		if len(healthy) >= p.maxConnsPerGroup {
			last := healthy[len(healthy)-1]
			if now-last.lastUsedNanos.Load() < forceReuseThreshold.Nanoseconds() {
				e := healthy[rand.Intn(len(healthy))]
				return p.checkout(e, now), nil
			}
		}

		for _, e := range healthy {
			if e.refcount.Load() < minimumUsers+1 || now-e.lastUsedNanos.Load() >= forceReuseThreshold.Nanoseconds() {
				return p.checkout(e, now), nil
			}
		}
	}

	return p.createOrReuse(now)
}

// Release signals that the caller is done with a connection Acquire
// returned, decrementing its refcount so a later Acquire's scan sees it as
// less busy. Calling Release for a connection this pool no longer holds
// (already purged or stopped) is a harmless no-op.
func (p *SharedPool[F]) Release(g *gate.StreamCallGate[F]) {
	for _, e := range *p.snapshot.Load() {
		if e.gate == g {
			e.refcount.Add(-1)
			return
		}
	}
}

func (p *SharedPool[F]) checkout(e *sharedEntry[F], now int64) *gate.StreamCallGate[F] {
	e.refcount.Add(1)
	if e.lastUsedNanos.Load() != now {
		e.lastUsedNanos.Store(now)
	}
	return e.gate
}

// healthySnapshot returns the current snapshot filtered to gates still
// reporting healthy; unhealthy entries are left in the snapshot for Purge
// (or the next writer pass) to evict under the write lock rather than
// mutated here.
func (p *SharedPool[F]) healthySnapshot() []*sharedEntry[F] {
	snap := *p.snapshot.Load()
	out := make([]*sharedEntry[F], 0, len(snap))
	for _, e := range snap {
		if e.gate.Healthy() {
			out = append(out, e)
		}
	}
	return out
}

// createOrReuse grows the pool by one connection, unless a concurrent
// Acquire already grew it to maxConnsPerGroup while this call was deciding
// to — stream_call_gate_pool.cc rechecks the cap under its mutation lock
// for exactly this race, falling back to a random existing connection
// rather than growing past the configured limit.
func (p *SharedPool[F]) createOrReuse(now int64) (*gate.StreamCallGate[F], error) {
	p.writeMu.Lock()
	old := *p.snapshot.Load()
	if len(old) >= p.maxConnsPerGroup {
		e := old[rand.Intn(len(old))]
		p.writeMu.Unlock()
		return p.checkout(e, now), nil
	}

	g, err := p.factory()
	if err != nil {
		p.writeMu.Unlock()
		return nil, err
	}
	e := &sharedEntry[F]{gate: g}
	e.lastUsedNanos.Store(now)
	e.refcount.Store(1)

	next := make([]*sharedEntry[F], len(old), len(old)+1)
	copy(next, old)
	next = append(next, e)
	p.snapshot.Store(&next)
	p.writeMu.Unlock()

	metrics.GatePoolSize.WithLabelValues(p.poolKey).Set(float64(len(next)))
	metrics.NewConnCreationInSharedPool.WithLabelValues(p.poolKey).Inc()
	return g, nil
}

// Purge evicts every entry whose last use is older than maxAge, per
// spec.md §4.9's two-phase eviction: the snapshot is replaced (detach)
// under the writer lock first, then Stop/Join runs on the evicted entries
// outside any lock.
func (p *SharedPool[F]) Purge(maxAge time.Duration) {
	now := clock.CoarseSteadyNanos()
	cutoff := now - maxAge.Nanoseconds()

	p.writeMu.Lock()
	old := *p.snapshot.Load()
	kept := make([]*sharedEntry[F], 0, len(old))
	var evicted []*sharedEntry[F]
	for _, e := range old {
		if e.gate.Healthy() && e.lastUsedNanos.Load() >= cutoff {
			kept = append(kept, e)
		} else {
			evicted = append(evicted, e)
		}
	}
	p.snapshot.Store(&kept)
	p.writeMu.Unlock()
	metrics.GatePoolSize.WithLabelValues(p.poolKey).Set(float64(len(kept)))

	for _, e := range evicted {
		e.gate.Stop()
		e.gate.Join()
	}
}

// Len reports the number of currently cached (not necessarily healthy)
// connections; exposed for tests and diagnostics.
func (p *SharedPool[F]) Len() int { return len(*p.snapshot.Load()) }

// Stop tears down every connection currently cached by this pool. Join
// must be called afterward to wait for teardown to finish.
func (p *SharedPool[F]) Stop() {
	p.writeMu.Lock()
	old := *p.snapshot.Load()
	empty := []*sharedEntry[F]{}
	p.snapshot.Store(&empty)
	p.writeMu.Unlock()
	metrics.GatePoolSize.WithLabelValues(p.poolKey).Set(0)

	for _, e := range old {
		e.gate.Stop()
	}
	p.lastStoppedMu.Lock()
	p.lastStopped = old
	p.lastStoppedMu.Unlock()
}

// Join waits for every connection Stop tore down to finish closing.
func (p *SharedPool[F]) Join() {
	p.lastStoppedMu.Lock()
	stopped := p.lastStopped
	p.lastStopped = nil
	p.lastStoppedMu.Unlock()
	for _, e := range stopped {
		e.gate.Join()
	}
}
