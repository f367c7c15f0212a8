// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package gatepool

import (
	"time"

	"github.com/momentics/fiberpc/fsync"
	"github.com/momentics/fiberpc/protocol"
)

// DefaultPurgeInterval and DefaultPurgeMaxAge mirror spec.md §6's flags
// table ("idle purge interval=15s, idle max age=45s").
const (
	DefaultPurgeInterval = 15 * time.Second
	DefaultPurgeMaxAge   = 45 * time.Second
)

// Registry owns every shared/exclusive/dedicated sub-pool for one
// scheduling group, keyed by pool-key string, per spec.md §4.9. Lookups
// are reader-biased via fsync.SharedMutex since Acquire (a read of an
// existing sub-pool) vastly outnumbers first-time sub-pool creation (a
// write).
type Registry[F protocol.Frame] struct {
	maxConnsPerGroup int
	newFactory       func(poolKey string) Factory[F]

	mu             *fsync.SharedMutex
	shared         map[string]*SharedPool[F]
	exclusive      map[string]*ExclusivePool[F]
	dedicatedByKey map[string]*DedicatedPool[F]

	purgeInterval time.Duration
	purgeMaxAge   time.Duration
	quit          chan struct{}
	done          chan struct{}

	stoppedShared    []*SharedPool[F]
	stoppedExclusive []*ExclusivePool[F]
}

// NewRegistry constructs an empty registry. newFactory builds the
// connection factory for a given pool key on first use (e.g. dialing the
// address that key identifies).
func NewRegistry[F protocol.Frame](maxConnsPerGroup int, newFactory func(poolKey string) Factory[F]) *Registry[F] {
	return &Registry[F]{
		maxConnsPerGroup: maxConnsPerGroup,
		newFactory:       newFactory,
		mu:               fsync.NewSharedMutex(),
		shared:           make(map[string]*SharedPool[F]),
		exclusive:        make(map[string]*ExclusivePool[F]),
		dedicatedByKey:   make(map[string]*DedicatedPool[F]),
		purgeInterval:    DefaultPurgeInterval,
		purgeMaxAge:      DefaultPurgeMaxAge,
	}
}

// Shared returns the shared sub-pool for poolKey, creating it on first use.
func (r *Registry[F]) Shared(poolKey string) *SharedPool[F] {
	r.mu.LockShared()
	p, ok := r.shared[poolKey]
	r.mu.UnlockShared()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.shared[poolKey]; ok {
		return p
	}
	p = NewSharedPool(r.maxConnsPerGroup, r.newFactory(poolKey))
	p.SetPoolKey(poolKey)
	r.shared[poolKey] = p
	return p
}

// Exclusive returns the exclusive sub-pool for poolKey, creating it on
// first use.
func (r *Registry[F]) Exclusive(poolKey string) *ExclusivePool[F] {
	r.mu.LockShared()
	p, ok := r.exclusive[poolKey]
	r.mu.UnlockShared()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.exclusive[poolKey]; ok {
		return p
	}
	p = NewExclusivePool(r.newFactory(poolKey))
	r.exclusive[poolKey] = p
	return p
}

// Dedicated returns the dedicated sub-pool for poolKey, creating it on
// first use. The returned pool never caches connections; keying it by
// poolKey only lets Stop/JoinAll find connections a caller forgot to
// Release.
func (r *Registry[F]) Dedicated(poolKey string) *DedicatedPool[F] {
	r.mu.LockShared()
	p, ok := r.dedicatedByKey[poolKey]
	r.mu.UnlockShared()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.dedicatedByKey[poolKey]; ok {
		return p
	}
	p = NewDedicatedPool(r.newFactory(poolKey))
	r.dedicatedByKey[poolKey] = p
	return p
}

// StartPurge launches the background timer that runs Purge on every
// shared sub-pool at r.purgeInterval, evicting connections idle longer
// than r.purgeMaxAge. Only the shared pools track last-used timestamps;
// exclusive and dedicated connections are reclaimed by Release instead.
func (r *Registry[F]) StartPurge() {
	r.quit = make(chan struct{})
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.purgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.quit:
				return
			case <-ticker.C:
				r.purgeOnce()
			}
		}
	}()
}

func (r *Registry[F]) purgeOnce() {
	r.mu.LockShared()
	pools := make([]*SharedPool[F], 0, len(r.shared))
	for _, p := range r.shared {
		pools = append(pools, p)
	}
	r.mu.UnlockShared()
	for _, p := range pools {
		p.Purge(r.purgeMaxAge)
	}
}

// StopPurge halts the background purge timer started by StartPurge.
func (r *Registry[F]) StopPurge() {
	if r.quit == nil {
		return
	}
	select {
	case <-r.quit:
	default:
		close(r.quit)
	}
	<-r.done
}

// StopAll tears down, across every pool key in the registry, every
// connection a shared pool holds, every idle connection in an exclusive
// pool's free list, and every unreleased dedicated connection. Exclusive
// connections currently checked out by a caller are not stopped.
func (r *Registry[F]) StopAll() {
	r.mu.Lock()
	shared := make([]*SharedPool[F], 0, len(r.shared))
	for _, p := range r.shared {
		shared = append(shared, p)
	}
	exclusive := make([]*ExclusivePool[F], 0, len(r.exclusive))
	for _, p := range r.exclusive {
		exclusive = append(exclusive, p)
	}
	dedicated := make([]*DedicatedPool[F], 0, len(r.dedicatedByKey))
	for _, p := range r.dedicatedByKey {
		dedicated = append(dedicated, p)
	}
	r.mu.Unlock()

	for _, p := range shared {
		p.Stop()
	}
	for _, p := range exclusive {
		p.Stop()
	}
	for _, p := range dedicated {
		p.Stop()
	}

	r.stoppedShared, r.stoppedExclusive = shared, exclusive
}

// JoinAll waits for every teardown StopAll initiated to complete.
func (r *Registry[F]) JoinAll() {
	for _, p := range r.stoppedShared {
		p.Join()
	}
	for _, p := range r.stoppedExclusive {
		p.Join()
	}
	r.stoppedShared, r.stoppedExclusive = nil, nil
}
