// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package gatepool

import (
	"sync"

	"github.com/momentics/fiberpc/gate"
	"github.com/momentics/fiberpc/protocol"
)

// DedicatedPool never caches a connection: every Acquire calls the
// factory, and every Release tears the connection down, per spec.md
// §4.9's dedicated pool — the right choice for a call whose connection
// characteristics (e.g. a one-off large transfer) make reuse undesirable.
// It still tracks every gate it has ever handed out so Stop/Join can tear
// down any the caller never explicitly released.
type DedicatedPool[F protocol.Frame] struct {
	factory Factory[F]

	mu   sync.Mutex
	live map[*gate.StreamCallGate[F]]struct{}
}

// NewDedicatedPool constructs a dedicated pool backed by factory.
func NewDedicatedPool[F protocol.Frame](factory Factory[F]) *DedicatedPool[F] {
	return &DedicatedPool[F]{factory: factory, live: make(map[*gate.StreamCallGate[F]]struct{})}
}

// Acquire always constructs a brand-new connection.
func (p *DedicatedPool[F]) Acquire() (*gate.StreamCallGate[F], error) {
	g, err := p.factory()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.live[g] = struct{}{}
	p.mu.Unlock()
	return g, nil
}

// Release tears g down immediately; it is never cached.
func (p *DedicatedPool[F]) Release(g *gate.StreamCallGate[F]) {
	p.mu.Lock()
	delete(p.live, g)
	p.mu.Unlock()
	g.Stop()
	g.Join()
}

// Stop tears down every connection this pool has handed out that the
// caller never released.
func (p *DedicatedPool[F]) Stop() {
	p.mu.Lock()
	live := p.live
	p.live = make(map[*gate.StreamCallGate[F]]struct{})
	p.mu.Unlock()
	for g := range live {
		g.Stop()
		g.Join()
	}
}

// Join is a no-op: Stop already waits for every connection it tore down.
// Exposed for interface symmetry with SharedPool/ExclusivePool.
func (p *DedicatedPool[F]) Join() {}
