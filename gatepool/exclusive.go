// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package gatepool

import (
	"sync"

	"github.com/momentics/fiberpc/gate"
	"github.com/momentics/fiberpc/protocol"
)

// ExclusivePool hands each caller a connection nobody else may use
// concurrently, per spec.md §4.9's exclusive pool: Acquire pops the most
// recently released connection off a LIFO free list (favoring a warm,
// recently-used connection over cycling through every cached one evenly),
// creating a fresh one if the list is empty or the popped entry is no
// longer healthy. Release returns a still-healthy connection to the free
// list; an unhealthy one is stopped and joined immediately instead of
// being cached.
type ExclusivePool[F protocol.Frame] struct {
	factory Factory[F]

	mu      sync.Mutex
	free    []*gate.StreamCallGate[F]
	stopped []*gate.StreamCallGate[F]
}

// NewExclusivePool constructs an empty exclusive pool backed by factory.
func NewExclusivePool[F protocol.Frame](factory Factory[F]) *ExclusivePool[F] {
	return &ExclusivePool[F]{factory: factory}
}

// Acquire returns a connection exclusively owned by the caller until
// Release.
func (p *ExclusivePool[F]) Acquire() (*gate.StreamCallGate[F], error) {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return p.factory()
	}
	g := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()

	if g.Healthy() {
		return g, nil
	}
	g.Stop()
	g.Join()
	return p.factory()
}

// Release returns g to the pool for reuse, or tears it down immediately if
// it is no longer healthy.
func (p *ExclusivePool[F]) Release(g *gate.StreamCallGate[F]) {
	if !g.Healthy() {
		g.Stop()
		g.Join()
		return
	}
	p.mu.Lock()
	p.free = append(p.free, g)
	p.mu.Unlock()
}

// Len reports the number of connections currently idle in the free list.
func (p *ExclusivePool[F]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Stop tears down every idle connection in the free list. Connections
// currently checked out by a caller are unaffected until that caller
// releases (or the gate itself fails) them. Join must be called afterward
// to wait for teardown to finish.
func (p *ExclusivePool[F]) Stop() {
	p.mu.Lock()
	free := p.free
	p.free = nil
	p.stopped = free
	p.mu.Unlock()
	for _, g := range free {
		g.Stop()
	}
}

// Join waits for every connection Stop tore down to finish closing.
func (p *ExclusivePool[F]) Join() {
	p.mu.Lock()
	stopped := p.stopped
	p.stopped = nil
	p.mu.Unlock()
	for _, g := range stopped {
		g.Join()
	}
}
