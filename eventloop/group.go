// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package eventloop

import (
	"math/rand"

	"github.com/hashicorp/go-hclog"
)

// Group is a fixed-size scheduling group of loops, matching spec.md §4.5's
// "per scheduling group a fixed number of loops are started" rule.
type Group struct {
	loops []*Loop
}

// NewGroup starts n loops, each on its own goroutine. A nil logger
// defaults to hclog.NewNullLogger() and is shared (named per-loop) by
// every loop in the group.
func NewGroup(n int, logger hclog.Logger) (*Group, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if n <= 0 {
		n = 1
	}
	g := &Group{loops: make([]*Loop, n)}
	for i := 0; i < n; i++ {
		l, err := NewLoop(logger)
		if err != nil {
			g.StopAll()
			g.JoinAll()
			return nil, err
		}
		g.loops[i] = l
	}
	for _, l := range g.loops {
		go l.Run()
	}
	return g, nil
}

// Select returns the loop responsible for fd: hash(fd) mod loop count, or a
// uniformly random loop when fd == -2 (the sentinel for loop-less
// resources, e.g. timers not tied to any descriptor).
func (g *Group) Select(fd int) *Loop {
	if fd == -2 {
		return g.loops[rand.Intn(len(g.loops))]
	}
	h := fnv1aHash(fd)
	return g.loops[h%uint32(len(g.loops))]
}

// Loops returns the group's loops, for diagnostics/watchdog attachment.
func (g *Group) Loops() []*Loop { return g.loops }

// StopAll signals every loop in the group to exit.
func (g *Group) StopAll() {
	for _, l := range g.loops {
		l.Stop()
	}
}

// JoinAll blocks until every loop in the group has exited, then releases
// their epoll/eventfd descriptors.
func (g *Group) JoinAll() {
	for _, l := range g.loops {
		l.Join()
		l.Close()
	}
}

func fnv1aHash(fd int) uint32 {
	const offsetBasis = 2166136261
	const prime = 16777619
	h := uint32(offsetBasis)
	v := uint32(fd)
	for i := 0; i < 4; i++ {
		h ^= v & 0xff
		h *= prime
		v >>= 8
	}
	return h
}
