// Package eventloop implements the edge-triggered epoll reactor described in
// spec.md §4.5: a fixed set of loops per scheduling group, one goroutine per
// loop, descriptors attached/enabled/rearmed/detached under loop ownership,
// a mutex-guarded deferred-task queue, and one watchdog goroutine that
// probes every loop it was given.
//
// Grounded on reactor/{epoll_reactor,reactor,reactor_linux}.go for the
// epoll_ctl/epoll_wait wiring, and on core/concurrency/eventloop.go and
// executor.go for the batch-drain-then-backoff loop shape and the
// worker/stop/done handshake idiom. The task queue uses
// github.com/eapache/queue (the teacher's own dependency, carried over from
// its client connection pooling) in place of a hand-rolled ring.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package eventloop

import (
	"sync/atomic"
)

// EventMask is a bitmask of readiness conditions. Its bits are not the
// platform epoll constants; the loop translates between the two when
// arming descriptors and dispatching events.
type EventMask uint32

const (
	EventRead EventMask = 1 << iota
	EventWrite
	EventError
)

// Descriptor is one fd tracked by a Loop. FireEvents is invoked by the
// owning loop's goroutine only — never concurrently with itself for the
// same Descriptor.
type Descriptor struct {
	Fd int
	// Mask is OR-ed with EPOLLERR|EPOLLET whenever the descriptor is
	// (re)armed.
	Mask EventMask
	// FireEvents is called with the readiness mask observed and the
	// monotonic-nanosecond timestamp at the start of the loop iteration
	// that observed it.
	FireEvents func(mask EventMask, startNanos int64)

	loop    atomic.Pointer[Loop]
	refs    atomic.Int32
	enabled atomic.Bool
}

// NewDescriptor constructs a descriptor for fd with the given interest mask
// and callback. It is not attached to any loop until AttachDescriptor is
// called.
func NewDescriptor(fd int, mask EventMask, cb func(EventMask, int64)) *Descriptor {
	return &Descriptor{Fd: fd, Mask: mask, FireEvents: cb}
}

// Loop returns the loop this descriptor is currently attached to, or nil.
func (d *Descriptor) Loop() *Loop { return d.loop.Load() }
