// Package fsync provides the synchronization primitives spec.md §4.2 calls
// for: mutex, condition variable, latch, counting/binary semaphore, barrier,
// and a reader-biased shared mutex. The scheduling model the spec assumes —
// "cooperatively scheduled lightweight tasks" where a wait suspends only the
// calling task — maps directly onto goroutines parked by the Go runtime: a
// goroutine blocked on a channel receive or condition variable wait yields
// its OS thread back to the scheduler exactly like a fiber would, so no
// bespoke fiber runtime is introduced here (see SPEC_FULL.md §0).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package fsync

import "sync"

// Mutex is a drop-in analogue of flare::fiber::Mutex. Its only departure
// from sync.Mutex is documentation: it is safe to Unlock from a different
// goroutine than the one that called Lock, matching the fiber contract that
// fibers may migrate between worker threads between suspension points.
type Mutex struct {
	mu sync.Mutex
}

// Lock acquires the mutex, blocking the calling goroutine only.
func (m *Mutex) Lock() { m.mu.Lock() }

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock() bool { return m.mu.TryLock() }

// Unlock releases the mutex. May be called from any goroutine holding
// logical ownership, not necessarily the one that locked it.
func (m *Mutex) Unlock() { m.mu.Unlock() }
