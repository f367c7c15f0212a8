// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package fsync

import "sync/atomic"

// FastLatch is a one-shot single-waiter/single-signaler latch optimized for
// the common case where CountDown runs before Wait, per
// flare/rpc/internal/fast_latch.h: both sides race a single atomic counter
// starting at 2, and only the loser of that race pays for the mutex and
// condition variable underneath. Unlike Latch, FastLatch supports exactly
// one waiter and one signaler; a second call to either method is undefined.
type FastLatch struct {
	left    atomic.Int32
	mu      Mutex
	cv      CondVar
	wokenUp bool
}

// NewFastLatch constructs a latch ready for one Wait and one CountDown.
func NewFastLatch() *FastLatch {
	fl := &FastLatch{}
	fl.left.Store(2)
	return fl
}

// Wait blocks until CountDown has run. If CountDown already ran, Wait
// returns immediately without touching the mutex or condition variable.
//
// left starts at 2; both methods atomically decrement it once. The
// original compares fetch_sub's pre-decrement return value, but Go's
// atomic.Int32.Add returns the post-decrement value instead — one less
// than the original's — so the fast-path constants here are shifted down
// by one accordingly (0 here where the original checks 1, 1 here where
// the original checks 2) to preserve the same races-resolved-identically
// behavior.
func (fl *FastLatch) Wait() {
	if v := fl.left.Add(-1); v == 0 {
		// count_down already ran: no parked waiter to wake.
		return
	}
	fl.waitSlow()
}

// CountDown signals the latch. If Wait has not yet been called, CountDown
// returns immediately; otherwise it wakes the waiter.
func (fl *FastLatch) CountDown() {
	if v := fl.left.Add(-1); v == 1 {
		// Wait hasn't run yet: it will see left == 0 and return immediately.
		return
	}
	fl.notifySlow()
}

func (fl *FastLatch) waitSlow() {
	fl.mu.Lock()
	for !fl.wokenUp {
		fl.cv.Wait(&fl.mu)
	}
	fl.mu.Unlock()
}

func (fl *FastLatch) notifySlow() {
	fl.mu.Lock()
	fl.wokenUp = true
	fl.mu.Unlock()
	fl.cv.NotifyOne()
}
