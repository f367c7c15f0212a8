// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package fsync

import "time"

// CountingSemaphore is the fiber analogue of flare::fiber::CountingSemaphore:
// a Mutex + CondVar pair guarding a uint32 counter, per spec.md §4.2.
// Release(1) wakes a single waiter; Release(n>1) wakes all waiters so they
// can re-check how much of the released count they can each claim.
type CountingSemaphore struct {
	mu      Mutex
	cv      CondVar
	count   uint32
	maxVal  uint32
}

// NewCountingSemaphore constructs a semaphore with the given initial count
// and an optional maximum (0 means unbounded, i.e. math.MaxUint32).
func NewCountingSemaphore(initial uint32, max uint32) *CountingSemaphore {
	if max == 0 {
		max = ^uint32(0)
	}
	return &CountingSemaphore{count: initial, maxVal: max}
}

// NewBinarySemaphore constructs a semaphore whose maximum value is 1,
// matching flare::fiber::BinarySemaphore = CountingSemaphore<1>.
func NewBinarySemaphore(initial uint32) *CountingSemaphore {
	return NewCountingSemaphore(initial, 1)
}

// Acquire blocks until the counter is positive, then decrements it.
func (s *CountingSemaphore) Acquire() {
	s.mu.Lock()
	for s.count == 0 {
		s.cv.Wait(&s.mu)
	}
	s.count--
	s.mu.Unlock()
}

// TryAcquire attempts to decrement the counter without blocking.
func (s *CountingSemaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return false
	}
	s.count--
	return true
}

// TryAcquireFor attempts to acquire within timeout.
func (s *CountingSemaphore) TryAcquireFor(timeout time.Duration) bool {
	return s.TryAcquireUntil(time.Now().Add(timeout))
}

// TryAcquireUntil attempts to acquire before deadline.
func (s *CountingSemaphore) TryAcquireUntil(deadline time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.count == 0 {
		if !s.cv.WaitUntil(&s.mu, deadline) {
			return false
		}
	}
	s.count--
	return true
}

// Release increments the counter by n, saturating at the configured
// maximum. n==1 wakes a single waiter (notify-one); n>1 wakes everyone so
// each re-evaluates the predicate, per spec.md §4.2.
func (s *CountingSemaphore) Release(n uint32) {
	s.mu.Lock()
	if n > s.maxVal-s.count {
		s.count = s.maxVal
	} else {
		s.count += n
	}
	s.mu.Unlock()
	if n == 1 {
		s.cv.NotifyOne()
	} else {
		s.cv.NotifyAll()
	}
}
