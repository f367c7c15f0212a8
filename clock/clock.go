// Package clock implements flare/base/chrono's Go analogue: exact
// steady/system clock reads, and a coarse clock pair refreshed by a
// dedicated goroutine every ~4ms for low-cost timestamping on hot paths
// (e.g. the gate pool's last-used bookkeeping, spec.md §4.9).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Steady returns a monotonic timestamp suitable for measuring durations.
func Steady() time.Time { return time.Now() }

// System returns the current wall-clock time.
func System() time.Time { return time.Now() }

// coarseUpdateInterval is the cadence at which the coarse clock refreshes,
// per spec.md §4.1 ("updated every ~4 ms by a dedicated thread").
const coarseUpdateInterval = 4 * time.Millisecond

var (
	coarseSteadyNanos atomic.Int64
	coarseSystemNanos atomic.Int64
	coarseStarted     atomic.Bool
)

func init() {
	now := time.Now()
	coarseSteadyNanos.Store(now.UnixNano())
	coarseSystemNanos.Store(now.UnixNano())
}

// CoarseSteadyNanos returns the last steady-clock sample taken by the
// updater goroutine, relaxed-load. Bound: ≲10ms deviation from Steady().
func CoarseSteadyNanos() int64 { return coarseSteadyNanos.Load() }

// CoarseSystemNanos returns the last system-clock sample taken by the
// updater goroutine, relaxed-load.
func CoarseSystemNanos() int64 { return coarseSystemNanos.Load() }

// CoarseSteady returns the coarse steady clock as a time.Time.
func CoarseSteady() time.Time { return time.Unix(0, CoarseSteadyNanos()) }

// StartCoarseUpdater launches the dedicated updater goroutine exactly once
// per process; subsequent calls are no-ops until the returned stop function
// of the call that started it runs.
// The returned stop function terminates the goroutine and may be called
// more than once safely.
func StartCoarseUpdater() (stop func()) {
	if !coarseStarted.CompareAndSwap(false, true) {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(coarseUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				now := time.Now()
				coarseSteadyNanos.Store(now.UnixNano())
				coarseSystemNanos.Store(now.UnixNano())
			}
		}
	}()
	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			close(done)
			<-stopped
			coarseStarted.Store(false)
		})
	}
}
