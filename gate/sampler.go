// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package gate

import (
	"sync/atomic"

	"github.com/momentics/fiberpc/clock"
)

// Sampler decides, call by call, whether the current occurrence should be
// recorded. Grounded on flare/rpc/internal/sampler.h's Sampler interface.
type Sampler interface {
	Sample() bool
}

// largeIntervalSampler samples at most once per interval regardless of call
// volume, per sampler.h's LargeIntervalSampler: cheap under light load (a
// single coarse clock read and a usually-false comparison) and self-limiting
// under heavy load (the CAS only succeeds for whichever caller's read of
// nextSampledNanos lost the race last).
type largeIntervalSampler struct {
	intervalNanos    int64
	nextSampledNanos atomic.Int64
}

// NewLatencySampler returns a Sampler admitting at most one occurrence per
// interval, used to bound the rate at which gate observes
// metrics.FastCallLatencySeconds on the fast-call completion hot path.
func NewLatencySampler(interval int64) Sampler {
	return &largeIntervalSampler{intervalNanos: interval}
}

func (s *largeIntervalSampler) Sample() bool {
	now := clock.CoarseSteadyNanos()
	t := s.nextSampledNanos.Load()
	if t <= now {
		next := now + s.intervalNanos
		return s.nextSampledNanos.CompareAndSwap(t, next)
	}
	return false
}
