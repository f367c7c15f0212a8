// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package gate

import (
	"os"
	"testing"
	"time"

	"github.com/momentics/fiberpc/clock"
	"github.com/stretchr/testify/assert"
)

// TestMain starts the coarse clock updater for the package's lifetime:
// largeIntervalSampler reads clock.CoarseSteadyNanos(), which only advances
// while the updater goroutine launched by clock.StartCoarseUpdater runs.
func TestMain(m *testing.M) {
	stop := clock.StartCoarseUpdater()
	defer stop()
	os.Exit(m.Run())
}

func TestLatencySamplerAdmitsOncePerInterval(t *testing.T) {
	s := NewLatencySampler(int64(20 * time.Millisecond))

	assert.True(t, s.Sample(), "first call should always be sampled")
	assert.False(t, s.Sample(), "a call within the interval should not be sampled")

	time.Sleep(25 * time.Millisecond)
	assert.True(t, s.Sample(), "a call after the interval elapsed should be sampled")
}
