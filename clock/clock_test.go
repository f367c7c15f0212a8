package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCoarseClockResolution implements scenario S7: spin-read the coarse
// steady clock for 100ms and expect 20..35 distinct values, reflecting the
// ~4ms update cadence.
func TestCoarseClockResolution(t *testing.T) {
	stop := StartCoarseUpdater()
	defer stop()

	seen := make(map[int64]struct{})
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		seen[CoarseSteadyNanos()] = struct{}{}
	}

	require.GreaterOrEqual(t, len(seen), 20)
	require.LessOrEqual(t, len(seen), 35)
}

func TestCoarseStartStopIdempotent(t *testing.T) {
	stop1 := StartCoarseUpdater()
	stop2 := StartCoarseUpdater()
	stop1()
	stop2()
}
