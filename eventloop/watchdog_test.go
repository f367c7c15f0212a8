// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchdogProbesHealthyLoopWithoutAborting(t *testing.T) {
	l, err := NewLoop(nil)
	require.NoError(t, err)
	go l.Run()
	defer func() { l.Stop(); l.Join() }()

	wd := NewWatchdog(nil, l)
	wd.Interval = 20 * time.Millisecond
	wd.MaxTolerableDelay = 200 * time.Millisecond
	wd.Start()
	defer func() { wd.Stop(); wd.Join() }()

	time.Sleep(100 * time.Millisecond)
	// No panic and the loop remains joinable: the watchdog did not flag a
	// stall on a loop that is actively draining tasks.
}
