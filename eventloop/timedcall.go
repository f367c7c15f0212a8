// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package eventloop

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// timedCall runs fn and logs a warning if it took longer than tolerance,
// mirroring flare/io/detail/timed_call.h's TimedCall, minus its
// feature-flag gate (dumping slow calls is unconditional here).
func timedCall(log hclog.Logger, name string, tolerance time.Duration, fn func()) {
	start := time.Now()
	fn()
	if used := time.Since(start); used > tolerance {
		log.Warn(name+" costs", "duration", used)
	}
}
