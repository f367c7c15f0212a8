// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package eventloop

import (
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/momentics/fiberpc/metrics"
)

const (
	defaultWatchdogInterval  = 10 * time.Second
	defaultMaxTolerableDelay = 5 * time.Second
)

// Watchdog runs on its own goroutine ("a dedicated OS thread" in spec.md
// §4.5's terms) and, once per Interval, posts a trivial task to each
// watched loop and waits up to MaxTolerableDelay for it to run. On a miss
// it either logs (default) or aborts the process, flag-controlled by
// AbortOnStall.
type Watchdog struct {
	Interval          time.Duration
	MaxTolerableDelay time.Duration
	AbortOnStall      bool
	Logger            hclog.Logger

	loops []*Loop
	quit  chan struct{}
	done  chan struct{}
}

// NewWatchdog constructs a watchdog over the given loops with the spec's
// default interval/delay; callers may override the fields before Start.
func NewWatchdog(logger hclog.Logger, loops ...*Loop) *Watchdog {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Watchdog{
		Interval:          defaultWatchdogInterval,
		MaxTolerableDelay: defaultMaxTolerableDelay,
		Logger:            logger.Named("watchdog"),
		loops:             loops,
		quit:              make(chan struct{}),
		done:              make(chan struct{}),
	}
}

// Start begins the watchdog goroutine.
func (w *Watchdog) Start() {
	go w.run()
}

func (w *Watchdog) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			return
		case <-ticker.C:
			for i, l := range w.loops {
				w.probe(i, l)
			}
		}
	}
}

func (w *Watchdog) probe(idx int, l *Loop) {
	ran := make(chan struct{}, 1)
	l.AddTask(func() { ran <- struct{}{} })

	select {
	case <-ran:
	case <-time.After(w.MaxTolerableDelay):
		msg := "event loop failed to run watchdog probe within max tolerable delay"
		metrics.WatchdogStalls.WithLabelValues(strconv.Itoa(idx)).Inc()
		if w.AbortOnStall {
			w.Logger.Error(msg, "loop_index", idx, "max_tolerable_delay", w.MaxTolerableDelay)
			panic(msg)
		}
		w.Logger.Warn(msg, "loop_index", idx, "max_tolerable_delay", w.MaxTolerableDelay)
	}
}

// Stop signals the watchdog goroutine to exit.
func (w *Watchdog) Stop() {
	select {
	case <-w.quit:
	default:
		close(w.quit)
	}
}

// Join blocks until the watchdog goroutine has exited.
func (w *Watchdog) Join() {
	<-w.done
}
