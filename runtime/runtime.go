// Package runtime implements spec.md §6's Start/Stop/Join orchestration
// contract, grounded directly on original_source/flare/init.cc's Start:
// install a quit-signal handler, construct the event loops and watchdog,
// run the user callback, then stop and join everything in reverse order.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package runtime

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/momentics/fiberpc/clock"
	"github.com/momentics/fiberpc/config"
	"github.com/momentics/fiberpc/control"
	"github.com/momentics/fiberpc/eventloop"
	"github.com/momentics/fiberpc/gatepool"
	"github.com/momentics/fiberpc/protocol"
)

// Runtime owns the event loop group, the watchdog, and the debug probes for
// one process, wired up by Start and torn down in reverse order by the
// internal stop sequence Start's callback triggers on return. A gate pool
// registry built by NewRegistry is not tracked or torn down by the Runtime.
type Runtime struct {
	Group    *eventloop.Group
	Watchdog *eventloop.Watchdog
	Debug    *control.DebugProbes

	flags config.Flags
	log   hclog.Logger

	quitOnce      sync.Once
	quitSignals   chan os.Signal
	doneQuit      chan struct{}
	requestedOnce sync.Once
	quitRequested chan struct{}
}

// QuitRequested returns a channel closed the first time a quit signal
// arrives, letting a Start callback block until shutdown is requested
// instead of polling, the Go rendering of
// original_source/flare/init.cc's WaitForQuitSignal.
func (r *Runtime) QuitRequested() <-chan struct{} { return r.quitRequested }

// Start mirrors flare::Start: it builds the event loop group and watchdog
// from flags, installs the double-quit-aborts signal handler, runs cb,
// and on cb's return stops and joins the watchdog and loops in reverse
// construction order. The returned error is cb's error, if any.
//
// argv is accepted for parity with the original's Start(argc, argv, cb)
// signature; this rendering has no use for it beyond handing it to cb,
// since flag parsing is config.Load's job, not Start's.
func Start(argv []string, flags config.Flags, log hclog.Logger, cb func(r *Runtime, argv []string) error) error {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	log = log.Named("runtime")

	r := &Runtime{flags: flags, log: log}

	stopCoarseClock := clock.StartCoarseUpdater()
	defer stopCoarseClock()

	group, err := eventloop.NewGroup(flags.EventLoopsPerGroup, log)
	if err != nil {
		return err
	}
	r.Group = group

	wd := eventloop.NewWatchdog(log, group.Loops()...)
	wd.Interval = flags.WatchdogInterval
	wd.MaxTolerableDelay = flags.WatchdogMaxDelay
	wd.AbortOnStall = flags.WatchdogAbort
	wd.Start()
	r.Watchdog = wd

	r.installQuitSignalHandler(flags.DoubleQuitAborts)
	r.Debug = newDebugProbes(r)
	log.Info("event loops initialized", "count", flags.EventLoopsPerGroup)

	cbErr := cb(r, argv)

	r.Watchdog.Stop()
	r.Watchdog.Join()
	r.Group.StopAll()
	r.Group.JoinAll()
	r.stopQuitSignalHandler()

	log.Info("exited")
	return cbErr
}

// NewRegistry is a convenience constructing a gatepool.Registry bound to
// this runtime's MaxConnectionsPerServer flag, divided across its event
// loop group the way spec.md §6 documents ("Global cap for shared pool
// (divided by scheduling groups)").
func NewRegistry[F protocol.Frame](r *Runtime, newFactory func(poolKey string) gatepool.Factory[F]) *gatepool.Registry[F] {
	perGroup := r.flags.MaxConnectionsPerServer / max(1, r.flags.EventLoopsPerGroup)
	reg := gatepool.NewRegistry(max(1, perGroup), newFactory)
	reg.StartPurge()
	return reg
}

// installQuitSignalHandler mirrors flare::InstallQuitSignalHandler /
// QuitSignalHandler: the first SIGINT/SIGQUIT/SIGTERM begins graceful
// shutdown by closing the QuitRequested channel, which unblocks
// WaitForQuitSignal-style callers; a second occurrence force-aborts the
// process when doubleQuitAborts is set.
func (r *Runtime) installQuitSignalHandler(doubleQuitAborts bool) {
	r.quitSignals = make(chan os.Signal, 2)
	r.doneQuit = make(chan struct{})
	r.quitRequested = make(chan struct{})
	signal.Notify(r.quitSignals, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	go func() {
		seen := false
		for {
			select {
			case <-r.quitSignals:
				if seen && doubleQuitAborts {
					r.log.Error("double quit signal received, aborting")
					os.Exit(1)
				}
				seen = true
				r.log.Info("quit signal received")
				r.requestedOnce.Do(func() { close(r.quitRequested) })
			case <-r.doneQuit:
				return
			}
		}
	}()
}

func (r *Runtime) stopQuitSignalHandler() {
	r.quitOnce.Do(func() {
		signal.Stop(r.quitSignals)
		close(r.doneQuit)
	})
}

// newDebugProbes registers the operator-facing introspection hooks exposed
// through Runtime.Debug.DumpState, consumed by cmd/fiberpcd's /debug endpoint.
func newDebugProbes(r *Runtime) *control.DebugProbes {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("event_loops", func() any { return len(r.Group.Loops()) })
	dp.RegisterProbe("watchdog", func() any {
		return map[string]any{
			"interval":  r.Watchdog.Interval.String(),
			"max_delay": r.Watchdog.MaxTolerableDelay.String(),
			"abort":     r.Watchdog.AbortOnStall,
		}
	})
	dp.RegisterProbe("config", func() any { return r.flags })
	return dp
}
