// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package control

import (
	"sync"
	"time"

	"github.com/momentics/fiberpc/clock"
)

// DebugProbes is a registry of named, lazily-evaluated introspection hooks.
// runtime.Runtime registers probes reporting its event loop count and
// watchdog settings against one of these; cmd/fiberpcd serves the
// aggregated dump as JSON on /debug when requested. Every dump is stamped
// with the coarse clock reading at evaluation time and the age of the
// registry itself, since a /debug consumer polling this endpoint over a
// connection with unknown latency has no other way to tell how stale the
// probe values it just read might already be.
type DebugProbes struct {
	mu        sync.RWMutex
	probes    map[string]func() any
	createdAt time.Time
}

// NewDebugProbes creates an empty probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes:    make(map[string]func() any),
		createdAt: clock.System(),
	}
}

// RegisterProbe inserts or replaces a named debug hook.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// UnregisterProbe removes a named debug hook, if present. Used when a
// component that registered a probe (e.g. a gate pool registry) is torn
// down before the runtime itself, so DumpState does not keep calling into
// state that no longer exists.
func (dp *DebugProbes) UnregisterProbe(name string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	delete(dp.probes, name)
}

// DumpState evaluates every registered probe and returns its output,
// alongside the registry's uptime and the coarse clock reading taken at
// evaluation time.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any, len(dp.probes)+2)
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	out["dumped_at"] = clock.CoarseSteady()
	out["uptime"] = clock.System().Sub(dp.createdAt).String()
	return out
}
