// Package metrics exposes the process's runtime counters via
// github.com/prometheus/client_golang, replacing the teacher's
// hand-rolled map-backed MetricsRegistry (control/metrics.go) with real
// Prometheus collectors wired to the gate, gate pool, and event loop.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FastCallsTotal counts completed fast calls by outcome
	// ("ok", "timeout", "io_error", "gate_closing").
	FastCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fiberpc",
		Subsystem: "gate",
		Name:      "fast_calls_total",
		Help:      "Completed fast calls, labeled by outcome.",
	}, []string{"outcome"})

	// FastCallLatencySeconds observes end-to-end fast call latency.
	FastCallLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fiberpc",
		Subsystem: "gate",
		Name:      "fast_call_latency_seconds",
		Help:      "Fast call round-trip latency.",
		Buckets:   prometheus.DefBuckets,
	})

	// GatePoolSize reports the current connection count of a shared pool,
	// labeled by pool key.
	GatePoolSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fiberpc",
		Subsystem: "gatepool",
		Name:      "shared_pool_size",
		Help:      "Live connections cached by a shared gate pool.",
	}, []string{"pool_key"})

	// WatchdogStalls counts event loop iterations the watchdog judged
	// slower than its configured tolerance.
	WatchdogStalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fiberpc",
		Subsystem: "eventloop",
		Name:      "watchdog_stalls_total",
		Help:      "Loop iterations exceeding the watchdog's max tolerable delay, labeled by loop index.",
	}, []string{"loop"})

	// NewConnCreationInSharedPool counts connections a shared gate pool had
	// to create because every existing connection was either too busy
	// (refcount at or above the reuse floor) or too recently handed out,
	// labeled by pool key. Mirrors the original's
	// new_conn_creation_in_shared_pool counter in stream_call_gate_pool.cc.
	NewConnCreationInSharedPool = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fiberpc",
		Subsystem: "gatepool",
		Name:      "new_conn_creation_in_shared_pool_total",
		Help:      "Connections created by a shared gate pool because no existing one was eligible for reuse.",
	}, []string{"pool_key"})

	// PoolAllocationsTotal counts fresh allocations made by a scratch-buffer
	// or scratch-object pool because it was empty at Get time, labeled by
	// pool name. A pool that never reports here is sized correctly for its
	// workload; one that climbs steadily under steady load is undersized.
	PoolAllocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fiberpc",
		Subsystem: "pool",
		Name:      "allocations_total",
		Help:      "Fresh allocations made by a scratch pool because it was empty, labeled by pool name.",
	}, []string{"pool"})
)

func init() {
	prometheus.MustRegister(FastCallsTotal, FastCallLatencySeconds, GatePoolSize, WatchdogStalls,
		NewConnCreationInSharedPool, PoolAllocationsTotal)
}

// Handler returns the HTTP handler serving the process's metrics in the
// Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
