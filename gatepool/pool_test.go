// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package gatepool

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/momentics/fiberpc/clock"
	"github.com/momentics/fiberpc/eventloop"
	"github.com/momentics/fiberpc/gate"
	"github.com/momentics/fiberpc/internal/testprotocol"
	"github.com/momentics/fiberpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestMain starts the coarse clock updater for the package's lifetime: the
// reuse-threshold and staleness checks below sleep real wall-clock time and
// then expect clock.CoarseSteadyNanos() to have moved, which only happens
// while the updater goroutine is running.
func TestMain(m *testing.M) {
	stop := clock.StartCoarseUpdater()
	defer stop()
	os.Exit(m.Run())
}

func newTestLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	loop, err := eventloop.NewLoop(nil)
	require.NoError(t, err)
	go loop.Run()
	t.Cleanup(func() { loop.Stop(); loop.Join(); loop.Close() })
	return loop
}

// newGateFactory builds a Factory that dials a fresh in-process socketpair
// on every call (the peer end is left open but unused: these tests exercise
// pool bookkeeping, not wire traffic).
func newGateFactory(t *testing.T, loop *eventloop.Loop) Factory[testprotocol.Frame] {
	var nextConn uint32
	return func() (*gate.StreamCallGate[testprotocol.Frame], error) {
		fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
		require.NoError(t, err)
		nextConn++
		// the peer fd is intentionally never closed by the test: leaking a
		// harmless local socketpair fd is cheaper than coordinating its
		// lifetime with the pool's own Stop/Join bookkeeping here.
		return gate.New[testprotocol.Frame](
			transport.NewSystemStreamIo(fds[0]), testprotocol.New("k"), loop, nextConn, nil)
	}
}

func TestSharedPoolReusesWithinForceReuseThreshold(t *testing.T) {
	loop := newTestLoop(t)
	p := NewSharedPool(4, newGateFactory(t, loop))
	defer func() { p.Stop(); p.Join() }()

	first, err := p.Acquire()
	require.NoError(t, err)
	second, err := p.Acquire()
	require.NoError(t, err)

	assert.Same(t, first, second, "acquisitions within the reuse window should share one connection")
	assert.Equal(t, 1, p.Len())
}

func TestSharedPoolReusesStaleIdleConnection(t *testing.T) {
	loop := newTestLoop(t)
	p := NewSharedPool(4, newGateFactory(t, loop))
	defer func() { p.Stop(); p.Join() }()

	first, err := p.Acquire()
	require.NoError(t, err)
	p.Release(first)

	time.Sleep(forceReuseThreshold + 10*time.Millisecond)

	second, err := p.Acquire()
	require.NoError(t, err)

	assert.Same(t, second, first, "a lightly loaded connection stays eligible for reuse no matter how long it has sat idle")
	assert.Equal(t, 1, p.Len())
}

func TestSharedPoolGrowsWhenAllEntriesBusy(t *testing.T) {
	loop := newTestLoop(t)
	p := NewSharedPool(4, newGateFactory(t, loop))
	defer func() { p.Stop(); p.Join() }()

	first, err := p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len(), "acquisitions under the refcount floor should all reuse the one connection")

	fourth, err := p.Acquire()
	require.NoError(t, err)
	assert.NotSame(t, first, fourth, "once every connection is at or above the reuse floor, Acquire grows the pool")
	assert.Equal(t, 2, p.Len())
}

func TestSharedPoolAtCapacityReusesRandomly(t *testing.T) {
	loop := newTestLoop(t)
	p := NewSharedPool(2, newGateFactory(t, loop))
	defer func() { p.Stop(); p.Join() }()

	a, err := p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	require.NoError(t, err)
	b, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 2, p.Len(), "the fourth acquisition, with the first connection at the reuse floor, should have grown the pool to capacity")

	c, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len(), "at capacity, with the newest connection recently used, Acquire must reuse rather than grow")
	assert.True(t, c == a || c == b)
}

func TestSharedPoolConcurrentAcquireStaysWithinCapacity(t *testing.T) {
	loop := newTestLoop(t)
	p := NewSharedPool(4, newGateFactory(t, loop))
	defer func() { p.Stop(); p.Join() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := p.Acquire()
			assert.NoError(t, err)
			defer p.Release(g)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, p.Len(), 4, "a concurrent burst must never grow the shared pool past its configured cap")
}

func TestSharedPoolPurgeEvictsIdleConnections(t *testing.T) {
	loop := newTestLoop(t)
	p := NewSharedPool(4, newGateFactory(t, loop))
	defer func() { p.Stop(); p.Join() }()

	_, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())

	time.Sleep(20 * time.Millisecond)
	p.Purge(10 * time.Millisecond)
	assert.Equal(t, 0, p.Len())
}

func TestExclusivePoolLifoReuse(t *testing.T) {
	loop := newTestLoop(t)
	p := NewExclusivePool(newGateFactory(t, loop))
	defer func() { p.Stop(); p.Join() }()

	g1, err := p.Acquire()
	require.NoError(t, err)
	p.Release(g1)

	g2, err := p.Acquire()
	require.NoError(t, err)
	assert.Same(t, g1, g2)
}

func TestDedicatedPoolNeverReuses(t *testing.T) {
	loop := newTestLoop(t)
	p := NewDedicatedPool(newGateFactory(t, loop))

	g1, err := p.Acquire()
	require.NoError(t, err)
	g2, err := p.Acquire()
	require.NoError(t, err)
	assert.NotSame(t, g1, g2)

	p.Release(g1)
	p.Release(g2)
}

func TestRegistryReturnsSamePoolForSameKey(t *testing.T) {
	loop := newTestLoop(t)
	r := NewRegistry(4, func(string) Factory[testprotocol.Frame] { return newGateFactory(t, loop) })
	defer r.StopAll()
	defer r.JoinAll()

	a := r.Shared("k1")
	b := r.Shared("k1")
	assert.Same(t, a, b)

	c := r.Shared("k2")
	assert.NotSame(t, a, c)
}
