// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package eventloop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestLoopDispatchesReadReadiness(t *testing.T) {
	l, err := NewLoop(nil)
	require.NoError(t, err)
	go l.Run()
	defer func() { l.Stop(); l.Join() }()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	fired := make(chan EventMask, 1)
	d := NewDescriptor(fds[1], EventRead, func(mask EventMask, _ int64) {
		fired <- mask
	})
	require.NoError(t, l.AttachDescriptor(d, true))

	_, err = unix.Write(fds[0], []byte("ping"))
	require.NoError(t, err)

	select {
	case mask := <-fired:
		assert.NotZero(t, mask&EventRead)
	case <-time.After(2 * time.Second):
		t.Fatal("descriptor never fired")
	}
}

func TestLoopAddTaskRunsOnLoopGoroutine(t *testing.T) {
	l, err := NewLoop(nil)
	require.NoError(t, err)
	go l.Run()
	defer func() { l.Stop(); l.Join() }()

	var mu sync.Mutex
	ran := false
	l.AddTask(func() {
		mu.Lock()
		ran = true
		mu.Unlock()
	})
	l.Barrier()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, ran)
}

func TestGroupSelectIsStableForSameFd(t *testing.T) {
	g, err := NewGroup(4, nil)
	require.NoError(t, err)
	defer func() { g.StopAll(); g.JoinAll() }()

	l1 := g.Select(17)
	l2 := g.Select(17)
	assert.Same(t, l1, l2)
}

func TestGroupSelectLooplessIsRandomButValid(t *testing.T) {
	g, err := NewGroup(3, nil)
	require.NoError(t, err)
	defer func() { g.StopAll(); g.JoinAll() }()

	l := g.Select(-2)
	assert.Contains(t, g.Loops(), l)
}
