package fsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCountingSemaphoreBasic(t *testing.T) {
	s := NewCountingSemaphore(2, 0)
	require.True(t, s.TryAcquire())
	require.True(t, s.TryAcquire())
	require.False(t, s.TryAcquire())

	s.Release(1)
	require.True(t, s.TryAcquireFor(50 * time.Millisecond))
}

func TestBinarySemaphoreMutualExclusion(t *testing.T) {
	s := NewBinarySemaphore(1)
	s.Acquire()
	require.False(t, s.TryAcquire())
	s.Release(1)
	require.True(t, s.TryAcquire())
}

func TestCountingSemaphoreReleaseN(t *testing.T) {
	s := NewCountingSemaphore(0, 0)
	s.Release(3)
	require.True(t, s.TryAcquire())
	require.True(t, s.TryAcquire())
	require.True(t, s.TryAcquire())
	require.False(t, s.TryAcquire())
}
