package fsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSharedMutexMultipleReaders(t *testing.T) {
	sm := NewSharedMutex()
	sm.LockShared()
	require.True(t, sm.TryLockShared())
	sm.UnlockShared()
	sm.UnlockShared()
}

// TestSharedMutexWriterExcludesReaders implements scenario/property 5: once
// a writer has called Lock, concurrent TryLockShared calls must observe the
// quota is non-positive and fail, and the writer's Lock must still return in
// bounded time once the pre-existing reader releases.
func TestSharedMutexWriterExcludesReaders(t *testing.T) {
	sm := NewSharedMutex()
	sm.LockShared()

	writerDone := make(chan struct{})
	go func() {
		sm.Lock()
		close(writerDone)
	}()

	time.Sleep(10 * time.Millisecond)
	require.False(t, sm.TryLockShared(), "new readers must not starve a waiting writer")

	sm.UnlockShared()

	select {
	case <-writerDone:
	case <-time.After(time.Second):
		t.Fatal("writer Lock did not return after reader released")
	}
	sm.Unlock()
}

func TestSharedMutexTryLock(t *testing.T) {
	sm := NewSharedMutex()
	require.True(t, sm.TryLock())
	require.False(t, sm.TryLockShared())
	sm.Unlock()
	require.True(t, sm.TryLockShared())
}
