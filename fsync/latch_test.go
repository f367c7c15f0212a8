package fsync

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestLatchContention implements scenario S1: ten goroutines count a
// Latch(10) down by one after a random 0-10ms sleep; the main goroutine
// waits. Wait must return within 100ms + scheduling slack, and TryWait must
// then report true immediately.
func TestLatchContention(t *testing.T) {
	l := NewLatch(10)
	for i := 0; i < 10; i++ {
		go func() {
			time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
			l.CountDown1()
		}()
	}

	start := time.Now()
	l.Wait()
	elapsed := time.Since(start)

	require.LessOrEqual(t, elapsed, 200*time.Millisecond)
	require.True(t, l.TryWait())
}

func TestLatchWaitUntilTimesOut(t *testing.T) {
	l := NewLatch(1)
	ok := l.WaitUntil(time.Now().Add(20 * time.Millisecond))
	require.False(t, ok)
	l.CountDown1()
	require.True(t, l.TryWait())
}

func TestLatchArriveAndWait(t *testing.T) {
	l := NewLatch(2)
	done := make(chan struct{})
	go func() {
		l.ArriveAndWait(1)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	l.CountDown1()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ArriveAndWait did not return")
	}
}
