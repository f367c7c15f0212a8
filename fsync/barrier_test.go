package fsync

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBarrierPhaseCompletion(t *testing.T) {
	var completions atomic.Int32
	const n = 4
	b := NewBarrier(n, func() { completions.Add(1) })

	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			b.ArriveAndWait()
			done <- struct{}{}
		}()
	}

	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("ArriveAndWait did not return")
		}
	}
	require.EqualValues(t, 1, completions.Load())
}

func TestBarrierArriveAndDrop(t *testing.T) {
	b := NewBarrier(3, nil)
	b.ArriveAndDrop() // expected now 2, current phase needs 2 more arrivals

	done := make(chan struct{})
	go func() {
		b.ArriveAndWait()
		done <- struct{}{}
	}()
	time.Sleep(5 * time.Millisecond)
	b.ArriveAndWait()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("barrier phase did not complete after drop")
	}
}
