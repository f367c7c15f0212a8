// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package streamadaptor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNotifyReadSuspendsAtBufferSizeAndRestartsOnce implements testable
// property 3: the transport is told to suspend reading exactly when
// unacked_msgs reaches buffer_size, and restart_read fires exactly once
// after the consumer drains it back down to buffer_size-1.
func TestNotifyReadSuspendsAtBufferSizeAndRestartsOnce(t *testing.T) {
	var restarts int
	var mu sync.Mutex

	a := New[int](3, Ops[int]{
		TryParse: func(msg *int) bool { return true },
		RestartRead: func() {
			mu.Lock()
			restarts++
			mu.Unlock()
		},
	})

	suspend1 := a.NotifyRead(1)
	suspend2 := a.NotifyRead(2)
	suspend3 := a.NotifyRead(3)
	assert.False(t, suspend1)
	assert.False(t, suspend2)
	assert.True(t, suspend3) // unacked_msgs reaches bufferSize == 3

	// Let the work queue deliver all three into the reader provider.
	reader := a.Reader()
	var got []int
	for i := 0; i < 3; i++ {
		done := make(chan struct{})
		reader.Read(func(msg int, err error) {
			require.NoError(t, err)
			got = append(got, msg)
			close(done)
		})
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("read never completed")
		}
	}
	assert.Equal(t, []int{1, 2, 3}, got)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		r := restarts
		mu.Unlock()
		if r == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, restarts)
}

func TestBreakSynthesizesEndOfStreamAndFailedWrite(t *testing.T) {
	a := New[int](4, Ops[int]{
		TryParse: func(*int) bool { return true },
		Write:    func(*int) bool { return true },
	})

	writeErr := make(chan error, 1)
	// last=true holds the callback back until the write completes, so the
	// failed completion Break synthesizes is what resolves it.
	a.Writer().Write(1, true, func(err error) { writeErr <- err })

	readErr := make(chan error, 1)
	a.Reader().Read(func(_ int, err error) { readErr <- err })

	a.Break()

	select {
	case err := <-writeErr:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("write never completed after Break")
	}
	select {
	case err := <-readErr:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("read never completed after Break")
	}
}

func TestCloseFiresOnCloseOnceBothHalvesClosed(t *testing.T) {
	closed := make(chan struct{}, 1)
	a := New[int](2, Ops[int]{
		OnClose: func() { closed <- struct{}{} },
	})
	a.Close()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("OnClose never fired")
	}
}
