// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package iostream

import (
	"testing"
	"time"

	"github.com/momentics/fiberpc/rpcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBufferedReaderExpiration implements S4: a reader with no producer and
// no buffered data must surface a Timeout error within +-20ms of the
// expiration deadline set on it.
func TestBufferedReaderExpiration(t *testing.T) {
	r := NewBufferedReaderProvider[int](10, nil)
	start := time.Now()
	r.SetExpiration(start.Add(100 * time.Millisecond))

	done := make(chan error, 1)
	r.Read(func(_ int, err error) { done <- err })

	select {
	case err := <-done:
		elapsed := time.Since(start)
		require.Error(t, err)
		assert.True(t, rpcerr.Is(err, rpcerr.KindTimeout))
		assert.InDelta(t, 100, elapsed.Milliseconds(), 20)
	case <-time.After(300 * time.Millisecond):
		t.Fatal("read never completed")
	}
}

// TestBufferedReaderBufferSizeInvariant implements testable property 4: the
// provider keeps arrivals past bufferSize instead of dropping them, and
// onBufferAvailable fires exactly on full-to-non-full transitions.
func TestBufferedReaderBufferSizeInvariant(t *testing.T) {
	notifications := 0
	r := NewBufferedReaderProvider[int](2, func() { notifications++ })

	r.OnDataAvailable(1)
	r.OnDataAvailable(2)
	assert.Equal(t, 2, r.Pending())

	// Queue is at capacity; a third arrival still enqueues (producers are
	// expected to honor back-pressure themselves, but the provider does not
	// drop data).
	r.OnDataAvailable(3)
	assert.Equal(t, 3, r.Pending())

	var got int
	r.Read(func(msg int, err error) {
		require.NoError(t, err)
		got = msg
	})
	assert.Equal(t, 1, got)
	assert.Equal(t, 2, r.Pending())
	assert.Equal(t, 0, notifications, "2 queued with bufferSize 2 is still full")

	r.Read(func(msg int, err error) {
		require.NoError(t, err)
		got = msg
	})
	assert.Equal(t, 2, got)
	assert.Equal(t, 1, r.Pending())
	assert.Equal(t, 1, notifications)
}

func TestBufferedReaderPeekConsumesLikeReadOnError(t *testing.T) {
	r := NewBufferedReaderProvider[int](4, nil)
	r.OnError(rpcerr.New(rpcerr.KindParseError, "bad frame"))

	var first, second error
	r.Peek(func(_ int, err error) { first = err })
	assert.Error(t, first)
	assert.Equal(t, 0, r.Pending())

	r.Read(func(_ int, err error) { second = err })
	// queue now empty: the read parks, so err is nil until we feed it.
	assert.NoError(t, second)
	r.OnError(rpcerr.New(rpcerr.KindParseError, "bad frame 2"))
}

func TestBufferedReaderClosePendingGetsEndOfStream(t *testing.T) {
	r := NewBufferedReaderProvider[int](4, nil)
	var readErr error
	r.Read(func(_ int, err error) { readErr = err })
	r.Close(nil)
	assert.ErrorIs(t, readErr, rpcerr.ErrEndOfStream)
}
