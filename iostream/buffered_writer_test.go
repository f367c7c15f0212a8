// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package iostream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedWriterSynchronousUntilCapacity(t *testing.T) {
	scheduled := 0
	w := NewBufferedWriterProvider[int](2, func(int) bool { scheduled++; return true })

	var cb1, cb2 bool
	w.Write(1, false, func(err error) { require.NoError(t, err); cb1 = true })
	w.Write(2, false, func(err error) { require.NoError(t, err); cb2 = true })
	assert.True(t, cb1)
	assert.True(t, cb2)
	assert.Equal(t, 2, scheduled)
	assert.Equal(t, 2, w.Pending())

	// Third write exceeds capacity: it must park, not fire synchronously.
	fired := false
	w.Write(3, false, func(err error) { fired = true })
	assert.False(t, fired)
	assert.Equal(t, 2, scheduled)

	// Completing one outstanding write releases the parked one.
	w.OnWriteCompletion(true)
	assert.True(t, fired)
	assert.Equal(t, 3, scheduled)
	assert.Equal(t, 2, w.Pending())
}

func TestBufferedWriterLastWriteHeldBackUntilDrained(t *testing.T) {
	w := NewBufferedWriterProvider[int](4, func(int) bool { return true })

	w.Write(1, false, func(error) {})
	w.Write(2, false, func(error) {})

	lastDone := false
	w.Write(3, true, func(err error) {
		require.NoError(t, err)
		lastDone = true
	})
	// The regular writes complete synchronously and count against pending;
	// the last write itself is also scheduled synchronously (room existed)
	// but its callback stays held back until all three drain.
	assert.False(t, lastDone)
	assert.Equal(t, 3, w.Pending())

	w.OnWriteCompletion(true)
	assert.False(t, lastDone)
	w.OnWriteCompletion(true)
	assert.False(t, lastDone)
	w.OnWriteCompletion(true)
	assert.True(t, lastDone)
	assert.Equal(t, 0, w.Pending())
}

func TestBufferedWriterCloseDeferredUntilDrained(t *testing.T) {
	w := NewBufferedWriterProvider[int](4, func(int) bool { return true })
	w.Write(1, false, func(error) {})

	closed := false
	w.Close(func(err error) {
		require.NoError(t, err)
		closed = true
	})
	assert.False(t, closed)

	w.OnWriteCompletion(true)
	assert.True(t, closed)
}

func TestBufferedWriterBreakFailsParkedAndHeldBack(t *testing.T) {
	w := NewBufferedWriterProvider[int](1, func(int) bool { return true })
	w.Write(1, false, func(error) {})

	var parkedErr error
	w.Write(2, false, func(err error) { parkedErr = err })
	assert.NoError(t, parkedErr)

	var lastErr error
	w.Write(3, true, func(err error) { lastErr = err })

	w.Break()
	assert.Error(t, parkedErr)
	assert.Error(t, lastErr)

	// Writes after Break fail immediately.
	var afterErr error
	w.Write(4, false, func(err error) { afterErr = err })
	assert.Error(t, afterErr)
}
