// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package corrmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRPCIDAllocatorMonotonicAndUnique(t *testing.T) {
	a := NewRPCIDAllocator()
	seen := make(map[uint32]bool)
	var prev uint32
	for i := 0; i < 1000; i++ {
		id := a.Next()
		if i > 0 {
			assert.Greater(t, id, prev)
		}
		assert.False(t, seen[id], "id %d issued twice", id)
		seen[id] = true
		prev = id
	}
}

func TestRPCIDAllocatorConcurrentUnique(t *testing.T) {
	a := NewRPCIDAllocator()
	const n = 2000
	ids := make(chan uint32, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- a.Next()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint32]bool, n)
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestMergeSplitRoundTrip(t *testing.T) {
	key := Merge(0xCAFEBABE, 0xDEADBEEF)
	conn, rpc := Split(key)
	assert.Equal(t, uint32(0xCAFEBABE), conn)
	assert.Equal(t, uint32(0xDEADBEEF), rpc)
}

func TestConnectionIDAllocatorMonotonic(t *testing.T) {
	a := NewConnectionIDAllocator()
	first := a.Next()
	second := a.Next()
	assert.Equal(t, first+1, second)
}
