// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package pool

import "github.com/momentics/fiberpc/metrics"

// BytePool provides reusable byte slices for wire-buffer scratch space —
// the per-gate read/write staging area a stream call gate borrows from and
// returns to on every frame, instead of allocating fresh on every call.
type BytePool interface {
	Get() []byte
	Put([]byte)
}

// SimpleBytePool is a fixed-capacity, channel-backed pool of fixed-size
// buffers. Empty-at-Get is not an error: it falls back to a fresh
// allocation and records the miss against metrics.PoolAllocationsTotal so
// an operator can tell whether a pool's capacity is undersized for its
// gate's traffic.
type SimpleBytePool struct {
	name string
	bufs chan []byte
	size int
}

// NewSimpleBytePool creates a pool of capacity buffers of size bytes each,
// pre-filled, labeled name for metrics.PoolAllocationsTotal.
func NewSimpleBytePool(name string, capacity, size int) *SimpleBytePool {
	bp := &SimpleBytePool{
		name: name,
		bufs: make(chan []byte, capacity),
		size: size,
	}
	for i := 0; i < capacity; i++ {
		bp.bufs <- make([]byte, size)
	}
	return bp
}

func (bp *SimpleBytePool) Get() []byte {
	select {
	case b := <-bp.bufs:
		return b
	default:
		metrics.PoolAllocationsTotal.WithLabelValues(bp.name).Inc()
		return make([]byte, bp.size)
	}
}

func (bp *SimpleBytePool) Put(b []byte) {
	if len(b) != bp.size {
		// Wrong-sized buffer (e.g. grown by append elsewhere): not safe to
		// recycle into a fixed-size pool, so let it be collected instead.
		return
	}
	select {
	case bp.bufs <- b:
	default:
		// Pool already at capacity; discard rather than grow unbounded.
	}
}
