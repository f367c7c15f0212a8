// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package pool

import (
	"sync"

	"github.com/momentics/fiberpc/metrics"
)

// ObjectPool is a generic pool of reusable values, used by gate for its
// scratch serialization buffers: `New` supplies the zero/initial value,
// `Put` returns a used one for the next `Get` to reuse.
type ObjectPool[T any] interface {
	Get() T
	Put(T)
}

// SyncPool wraps sync.Pool, whose own GC-aware eviction makes it the right
// fit for objects with no fixed capacity bound (unlike SimpleBytePool's
// channel, which is sized explicitly). Every Get that finds the underlying
// sync.Pool empty allocates via creator and is recorded against
// metrics.PoolAllocationsTotal.
type SyncPool[T any] struct {
	name    string
	pool    *sync.Pool
	creator func() T
}

// NewSyncPool creates a SyncPool labeled name for metrics.PoolAllocationsTotal,
// using creator to produce a fresh value whenever the pool is empty.
func NewSyncPool[T any](name string, creator func() T) *SyncPool[T] {
	return &SyncPool[T]{
		name:    name,
		creator: creator,
		pool: &sync.Pool{New: func() any {
			metrics.PoolAllocationsTotal.WithLabelValues(name).Inc()
			return creator()
		}},
	}
}

func (sp *SyncPool[T]) Get() T {
	return sp.pool.Get().(T)
}

func (sp *SyncPool[T]) Put(obj T) {
	sp.pool.Put(obj)
}
