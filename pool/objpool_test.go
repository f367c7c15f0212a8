// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package pool

import (
	"testing"

	"github.com/momentics/fiberpc/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSyncPoolGetPutRoundTrips(t *testing.T) {
	sp := NewSyncPool("test_roundtrip", func() []byte { return make([]byte, 4) })

	b := sp.Get()
	assert.Len(t, b, 4)
	sp.Put(b)
}

func TestSyncPoolCountsFreshAllocations(t *testing.T) {
	before := testutil.ToFloat64(metrics.PoolAllocationsTotal.WithLabelValues("test_allocations"))

	sp := NewSyncPool("test_allocations", func() []byte { return make([]byte, 4) })
	sp.Get()

	after := testutil.ToFloat64(metrics.PoolAllocationsTotal.WithLabelValues("test_allocations"))
	assert.Equal(t, before+1, after)
}
