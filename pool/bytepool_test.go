// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package pool

import (
	"testing"

	"github.com/momentics/fiberpc/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSimpleBytePoolReusesReturnedBuffer(t *testing.T) {
	bp := NewSimpleBytePool("test_reuse", 1, 16)

	b := bp.Get()
	assert.Len(t, b, 16)
	bp.Put(b)

	got := bp.Get()
	assert.Len(t, got, 16)
}

func TestSimpleBytePoolAllocatesFreshWhenEmptyAndCountsIt(t *testing.T) {
	bp := NewSimpleBytePool("test_allocates", 0, 8)

	before := testutil.ToFloat64(metrics.PoolAllocationsTotal.WithLabelValues("test_allocates"))
	b := bp.Get()
	after := testutil.ToFloat64(metrics.PoolAllocationsTotal.WithLabelValues("test_allocates"))

	assert.Len(t, b, 8)
	assert.Equal(t, before+1, after)
}

func TestSimpleBytePoolDiscardsWrongSizedBuffer(t *testing.T) {
	bp := NewSimpleBytePool("test_wrong_size", 1, 8)

	bp.Put(make([]byte, 4))

	before := testutil.ToFloat64(metrics.PoolAllocationsTotal.WithLabelValues("test_wrong_size"))
	bp.Get()
	after := testutil.ToFloat64(metrics.PoolAllocationsTotal.WithLabelValues("test_wrong_size"))
	assert.Equal(t, before+1, after, "wrong-sized buffer must not have been recycled")
}
