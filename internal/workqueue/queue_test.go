// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package workqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueueRunsTasksInOrder(t *testing.T) {
	q := New()
	defer func() { q.Stop(); q.Join() }()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		q.Submit(func() { order = append(order, i) })
	}
	q.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tasks never drained")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestSubmitAndWaitBlocksUntilDone(t *testing.T) {
	q := New()
	defer func() { q.Stop(); q.Join() }()

	ran := false
	q.SubmitAndWait(func() { ran = true })
	assert.True(t, ran)
}

func TestInWorkerTrueOnlyInsideTask(t *testing.T) {
	q := New()
	defer func() { q.Stop(); q.Join() }()

	assert.False(t, q.InWorker())
	var insideValue bool
	q.SubmitAndWait(func() { insideValue = q.InWorker() })
	assert.True(t, insideValue)
	assert.False(t, q.InWorker())
}
