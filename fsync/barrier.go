// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package fsync

// Barrier is the fiber analogue of std::barrier / flare::fiber::Barrier<F>,
// ported in full per SPEC_FULL.md §12 (the distilled spec only mentions it
// in passing). Completion runs on the final arrival of each phase, after
// which the expected count resets and the phase counter advances.
type Barrier struct {
	mu         Mutex
	cv         CondVar
	count      int64
	expected   int64
	phase      int64
	completion func()
}

// ArrivalToken identifies the phase a goroutine arrived in; Wait blocks
// until the barrier's phase counter no longer matches the token.
type ArrivalToken struct{ phase int64 }

// NewBarrier constructs a Barrier for `count` participants. completion may
// be nil, in which case it is treated as a no-op (matching the original's
// detail::empty_completion default).
func NewBarrier(count int64, completion func()) *Barrier {
	if completion == nil {
		completion = func() {}
	}
	return &Barrier{count: count, expected: count, completion: completion}
}

// Arrive decrements the expected count for the current phase by update and
// returns a token identifying the phase arrived in.
func (b *Barrier) Arrive(update int64) ArrivalToken {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arriveLocked(update)
}

func (b *Barrier) arriveLocked(update int64) ArrivalToken {
	if b.count < update {
		panic("fsync: Barrier arrived more times than expected in this phase")
	}
	b.count -= update
	oldPhase := b.phase
	if b.count == 0 {
		b.completion()
		b.phase++
		b.count = b.expected
		b.cv.NotifyAll()
	}
	return ArrivalToken{phase: oldPhase}
}

// Wait blocks until the phase associated with token completes.
func (b *Barrier) Wait(token ArrivalToken) {
	b.mu.Lock()
	for b.phase == token.phase {
		b.cv.Wait(&b.mu)
	}
	b.mu.Unlock()
}

// ArriveAndWait arrives with update=1 then waits for the phase to complete.
func (b *Barrier) ArriveAndWait() {
	b.Wait(b.Arrive(1))
}

// ArriveAndDrop decrements both the current phase's expected count and the
// initial expected count for all subsequent phases by one.
func (b *Barrier) ArriveAndDrop() {
	b.mu.Lock()
	b.expected--
	b.arriveLocked(1)
	b.mu.Unlock()
}
