// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package fsync

import "sync/atomic"

// maxReaders mirrors flare::fiber::SharedMutex::kMaxReaders (2^30-1 in the
// original; spec.md §4.2 quotes 2^30-1 too).
const maxReaders = 0x3fff_ffff

// SharedMutex is a reader-biased shared mutex, ported from
// flare/fiber/shared_mutex.h: a single atomic quota starting at maxReaders.
// Readers fast-path fetch_sub(1); if the result underflows (quota was
// already non-positive because a writer is waiting or holds the lock), the
// reader parks. A writer seizes the lock by subtracting maxReaders from the
// quota; if readers are still active it waits on a condition variable for
// them to signal their exit. Writer/writer contention is serialized by a
// separate mutex so at most one writer ever waits on the quota at a time.
//
// Deliberate policy carried from the original: once a writer has arrived,
// the quota is <= 0, so new readers always queue — existing readers may
// only delay (never indefinitely starve) a waiting writer. This favors
// writer-rare workloads, per spec.md §4.2.
type SharedMutex struct {
	quota atomic.Int32

	wakeupLock    Mutex
	wakeupCV      CondVar
	exitedReaders int
	grantedReaders int

	writerLock Mutex
}

// NewSharedMutex constructs a SharedMutex with full reader quota.
func NewSharedMutex() *SharedMutex {
	sm := &SharedMutex{}
	sm.quota.Store(maxReaders)
	return sm
}

// LockShared acquires the mutex in shared (reader) mode.
func (m *SharedMutex) LockShared() {
	was := m.quota.Add(-1) + 1 // fetch_sub semantics: value observed before decrement
	if was > 0 {
		return
	}
	m.waitForRead()
}

// TryLockShared attempts to acquire shared mode without blocking.
func (m *SharedMutex) TryLockShared() bool {
	for {
		was := m.quota.Load()
		if was <= 0 {
			return false
		}
		if m.quota.CompareAndSwap(was, was-1) {
			return true
		}
	}
}

// UnlockShared releases shared (reader) mode.
func (m *SharedMutex) UnlockShared() {
	was := m.quota.Add(1) - 1
	if was > 0 {
		return
	}
	m.wakeupWriter()
}

// Lock acquires the mutex in exclusive (writer) mode.
func (m *SharedMutex) Lock() {
	m.writerLock.Lock() // held until Unlock

	was := m.quota.Add(-maxReaders) + maxReaders
	remaining := int(maxReaders - was) // readers still outstanding (0 if none)
	if remaining <= 0 {
		return
	}

	m.wakeupLock.Lock()
	for m.exitedReaders < remaining {
		m.wakeupCV.Wait(&m.wakeupLock)
	}
	m.exitedReaders -= remaining
	m.wakeupLock.Unlock()
}

// TryLock attempts to acquire exclusive mode without blocking; fails if any
// reader currently holds the lock.
func (m *SharedMutex) TryLock() bool {
	if !m.writerLock.TryLock() {
		return false
	}
	if !m.quota.CompareAndSwap(maxReaders, 0) {
		m.writerLock.Unlock()
		return false
	}
	return true
}

// Unlock releases exclusive (writer) mode, restoring full reader quota and
// granting any parked readers permission to proceed.
func (m *SharedMutex) Unlock() {
	was := m.quota.Add(maxReaders) - maxReaders
	if was < 0 {
		// -was readers parked in LockShared while the writer held the lock.
		m.wakeupLock.Lock()
		m.grantedReaders += int(-was)
		m.wakeupLock.Unlock()
		m.wakeupCV.NotifyAll()
	}
	m.writerLock.Unlock()
}

func (m *SharedMutex) waitForRead() {
	m.wakeupLock.Lock()
	for m.grantedReaders == 0 {
		m.wakeupCV.Wait(&m.wakeupLock)
	}
	m.grantedReaders--
	m.wakeupLock.Unlock()
}

func (m *SharedMutex) wakeupWriter() {
	m.wakeupLock.Lock()
	m.exitedReaders++
	m.wakeupLock.Unlock()
	m.wakeupCV.NotifyAll()
}
