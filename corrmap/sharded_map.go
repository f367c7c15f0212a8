package corrmap

import (
	"fmt"
	"sync"
)

// kShards mirrors original_source/flare/rpc/internal/sharded_call_map.h's
// ShardedCallMap<T>::kShards: enough shards that per-scheduling-group
// contention on a single OS mutex stays negligible even under heavy
// concurrent RPC fan-out.
const kShards = 16384

type shard[T any] struct {
	mu sync.Mutex
	m  map[uint64]T
}

// ShardedMap is the generic Go rendering of ShardedCallMap<T>: a
// fixed-size array of independently-locked shards, selected by a
// bit-mixing hash of the 64-bit correlation key (conn<<32|rpc, see
// Merge/Split). Each stream call gate constructs and owns its own
// instance (gate.New); no instance is shared between gates.
type ShardedMap[T any] struct {
	shards [kShards]shard[T]
}

// NewShardedMap constructs an empty map with all shards initialized.
func NewShardedMap[T any]() *ShardedMap[T] {
	sm := &ShardedMap[T]{}
	for i := range sm.shards {
		sm.shards[i].m = make(map[uint64]T)
	}
	return sm
}

func index(key uint64) uint64 {
	x := key
	x = ((x >> 16) ^ x) * 0x45d9f3b
	x = ((x >> 16) ^ x) * 0x45d9f3b
	x = (x >> 16) ^ x
	return x % kShards
}

// Insert adds key -> value. Like the original, a duplicate key is a
// programming error (two callers allocated the same correlation id) and is
// treated as fatal rather than silently overwritten or reported as an
// error value, since no RPC path should ever observe it.
func (sm *ShardedMap[T]) Insert(key uint64, value T) {
	s := &sm.shards[index(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.m[key]; exists {
		panic(fmt.Sprintf("corrmap: duplicate correlation id %d", key))
	}
	s.m[key] = value
}

// Remove deletes key if present, returning its value and true, or the zero
// value and false. Used both for normal completion (the response handler
// removes its own slot) and for cancellation racing a timeout — exactly
// one of the two callers observes found == true.
func (sm *ShardedMap[T]) Remove(key uint64) (T, bool) {
	s := &sm.shards[index(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}
	return v, ok
}

// Get looks up key without removing it.
func (sm *ShardedMap[T]) Get(key uint64) (T, bool) {
	s := &sm.shards[index(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

// ForEach visits every entry across every shard, locking one shard at a
// time (never the whole map at once). As in the original, f must not
// mutate the map — inserting or removing from within f on the same shard
// currently locked would deadlock, and on another shard would race the
// visitation order.
func (sm *ShardedMap[T]) ForEach(f func(key uint64, value T)) {
	for i := range sm.shards {
		s := &sm.shards[i]
		s.mu.Lock()
		for k, v := range s.m {
			f(k, v)
		}
		s.mu.Unlock()
	}
}

// Drain removes every entry across every shard and invokes f once per
// removed entry, outside any shard lock. Unlike ForEach, f here runs
// against entries already unlinked from the map, so a racing Remove/Insert
// for the same key from another goroutine (a timeout or response arriving
// concurrently with Stop/fail) can observe at most one of the two sides
// win — exactly the same single-winner guarantee Remove gives a single
// key, extended to every outstanding key at once.
func (sm *ShardedMap[T]) Drain(f func(key uint64, value T)) {
	for i := range sm.shards {
		s := &sm.shards[i]
		s.mu.Lock()
		drained := make(map[uint64]T, len(s.m))
		for k, v := range s.m {
			drained[k] = v
			delete(s.m, k)
		}
		s.mu.Unlock()
		for k, v := range drained {
			f(k, v)
		}
	}
}

// Len returns the total number of entries across all shards. Intended for
// diagnostics/tests only: the result is stale the instant any shard
// unlocks.
func (sm *ShardedMap[T]) Len() int {
	n := 0
	for i := range sm.shards {
		s := &sm.shards[i]
		s.mu.Lock()
		n += len(s.m)
		s.mu.Unlock()
	}
	return n
}
