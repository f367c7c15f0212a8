// Package iostream implements the stream abstractions of spec.md §4.3: two
// provider contracts (ReaderProvider/WriterProvider) with three
// implementations (buffered, error, and the async/blocking wrappers layered
// on top). Grounded on flare/rpc/internal/buffered_stream_provider.h and
// error_stream_provider.h.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package iostream

import "time"

// ReaderProvider is the callback-based read contract for one message type.
// At most one outstanding Peek or Read call is permitted at a time; errors
// surface through the callback and implicitly close the stream (the caller
// must still invoke Close exactly once on explicit shutdown).
type ReaderProvider[T any] interface {
	SetExpiration(deadline time.Time)
	Peek(cb func(T, error))
	Read(cb func(T, error))
	Close(cb func(error))
}

// WriterProvider is the callback-based write contract. At most one
// outstanding call is permitted. Write(_, last=true, _) implies Close; the
// completion of the last write fires only after all buffered writes have
// flushed.
type WriterProvider[T any] interface {
	SetExpiration(deadline time.Time)
	Write(msg T, last bool, cb func(error))
	Close(cb func(error))
}
