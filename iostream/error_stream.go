// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package iostream

import "time"

// ErrorStreamProvider is a ReaderProvider/WriterProvider that completes both
// operations immediately with a configured error, per
// flare/rpc/internal/error_stream_provider.h. Peek yields the stored error
// repeatedly; Close is a no-op (there is nothing to release).
type ErrorStreamProvider[T any] struct {
	err error
}

// NewErrorStreamProvider constructs a provider that always fails with err.
func NewErrorStreamProvider[T any](err error) *ErrorStreamProvider[T] {
	return &ErrorStreamProvider[T]{err: err}
}

func (e *ErrorStreamProvider[T]) SetExpiration(time.Time) {}

func (e *ErrorStreamProvider[T]) Peek(cb func(T, error)) {
	var zero T
	cb(zero, e.err)
}

func (e *ErrorStreamProvider[T]) Read(cb func(T, error)) {
	var zero T
	cb(zero, e.err)
}

func (e *ErrorStreamProvider[T]) Write(_ T, _ bool, cb func(error)) {
	cb(e.err)
}

func (e *ErrorStreamProvider[T]) Close(cb func(error)) {
	if cb != nil {
		cb(nil)
	}
}
