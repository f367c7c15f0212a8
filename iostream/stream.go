// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package iostream

import (
	"time"

	"github.com/momentics/fiberpc/future"
)

// AsyncStreamReader adapts a ReaderProvider[T] into the Future-based surface
// used by the gate/stream-adaptor layer, per spec.md §4.3's
// AsyncStreamReader/AsyncStreamWriter pair.
type AsyncStreamReader[T any] struct {
	provider ReaderProvider[T]
}

func NewAsyncStreamReader[T any](p ReaderProvider[T]) *AsyncStreamReader[T] {
	return &AsyncStreamReader[T]{provider: p}
}

func (r *AsyncStreamReader[T]) Peek() *future.Future[T] {
	f := future.NewFuture[T]()
	r.provider.Peek(func(msg T, err error) {
		if err != nil {
			f.SetError(err)
			return
		}
		f.Set(msg)
	})
	return f
}

func (r *AsyncStreamReader[T]) Read() *future.Future[T] {
	f := future.NewFuture[T]()
	r.provider.Read(func(msg T, err error) {
		if err != nil {
			f.SetError(err)
			return
		}
		f.Set(msg)
	})
	return f
}

func (r *AsyncStreamReader[T]) SetExpiration(deadline time.Time) { r.provider.SetExpiration(deadline) }

func (r *AsyncStreamReader[T]) Close() *future.Future[struct{}] {
	f := future.NewFuture[struct{}]()
	r.provider.Close(func(err error) {
		if err != nil {
			f.SetError(err)
			return
		}
		f.Set(struct{}{})
	})
	return f
}

// AsyncStreamWriter adapts a WriterProvider[T] into the Future-based surface.
type AsyncStreamWriter[T any] struct {
	provider WriterProvider[T]
}

func NewAsyncStreamWriter[T any](p WriterProvider[T]) *AsyncStreamWriter[T] {
	return &AsyncStreamWriter[T]{provider: p}
}

func (w *AsyncStreamWriter[T]) Write(msg T, last bool) *future.Future[struct{}] {
	f := future.NewFuture[struct{}]()
	w.provider.Write(msg, last, func(err error) {
		if err != nil {
			f.SetError(err)
			return
		}
		f.Set(struct{}{})
	})
	return f
}

func (w *AsyncStreamWriter[T]) SetExpiration(deadline time.Time) { w.provider.SetExpiration(deadline) }

func (w *AsyncStreamWriter[T]) Close() *future.Future[struct{}] {
	f := future.NewFuture[struct{}]()
	w.provider.Close(func(err error) {
		if err != nil {
			f.SetError(err)
			return
		}
		f.Set(struct{}{})
	})
	return f
}

// StreamReader is the blocking surface used by callers that prefer an
// ordinary goroutine-blocks-on-channel style over callbacks. It is the
// fiber-free analogue of flare/rpc/stream_reader_writer.h's StreamReader.
type StreamReader[T any] struct {
	async   *AsyncStreamReader[T]
	timeout time.Duration
}

// NewStreamReader wraps p with a default per-call timeout; timeout<=0 means
// block indefinitely.
func NewStreamReader[T any](p ReaderProvider[T], timeout time.Duration) *StreamReader[T] {
	return &StreamReader[T]{async: NewAsyncStreamReader(p), timeout: timeout}
}

func (r *StreamReader[T]) Peek() (T, error) { return future.BlockOn(r.async.Peek(), r.timeout) }
func (r *StreamReader[T]) Read() (T, error) { return future.BlockOn(r.async.Read(), r.timeout) }
func (r *StreamReader[T]) SetExpiration(deadline time.Time) { r.async.SetExpiration(deadline) }
func (r *StreamReader[T]) Close() error {
	_, err := future.BlockOn(r.async.Close(), r.timeout)
	return err
}

// StreamWriter is the blocking counterpart of StreamReader.
type StreamWriter[T any] struct {
	async   *AsyncStreamWriter[T]
	timeout time.Duration
}

func NewStreamWriter[T any](p WriterProvider[T], timeout time.Duration) *StreamWriter[T] {
	return &StreamWriter[T]{async: NewAsyncStreamWriter(p), timeout: timeout}
}

func (w *StreamWriter[T]) Write(msg T, last bool) error {
	_, err := future.BlockOn(w.async.Write(msg, last), w.timeout)
	return err
}
func (w *StreamWriter[T]) SetExpiration(deadline time.Time) { w.async.SetExpiration(deadline) }
func (w *StreamWriter[T]) Close() error {
	_, err := future.BlockOn(w.async.Close(), w.timeout)
	return err
}
