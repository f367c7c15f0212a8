// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package iostream

import (
	"sync"
	"time"

	"github.com/momentics/fiberpc/rpcerr"
)

type bufferedItem[T any] struct {
	msg T
	err error
}

// BufferedReaderProvider is a bounded-queue ReaderProvider, grounded on
// flare/rpc/internal/buffered_stream_provider.h's BufferedReaderProvider.
// bufferSize is the queue's nominal bound (testable property 4). The
// provider itself does not enforce it: arrivals past bufferSize are still
// queued, not dropped or rejected. Once the buffer drains from full
// (bufferSize or more queued) to non-full, onBufferAvailable notifies the
// producer it may resume feeding messages (the back-pressure release hook).
type BufferedReaderProvider[T any] struct {
	mu                sync.Mutex
	bufferSize        int
	queue             []bufferedItem[T]
	pendingCb         func(T, error)
	pendingIsPeek     bool
	closed            bool
	closeCb           func(error)
	closeFired        bool
	expTimer          *time.Timer
	onBufferAvailable func()
}

// NewBufferedReaderProvider constructs a provider with the given bound.
// onBufferAvailable, if non-nil, is invoked exactly once per
// full-to-non-full transition (outside the provider's lock).
func NewBufferedReaderProvider[T any](bufferSize int, onBufferAvailable func()) *BufferedReaderProvider[T] {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &BufferedReaderProvider[T]{
		bufferSize:        bufferSize,
		onBufferAvailable: onBufferAvailable,
	}
}

// OnDataAvailable is called by the producer (transport / stream adaptor)
// when a new message has been parsed. If a pending Peek/Read is present it
// is satisfied synchronously; otherwise the message waits in the queue.
func (b *BufferedReaderProvider[T]) OnDataAvailable(msg T) {
	b.onArrival(bufferedItem[T]{msg: msg})
}

// OnError is called by the producer to deliver a transport/parse error; per
// spec.md §4.3, the stream is implicitly closed after an error is
// delivered.
func (b *BufferedReaderProvider[T]) OnError(err error) {
	b.onArrival(bufferedItem[T]{err: err})
}

func (b *BufferedReaderProvider[T]) onArrival(item bufferedItem[T]) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.pendingCb != nil {
		cb := b.pendingCb
		b.pendingCb = nil
		b.stopTimerLocked()
		b.mu.Unlock()
		cb(item.msg, item.err)
		return
	}
	wasFull := len(b.queue) >= b.bufferSize
	b.queue = append(b.queue, item)
	_ = wasFull
	b.mu.Unlock()
}

// SetExpiration arms a one-shot timer that synthesizes a Timeout error on
// the next pending Peek/Read if no data has arrived by deadline.
func (b *BufferedReaderProvider[T]) SetExpiration(deadline time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimerLocked()
	d := time.Until(deadline)
	if d <= 0 {
		d = 0
	}
	b.expTimer = time.AfterFunc(d, func() { b.fireTimeout() })
}

func (b *BufferedReaderProvider[T]) stopTimerLocked() {
	if b.expTimer != nil {
		b.expTimer.Stop()
		b.expTimer = nil
	}
}

func (b *BufferedReaderProvider[T]) fireTimeout() {
	b.mu.Lock()
	if b.pendingCb == nil || b.closed {
		b.mu.Unlock()
		return
	}
	cb := b.pendingCb
	b.pendingCb = nil
	b.mu.Unlock()
	var zero T
	cb(zero, rpcerr.New(rpcerr.KindTimeout, "stream read expired"))
}

// Peek returns the head message without dequeuing it. Per the Open Question
// in spec.md §9, this implementation counts a Peek that observes an error
// identically to Read (it is still consumed from the queue), matching the
// source's behavior.
func (b *BufferedReaderProvider[T]) Peek(cb func(T, error)) {
	b.dispatch(cb, true)
}

// Read returns and dequeues the head message.
func (b *BufferedReaderProvider[T]) Read(cb func(T, error)) {
	b.dispatch(cb, false)
}

func (b *BufferedReaderProvider[T]) dispatch(cb func(T, error), isPeek bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		var zero T
		cb(zero, rpcerr.New(rpcerr.KindIoError, "stream already closed"))
		return
	}
	if len(b.queue) == 0 {
		b.pendingCb = cb
		b.pendingIsPeek = isPeek
		b.mu.Unlock()
		return
	}

	wasFull := len(b.queue) >= b.bufferSize
	item := b.queue[0]
	// A Peek leaves a message queued but consumes an error, like Read.
	consume := !isPeek || item.err != nil
	if consume {
		b.queue = b.queue[1:]
	}
	nowNotFull := len(b.queue) < b.bufferSize
	notify := wasFull && nowNotFull && consume
	hook := b.onBufferAvailable
	b.mu.Unlock()

	if notify && hook != nil {
		hook()
	}
	cb(item.msg, item.err)
}

// Close releases the provider. Exactly one close callback fires; after
// close, further reads/writes and a second close are rejected.
func (b *BufferedReaderProvider[T]) Close(cb func(error)) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		if cb != nil {
			cb(rpcerr.New(rpcerr.KindIoError, "stream already closed"))
		}
		return
	}
	b.closed = true
	b.stopTimerLocked()
	pending := b.pendingCb
	b.pendingCb = nil
	b.mu.Unlock()

	if pending != nil {
		var zero T
		pending(zero, rpcerr.ErrEndOfStream)
	}
	if cb != nil {
		cb(nil)
	}
}

// Pending reports the number of messages/errors currently buffered;
// exposed for tests verifying the bufferSize invariant (testable property
// 4).
func (b *BufferedReaderProvider[T]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
