// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package iostream

import (
	"sync"
	"time"

	"github.com/momentics/fiberpc/rpcerr"
)

type parkedWrite[T any] struct {
	msg  T
	last bool
	cb   func(error)
}

// BufferedWriterProvider is a bounded-window WriterProvider, grounded on
// flare/rpc/internal/buffered_stream_provider.h's BufferedWriterProvider.
// While pendingWrites < bufferSize, Write completes synchronously with
// success; at capacity it parks the caller until the transport reports
// completion via OnWriteCompletion. A last=true write's own completion
// callback is held back until pendingWrites drains to zero (or the stream
// is declared broken); Close is deferred the same way.
type BufferedWriterProvider[T any] struct {
	mu            sync.Mutex
	bufferSize    int
	pendingWrites int
	writeFn       func(T) bool
	broken        bool
	closed        bool
	lastCb        func(error)
	closeCb       func(error)
	parked        []parkedWrite[T]
	expTimer      *time.Timer
}

// NewBufferedWriterProvider constructs a provider with the given bound.
// writeFn schedules the message onto the transport and returns false if
// scheduling itself failed (treated as an immediate broken-stream signal).
func NewBufferedWriterProvider[T any](bufferSize int, writeFn func(T) bool) *BufferedWriterProvider[T] {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &BufferedWriterProvider[T]{bufferSize: bufferSize, writeFn: writeFn}
}

func (w *BufferedWriterProvider[T]) SetExpiration(deadline time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.expTimer != nil {
		w.expTimer.Stop()
	}
	d := time.Until(deadline)
	if d <= 0 {
		d = 0
	}
	w.expTimer = time.AfterFunc(d, func() { w.Break() })
}

// Write schedules msg for writing. last=true marks this the final message:
// its callback fires only once all buffered writes (including this one)
// have flushed.
func (w *BufferedWriterProvider[T]) Write(msg T, last bool, cb func(error)) {
	w.mu.Lock()
	if w.closed || w.broken {
		err := rpcerr.New(rpcerr.KindIoError, "write on closed or broken stream")
		w.mu.Unlock()
		if cb != nil {
			cb(err)
		}
		return
	}

	if w.pendingWrites < w.bufferSize {
		w.pendingWrites++
		ok := true
		if w.writeFn != nil {
			ok = w.writeFn(msg)
		}
		if last {
			w.lastCb = cb
		}
		w.mu.Unlock()

		if !ok {
			w.Break()
			return
		}
		if !last && cb != nil {
			cb(nil)
		}
		if last {
			w.maybeFireLast()
		}
		return
	}

	w.parked = append(w.parked, parkedWrite[T]{msg: msg, last: last, cb: cb})
	w.mu.Unlock()
}

// OnWriteCompletion is invoked by the transport once a previously scheduled
// write has actually flushed. ok=false marks the stream broken and fails
// every parked and last-write callback.
func (w *BufferedWriterProvider[T]) OnWriteCompletion(ok bool) {
	if !ok {
		w.Break()
		return
	}

	w.mu.Lock()
	if w.pendingWrites > 0 {
		w.pendingWrites--
	}
	var next *parkedWrite[T]
	if len(w.parked) > 0 {
		p := w.parked[0]
		w.parked = w.parked[1:]
		next = &p
	}
	w.mu.Unlock()

	if next != nil {
		w.Write(next.msg, next.last, next.cb)
		return
	}
	w.maybeFireLast()
	w.maybeFireClose()
}

func (w *BufferedWriterProvider[T]) maybeFireLast() {
	w.mu.Lock()
	if w.lastCb == nil || w.pendingWrites != 0 {
		w.mu.Unlock()
		return
	}
	cb := w.lastCb
	w.lastCb = nil
	w.mu.Unlock()
	cb(nil)
}

func (w *BufferedWriterProvider[T]) maybeFireClose() {
	w.mu.Lock()
	if w.closeCb == nil || w.pendingWrites != 0 {
		w.mu.Unlock()
		return
	}
	cb := w.closeCb
	w.closeCb = nil
	w.mu.Unlock()
	cb(nil)
}

// Break declares the stream broken: every parked write and the held-back
// last-write/close callbacks fail with IoError exactly once.
func (w *BufferedWriterProvider[T]) Break() {
	w.mu.Lock()
	if w.broken {
		w.mu.Unlock()
		return
	}
	w.broken = true
	if w.expTimer != nil {
		w.expTimer.Stop()
		w.expTimer = nil
	}
	parked := w.parked
	w.parked = nil
	lastCb := w.lastCb
	w.lastCb = nil
	closeCb := w.closeCb
	w.closeCb = nil
	w.mu.Unlock()

	err := rpcerr.New(rpcerr.KindIoError, "stream broken")
	for _, p := range parked {
		if p.cb != nil {
			p.cb(err)
		}
	}
	if lastCb != nil {
		lastCb(err)
	}
	if closeCb != nil {
		closeCb(err)
	}
}

// Close is deferred until pendingWrites drains to zero (or the stream is
// declared broken), matching the last-write deferral rule.
func (w *BufferedWriterProvider[T]) Close(cb func(error)) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		if cb != nil {
			cb(rpcerr.New(rpcerr.KindIoError, "stream already closed"))
		}
		return
	}
	w.closed = true
	if w.broken {
		w.mu.Unlock()
		if cb != nil {
			cb(rpcerr.New(rpcerr.KindIoError, "stream broken"))
		}
		return
	}
	if w.pendingWrites == 0 {
		w.mu.Unlock()
		if cb != nil {
			cb(nil)
		}
		return
	}
	w.closeCb = cb
	w.mu.Unlock()
}

// Pending reports the number of writes still outstanding; exposed for
// tests.
func (w *BufferedWriterProvider[T]) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pendingWrites
}
