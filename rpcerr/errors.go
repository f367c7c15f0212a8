// Package rpcerr defines the error taxonomy shared by every subsystem in the
// async I/O and call-orchestration core: the gate, the gate pool, the stream
// I/O adaptor, and the external-collaborator façades (httpfacade, cosfacade).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package rpcerr

import (
	"github.com/pkg/errors"
)

// Kind classifies an error into one of the taxonomy buckets from the spec.
type Kind int

const (
	// KindUnknown is the zero value; never returned by this package.
	KindUnknown Kind = iota
	// KindIoError is a transport read/write failure, remote close, or
	// framing error on the gate.
	KindIoError
	// KindParseError is a protocol parser rejecting a received frame.
	KindParseError
	// KindTimeout is a per-call or per-stream deadline elapsing.
	KindTimeout
	// KindEndOfStream is the normal termination of a stream. Treated as a
	// success outcome by callers, never wrapped with Wrap.
	KindEndOfStream
	// KindGateClosing is an RPC outstanding at gate shutdown.
	KindGateClosing
	// KindNotOpened is a client used before Open succeeded (HTTP/COS-style
	// façades).
	KindNotOpened
)

func (k Kind) String() string {
	switch k {
	case KindIoError:
		return "IoError"
	case KindParseError:
		return "ParseError"
	case KindTimeout:
		return "Timeout"
	case KindEndOfStream:
		return "EndOfStream"
	case KindGateClosing:
		return "GateClosing"
	case KindNotOpened:
		return "NotOpened"
	default:
		return "Unknown"
	}
}

// Error is a taxonomy-tagged error. Callers type-switch or use Is/As from the
// standard errors package (pkg/errors.Cause unwraps to the same).
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.Kind.String() + ": " + e.msg + ": " + e.err.Error()
	}
	return e.Kind.String() + ": " + e.msg
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.err }

// New builds a taxonomy error with no underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Wrap attaches a taxonomy kind to an underlying cause, preserving the
// pkg/errors stack trace of the original.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, msg: msg, err: errors.Wrap(err, msg)}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var te *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			te = e
			if te.Kind == kind {
				return true
			}
			err = errors.Unwrap(err)
			continue
		}
		err = errors.Unwrap(err)
	}
	return false
}

var (
	// ErrEndOfStream is the canonical end-of-stream sentinel; compare with
	// errors.Is.
	ErrEndOfStream = New(KindEndOfStream, "end of stream")
	// ErrGateClosing is returned for every RPC outstanding when a gate is
	// stopped.
	ErrGateClosing = New(KindGateClosing, "gate is closing")
	// ErrNotOpened is returned by façades used before Open succeeds.
	ErrNotOpened = New(KindNotOpened, "client not opened")
)
