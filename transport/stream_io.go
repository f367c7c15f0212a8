// Package transport implements the byte-level stream I/O abstraction that
// sits under the event loop and the writing-buffer list: a non-blocking fd
// wrapped in an EINTR-safe, scatter/gather read/write surface.
//
// Grounded on internal/transport/{transport,transport_linux}.go, stripped of
// the multi-backend (io_uring/IOCP/NUMA/DPDK) factory machinery that doesn't
// apply to this core — a plain edge-triggered epoll reactor (eventloop
// package) is the only multiplexer this module targets.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package transport

import (
	"io"

	"github.com/momentics/fiberpc/pool"
	"github.com/momentics/fiberpc/rpcerr"
	"golang.org/x/sys/unix"
)

// AbstractStreamIo is the byte-level I/O contract consumed by the event loop
// and by wbuffer.List. It mirrors
// original_source/flare/io/util/stream_io.h's AbstractStreamIo: readers
// stage scatter buffers via Next/BackUp, writers hand over a ready []byte.
type AbstractStreamIo interface {
	// ReadV fills bufs (scatter) in one syscall; returns bytes read. A
	// zero-length, nil-error result means "no data right now" (EAGAIN on a
	// non-blocking descriptor) — callers should re-arm on the next
	// readability notification rather than spin.
	ReadV(bufs [][]byte) (int64, error)
	// WriteV writes bufs (gather) in one syscall. Short writes are
	// reported by the returned count being less than the sum of len(bufs);
	// callers must resubmit the remainder.
	WriteV(bufs [][]byte) (int64, error)
	// Fd exposes the underlying descriptor for epoll registration.
	Fd() int
	// Close releases the descriptor. Idempotent.
	Close() error
}

// SystemStreamIo is the concrete non-blocking-socket AbstractStreamIo,
// grounded on internal/transport/transport_linux.go's linuxTransport —
// generalized from the fixed 16-buffer Recv/Send batch to caller-supplied
// scatter/gather slices, and with EINTR retried explicitly rather than left
// to the caller.
type SystemStreamIo struct {
	fd     int
	closed bool
}

// NewSystemStreamIo wraps an already-connected, already-non-blocking socket
// descriptor. Ownership of fd transfers to the SystemStreamIo.
func NewSystemStreamIo(fd int) *SystemStreamIo {
	return &SystemStreamIo{fd: fd}
}

func (s *SystemStreamIo) Fd() int { return s.fd }

func (s *SystemStreamIo) ReadV(bufs [][]byte) (int64, error) {
	if s.closed {
		return 0, rpcerr.New(rpcerr.KindIoError, "read on closed stream io")
	}
	for {
		n, err := unix.Readv(s.fd, bufs)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil
		}
		if err != nil {
			return 0, rpcerr.Wrap(rpcerr.KindIoError, err, "readv")
		}
		if n == 0 {
			return 0, rpcerr.Wrap(rpcerr.KindIoError, io.EOF, "peer closed connection")
		}
		return int64(n), nil
	}
}

func (s *SystemStreamIo) WriteV(bufs [][]byte) (int64, error) {
	if s.closed {
		return 0, rpcerr.New(rpcerr.KindIoError, "write on closed stream io")
	}
	for {
		n, err := unix.Writev(s.fd, bufs)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil
		}
		if err != nil {
			return int64(n), rpcerr.Wrap(rpcerr.KindIoError, err, "writev")
		}
		return int64(n), nil
	}
}

// Write satisfies wbuffer.Writer directly (single-buffer convenience over
// WriteV).
func (s *SystemStreamIo) Write(p []byte) (int, error) {
	n, err := s.WriteV([][]byte{p})
	return int(n), err
}

func (s *SystemStreamIo) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}

// ScatterStage accumulates read bytes into fixed-size chunks and exposes
// them via Next/BackUp, matching the staging discipline
// original_source/flare/io/util/stream_io.h documents for its readers:
// Next hands the caller write-through []byte chunks of chunkSize bytes;
// BackUp trims the most recent Next's chunks to the bytes a ReadV actually
// filled, discarding the unused tail.
type ScatterStage struct {
	chunkSize int
	chunks    [][]byte
	bufs      pool.BytePool
}

// NewScatterStage builds a stage that hands out chunkSize-sized buffers,
// recycled through a pool.BytePool (pool/bytepool.go) instead of a fresh
// allocation on every Next, since a busy connection calls Next once per
// readable event.
func NewScatterStage(chunkSize int) *ScatterStage {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	return &ScatterStage{chunkSize: chunkSize, bufs: pool.NewSimpleBytePool("scatter_stage", 64, chunkSize)}
}

// Next releases the previous round's chunks back to the pool (unless
// BackUp was called for that round), then returns n pooled chunkSize
// buffers ready for ReadV.
func (s *ScatterStage) Next(n int) [][]byte {
	s.release()
	bufs := make([][]byte, n)
	for i := range bufs {
		buf := s.bufs.Get()
		if cap(buf) < s.chunkSize {
			buf = make([]byte, s.chunkSize)
		}
		bufs[i] = buf[:s.chunkSize]
	}
	s.chunks = bufs
	return bufs
}

// release returns every chunk from the last Next back to the pool. BackUp
// clears the stage's record of those chunks, so after a BackUp there is
// nothing to return: chunks whose trimmed views BackUp handed out are not
// recycled and are left to the garbage collector.
func (s *ScatterStage) release() {
	for _, c := range s.chunks {
		s.bufs.Put(c[:cap(c)])
	}
	s.chunks = nil
}

// BackUp trims the staged chunks down to exactly readBytes worth of valid
// data (as reported by a ReadV call against the slices returned by Next),
// discarding the unused tail of the last partially filled chunk.
func (s *ScatterStage) BackUp(readBytes int64) [][]byte {
	var out [][]byte
	remaining := readBytes
	for _, c := range s.chunks {
		if remaining <= 0 {
			break
		}
		take := int64(len(c))
		if take > remaining {
			take = remaining
		}
		out = append(out, c[:take])
		remaining -= take
	}
	s.chunks = nil
	return out
}
