// Package gate implements the stream call gate of spec.md §4.8: one
// connection, one protocol instance, a fast-call correlation slot and a
// stream-call slot, wired to an edge-triggered event loop descriptor and a
// writing buffer list.
//
// Grounded on original_source/flare/rpc/rpc_client_controller.cc and
// stream_call_gate.h for the FastCall/StreamCall/CancelFastCall contract,
// and on corrmap.ShardedMap (itself grounded on sharded_call_map.h) for the
// outstanding-call bookkeeping.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package gate

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/momentics/fiberpc/clock"
	"github.com/momentics/fiberpc/corrmap"
	"github.com/momentics/fiberpc/eventloop"
	"github.com/momentics/fiberpc/fsync"
	"github.com/momentics/fiberpc/future"
	"github.com/momentics/fiberpc/internal/workqueue"
	"github.com/momentics/fiberpc/iostream"
	"github.com/momentics/fiberpc/metrics"
	"github.com/momentics/fiberpc/pool"
	"github.com/momentics/fiberpc/protocol"
	"github.com/momentics/fiberpc/rpcerr"
	"github.com/momentics/fiberpc/streamadaptor"
	"github.com/momentics/fiberpc/transport"
	"github.com/momentics/fiberpc/wbuffer"
)

// Each gate owns its own correlation map and rpc id allocator rather than
// sharing a scheduling-group-wide singleton: Stop needs to enumerate
// exactly the outstanding calls belonging to this one connection, which a
// truly shared map would require an extra per-connection index to support
// anyway. See DESIGN.md for the full rationale.

type pendingFastCall[F protocol.Frame] struct {
	future       *future.Future[F]
	timer        *time.Timer
	startedNanos int64
}

type streamContext[F protocol.Frame] struct {
	adaptor *streamadaptor.Adaptor[F]
}

// StreamCallGate is one pooled connection, per spec.md §4.8.
type StreamCallGate[F protocol.Frame] struct {
	io    transport.AbstractStreamIo
	proto protocol.Protocol[F]
	loop  *eventloop.Loop
	desc  *eventloop.Descriptor

	connCorrelationID uint32
	rpcIDs            *corrmap.RPCIDAllocator

	stateMu fsync.Mutex // guards the healthy/stopping transition below
	closed  bool

	fastCalls *corrmap.ShardedMap[*pendingFastCall[F]]

	streamMu sync.Mutex
	streams  map[uint32]*streamContext[F]
	reaper   *workqueue.Queue // lazily started on first stream's cleanup

	writeBuf *wbuffer.List
	recvBuf  []byte

	stopWG sync.WaitGroup

	latencySampler Sampler
	log            hclog.Logger

	// OnUnhealthy, if set, is invoked exactly once when the gate transitions
	// out of healthy (transport error, protocol desync, or Stop). The pools
	// in gatepool do not set it; they check Healthy instead.
	OnUnhealthy func()
}

// New wires a StreamCallGate around an already-connected stream io,
// attaching its descriptor (read-interest only; write-interest is enabled
// on demand) to loop. A nil logger defaults to hclog.NewNullLogger().
func New[F protocol.Frame](io transport.AbstractStreamIo, proto protocol.Protocol[F], loop *eventloop.Loop, connCorrelationID uint32, logger hclog.Logger) (*StreamCallGate[F], error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	g := &StreamCallGate[F]{
		io:                io,
		proto:             proto,
		loop:              loop,
		connCorrelationID: connCorrelationID,
		rpcIDs:            corrmap.NewRPCIDAllocator(),
		fastCalls:         corrmap.NewShardedMap[*pendingFastCall[F]](),
		streams:           make(map[uint32]*streamContext[F]),
		writeBuf:          wbuffer.NewList(),
		latencySampler:    NewLatencySampler(latencySampleIntervalNanos),
		log:               logger.Named("gate").With("conn_correlation_id", connCorrelationID),
	}
	g.desc = eventloop.NewDescriptor(io.Fd(), eventloop.EventRead, g.onEvents)
	if err := loop.AttachDescriptor(g.desc, true); err != nil {
		return nil, err
	}
	return g, nil
}

// Healthy reports whether the gate still accepts new fast/stream calls.
func (g *StreamCallGate[F]) Healthy() bool {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	return !g.closed
}

func (g *StreamCallGate[F]) markUnhealthy() {
	g.stateMu.Lock()
	already := g.closed
	g.closed = true
	g.stateMu.Unlock()
	if !already && g.OnUnhealthy != nil {
		g.OnUnhealthy()
	}
}

// FastCall allocates an rpc correlation id, hands it to build so the
// caller can embed it in the request frame, serializes and enqueues the
// frame, and arranges for the returned future to resolve with the
// response (or a Timeout/IoError/GateClosing failure).
func (g *StreamCallGate[F]) FastCall(build func(rpcID uint32) F, deadline time.Time) *future.Future[F] {
	f := future.NewFuture[F]()
	if !g.Healthy() {
		f.SetError(rpcerr.ErrGateClosing)
		return f
	}

	rpcID := g.rpcIDs.Next()
	req := build(rpcID)
	key := corrmap.Merge(g.connCorrelationID, rpcID)

	pc := &pendingFastCall[F]{future: f, startedNanos: clock.CoarseSteadyNanos()}
	g.fastCalls.Insert(key, pc)
	pc.timer = time.AfterFunc(time.Until(deadline), func() { g.onFastCallTimeout(key) })

	payload, err := g.proto.Serialize(req)
	if err != nil {
		if _, ok := g.fastCalls.Remove(key); ok {
			pc.timer.Stop()
		}
		f.SetError(rpcerr.Wrap(rpcerr.KindParseError, err, "serialize fast call request"))
		return f
	}

	wasEmpty := g.writeBuf.Append(payload, uint64(rpcID))
	if wasEmpty {
		g.kickWrite()
	}
	return f
}

func (g *StreamCallGate[F]) onFastCallTimeout(key uint64) {
	pc, ok := g.fastCalls.Remove(key)
	if !ok {
		// response already arrived (or the call was canceled) and won the
		// race to remove the slot first.
		return
	}
	pc.future.SetError(rpcerr.New(rpcerr.KindTimeout, "fast call timed out"))
	metrics.FastCallsTotal.WithLabelValues("timeout").Inc()
}

// CancelFastCall atomically removes the outstanding call's bookkeeping so
// a late timeout or response is silently dropped. Returns false if the
// call already completed or was already canceled.
func (g *StreamCallGate[F]) CancelFastCall(rpcID uint32) bool {
	key := corrmap.Merge(g.connCorrelationID, rpcID)
	pc, ok := g.fastCalls.Remove(key)
	if !ok {
		return false
	}
	pc.timer.Stop()
	return true
}

// StreamCall allocates a correlation id, wires a stream I/O adaptor under
// it, and returns blocking reader/writer handles over it. writeTimeout
// bounds each individual Write/Read call (<=0 blocks indefinitely).
func (g *StreamCallGate[F]) StreamCall(writeTimeout time.Duration) (*iostream.StreamReader[F], *iostream.StreamWriter[F], uint32, error) {
	if !g.Healthy() {
		return nil, nil, 0, rpcerr.ErrGateClosing
	}

	rpcID := g.rpcIDs.Next()
	sc := &streamContext[F]{}
	sc.adaptor = streamadaptor.New[F](streamBufferSize, streamadaptor.Ops[F]{
		Write: func(msg *F) bool {
			payload, err := g.proto.Serialize(*msg)
			if err != nil {
				return false
			}
			wasEmpty := g.writeBuf.Append(payload, uint64(rpcID))
			if wasEmpty {
				g.kickWrite()
			}
			return true
		},
		OnClose: func() {
			g.streamMu.Lock()
			delete(g.streams, rpcID)
			g.streamMu.Unlock()
		},
		OnCleanup: func() {
			g.ensureReaper().Submit(func() {})
		},
	})

	g.streamMu.Lock()
	g.streams[rpcID] = sc
	g.streamMu.Unlock()

	reader := iostream.NewStreamReader[F](sc.adaptor.Reader(), writeTimeout)
	writer := iostream.NewStreamWriter[F](sc.adaptor.Writer(), writeTimeout)
	return reader, writer, rpcID, nil
}

const streamBufferSize = 64

// latencySampleIntervalNanos bounds FastCallLatencySeconds.Observe to at
// most once per this interval per gate, per sampler.h's rationale: a busy
// connection's per-call histogram observation is redundant far more often
// than it is informative.
const latencySampleIntervalNanos = int64(10 * time.Millisecond)

// ensureReaper lazily starts the per-gate stream-cleanup work queue, per
// spec.md §4.8 ("OnStreamCleanup posted to a lazily-initialized per-gate
// reaper work queue").
func (g *StreamCallGate[F]) ensureReaper() *workqueue.Queue {
	g.streamMu.Lock()
	defer g.streamMu.Unlock()
	if g.reaper == nil {
		g.reaper = workqueue.New()
	}
	return g.reaper
}

func (g *StreamCallGate[F]) onEvents(mask eventloop.EventMask, _ int64) {
	if mask&eventloop.EventError != 0 {
		g.fail(rpcerr.New(rpcerr.KindIoError, "connection error"))
		return
	}
	if mask&eventloop.EventRead != 0 {
		g.onReadable()
	}
	if mask&eventloop.EventWrite != 0 {
		g.onWritable()
	}
}

// scratchPool recycles the 64KiB read buffer onReadable stages ReadV
// into, since a busy connection calls onReadable once per readable event.
var scratchPool = pool.NewSyncPool("gate_read_scratch", func() []byte { return make([]byte, 64*1024) })

func (g *StreamCallGate[F]) onReadable() {
	scratch := scratchPool.Get()
	defer scratchPool.Put(scratch)
	for {
		n, err := g.io.ReadV([][]byte{scratch})
		if err != nil {
			g.fail(err)
			return
		}
		if n == 0 {
			return
		}
		g.recvBuf = append(g.recvBuf, scratch[:n]...)
		if !g.drainParsed() {
			return
		}
	}
}

func (g *StreamCallGate[F]) drainParsed() bool {
	for {
		frame, consumed, ok, err := g.proto.TryParse(g.recvBuf)
		if err != nil {
			g.fail(rpcerr.Wrap(rpcerr.KindParseError, err, "parse frame"))
			return false
		}
		if !ok {
			return true
		}
		g.recvBuf = g.recvBuf[consumed:]
		g.dispatch(frame)
	}
}

func (g *StreamCallGate[F]) dispatch(frame F) {
	if frame.IsStream() {
		g.streamMu.Lock()
		sc, ok := g.streams[frame.CorrelationID()]
		g.streamMu.Unlock()
		if !ok {
			return
		}
		// Connection-level reads are never suspended by a single stream's
		// back-pressure: one fd multiplexes every stream and fast call on
		// this gate, and pausing socket reads would starve unrelated
		// streams too. Back-pressure is enforced purely by the adaptor's
		// bounded internal buffer; NotifyRead's suspend signal is
		// therefore intentionally discarded here.
		sc.adaptor.NotifyRead(frame)
		return
	}
	key := corrmap.Merge(g.connCorrelationID, frame.CorrelationID())
	pc, ok := g.fastCalls.Remove(key)
	if !ok {
		return
	}
	pc.timer.Stop()
	pc.future.Set(frame)
	metrics.FastCallsTotal.WithLabelValues("ok").Inc()
	if g.latencySampler.Sample() {
		elapsed := clock.CoarseSteadyNanos() - pc.startedNanos
		if elapsed > 0 {
			metrics.FastCallLatencySeconds.Observe(float64(elapsed) / float64(time.Second))
		}
	}
}

// ioWriter adapts AbstractStreamIo's scatter/gather WriteV to the
// single-buffer wbuffer.Writer contract FlushTo drains through.
type ioWriter struct{ io transport.AbstractStreamIo }

func (w ioWriter) Write(p []byte) (int, error) {
	n, err := w.io.WriteV([][]byte{p})
	return int(n), err
}

func (g *StreamCallGate[F]) onWritable() {
	_, flushed, emptied, _, err := g.writeBuf.FlushTo(ioWriter{g.io}, 1<<20)
	if err != nil {
		g.fail(err)
		return
	}
	for _, fl := range flushed {
		g.streamMu.Lock()
		sc, ok := g.streams[uint32(fl.Ctx)]
		g.streamMu.Unlock()
		if ok {
			sc.adaptor.NotifyWriteCompletion()
		}
	}
	if emptied {
		g.desc.Mask = eventloop.EventRead
		g.loop.RearmDescriptor(g.desc)
	}
}

func (g *StreamCallGate[F]) kickWrite() {
	g.loop.AddTask(func() {
		g.desc.Mask = eventloop.EventRead | eventloop.EventWrite
		g.loop.RearmDescriptor(g.desc)
		g.onWritable()
	})
}

// fail marks the gate unhealthy and fails every outstanding fast call and
// stream, per spec.md §4.8's transport-error failure model.
func (g *StreamCallGate[F]) fail(err error) {
	g.log.Warn("gate failed", "error", err)
	g.markUnhealthy()

	g.fastCalls.Drain(func(_ uint64, pc *pendingFastCall[F]) {
		pc.timer.Stop()
		pc.future.SetError(rpcerr.Wrap(rpcerr.KindIoError, err, "gate failed"))
		metrics.FastCallsTotal.WithLabelValues("io_error").Inc()
	})

	g.streamMu.Lock()
	streams := make([]*streamContext[F], 0, len(g.streams))
	for _, sc := range g.streams {
		streams = append(streams, sc)
	}
	g.streamMu.Unlock()
	for _, sc := range streams {
		sc.adaptor.Break()
	}
}

// Stop marks the gate as closing, fails every outstanding fast call with
// GateClosing, closes every open stream, and detaches the descriptor.
// Join waits for all of that to finish draining.
func (g *StreamCallGate[F]) Stop() {
	g.markUnhealthy()

	g.fastCalls.Drain(func(_ uint64, pc *pendingFastCall[F]) {
		pc.timer.Stop()
		pc.future.SetError(rpcerr.ErrGateClosing)
		metrics.FastCallsTotal.WithLabelValues("gate_closing").Inc()
	})

	g.streamMu.Lock()
	streams := make([]*streamContext[F], 0, len(g.streams))
	for _, sc := range g.streams {
		streams = append(streams, sc)
	}
	reaper := g.reaper
	g.streamMu.Unlock()

	for _, sc := range streams {
		sc.adaptor.Break()
		sc.adaptor.Close()
	}

	g.stopWG.Add(1)
	g.loop.AddTask(func() {
		defer g.stopWG.Done()
		g.loop.DisableDescriptor(g.desc)
		g.loop.DetachDescriptor(g.desc)
		g.io.Close()
		if reaper != nil {
			reaper.Stop()
		}
	})
}

// Join blocks until Stop's teardown has fully run.
func (g *StreamCallGate[F]) Join() { g.stopWG.Wait() }
