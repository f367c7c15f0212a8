// Package protocol defines the plugin contract a wire format implements to
// be usable by a stream call gate: framing (TryParse/Serialize) and the
// per-connection characteristics that determine which pool key a
// connection negotiated under this protocol may be shared under, per
// spec.md §6's "protocol plugin contract".
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package protocol

// Frame is the minimal contract a parsed wire message must satisfy so the
// gate can route it: its RPC correlation id (0 for frames that do not
// correlate to an outstanding call, e.g. an unsolicited push), whether it
// belongs to a streaming call, and whether it is the final frame of that
// stream.
type Frame interface {
	CorrelationID() uint32
	IsStream() bool
	IsStreamEnd() bool
}

// Characteristics describes connection-level properties the gate pool uses
// to decide whether two logical endpoints may share a physical connection.
// Two connections may only share a pooled gate if their Characteristics
// compare equal by PoolKey.
type Characteristics struct {
	// PoolKey discriminates connections that cannot share a cached gate
	// (e.g. differing auth principal, negotiated protocol version, or TLS
	// SNI). Connections requesting the same PoolKey may be pooled together.
	PoolKey string
	// MaxStreamsPerConn caps concurrent streaming calls per connection; 0
	// means "use the gate's default".
	MaxStreamsPerConn int
}

// Protocol parses and serializes frames of type F over one connection.
// Implementations must be safe for concurrent Serialize calls (the gate
// serializes writes itself via the writing buffer list, but TryParse is
// only ever invoked from the connection's own read path, single-threaded).
type Protocol[F Frame] interface {
	// TryParse attempts to decode one frame from the head of raw. It
	// returns the decoded frame, the number of bytes consumed, and ok=false
	// if raw does not yet hold a complete frame (caller should read more
	// and retry) rather than returning an error for a merely-incomplete
	// buffer.
	TryParse(raw []byte) (frame F, consumed int, ok bool, err error)
	// Serialize encodes frame onto the wire.
	Serialize(frame F) ([]byte, error)
	// Characteristics reports this protocol instance's pooling properties.
	Characteristics() Characteristics
}
