// Package testprotocol implements a minimal length-prefixed wire protocol
// used only by this module's own tests for the gate and gate-pool
// packages: a concrete protocol.Protocol[Frame] exercising the plugin
// contract without pulling in any real wire format.
//
// Wire layout per frame: 4-byte big-endian length, 4-byte correlation id,
// 1-byte flags (bit0 = stream, bit1 = stream-end), payload.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package testprotocol

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/fiberpc/protocol"
)

const headerSize = 4 + 4 + 1

const (
	flagStream    = 1 << 0
	flagStreamEnd = 1 << 1
)

// Frame is the concrete message type this protocol parses/serializes.
type Frame struct {
	Correlation uint32
	Stream      bool
	StreamEnd   bool
	Payload     []byte
}

func (f Frame) CorrelationID() uint32 { return f.Correlation }
func (f Frame) IsStream() bool        { return f.Stream }
func (f Frame) IsStreamEnd() bool     { return f.StreamEnd }

// Protocol is the length-prefixed protocol.Protocol[Frame] implementation.
type Protocol struct {
	poolKey string
}

// New constructs a Protocol whose pool key is poolKey (pass the same
// string for two connections that should be eligible to share a pooled
// gate).
func New(poolKey string) *Protocol {
	return &Protocol{poolKey: poolKey}
}

func (p *Protocol) Characteristics() protocol.Characteristics {
	return protocol.Characteristics{PoolKey: p.poolKey}
}

func (p *Protocol) TryParse(raw []byte) (Frame, int, bool, error) {
	if len(raw) < headerSize {
		return Frame{}, 0, false, nil
	}
	length := binary.BigEndian.Uint32(raw[0:4])
	total := headerSize + int(length)
	if len(raw) < total {
		return Frame{}, 0, false, nil
	}
	corr := binary.BigEndian.Uint32(raw[4:8])
	flags := raw[8]
	payload := make([]byte, length)
	copy(payload, raw[headerSize:total])
	return Frame{
		Correlation: corr,
		Stream:      flags&flagStream != 0,
		StreamEnd:   flags&flagStreamEnd != 0,
		Payload:     payload,
	}, total, true, nil
}

func (p *Protocol) Serialize(f Frame) ([]byte, error) {
	if len(f.Payload) > 0xFFFFFFFF {
		return nil, fmt.Errorf("testprotocol: payload too large")
	}
	out := make([]byte, headerSize+len(f.Payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(f.Payload)))
	binary.BigEndian.PutUint32(out[4:8], f.Correlation)
	var flags byte
	if f.Stream {
		flags |= flagStream
	}
	if f.StreamEnd {
		flags |= flagStreamEnd
	}
	out[8] = flags
	copy(out[headerSize:], f.Payload)
	return out, nil
}
