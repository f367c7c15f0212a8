// Package control implements the debug probe registry runtime registers
// itself against: named, lazily-evaluated introspection hooks aggregated
// into a single state dump for an operator-facing /debug endpoint.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package control
