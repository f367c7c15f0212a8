// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package logging

import (
	"os"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

func TestNamedReturnsUsableLogger(t *testing.T) {
	l := Named("eventloop")
	assert.NotNil(t, l)
	assert.True(t, l.IsInfo())
	l.Info("hello", "loop", 0)
}

func TestConfigureChangesLevelForSubsequentNamed(t *testing.T) {
	Configure(hclog.Warn, os.Stderr)
	defer Configure(hclog.Info, os.Stderr)

	l := Named("gatepool")
	assert.False(t, l.IsInfo(), "Info level logging should be gated off below Warn")
	assert.True(t, l.IsWarn())
}
