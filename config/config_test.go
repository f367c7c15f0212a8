// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	assert.NoError(t, Defaults().Validate())
}

func TestValidateRejectsWatchdogDelayExceedingInterval(t *testing.T) {
	f := Defaults()
	f.WatchdogMaxDelay = f.WatchdogInterval + time.Second
	assert.Error(t, f.Validate())
}

func TestValidateRejectsIdleMaxAgeNotExceedingPurgeInterval(t *testing.T) {
	f := Defaults()
	f.IdleMaxAge = f.IdlePurgeInterval
	assert.Error(t, f.Validate())
}

func TestLoadMergesOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fiberpc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_connections_per_server: 32\n"), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32, f.MaxConnectionsPerServer)
	assert.Equal(t, Defaults().WatchdogInterval, f.WatchdogInterval)
}

func TestStoreSetDispatchesListeners(t *testing.T) {
	s := NewStore(Defaults())
	seen := make(chan Flags, 1)
	s.OnReload(func(f Flags) { seen <- f })

	next := Defaults()
	next.MaxConnectionsPerServer = 16
	require.NoError(t, s.Set(next))

	select {
	case got := <-seen:
		assert.Equal(t, 16, got.MaxConnectionsPerServer)
	case <-time.After(time.Second):
		t.Fatal("listener was not invoked")
	}
	assert.Equal(t, 16, s.Snapshot().MaxConnectionsPerServer)
}

func TestStoreSetRejectsInvalidFlags(t *testing.T) {
	s := NewStore(Defaults())
	bad := Defaults()
	bad.IdleMaxAge = 0
	assert.Error(t, s.Set(bad))
	assert.Equal(t, Defaults(), s.Snapshot())
}

func TestWatchFileReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fiberpc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_connections_per_server: 8\n"), 0o644))

	s := NewStore(Defaults())
	w, err := WatchFile(path, s, nil)
	require.NoError(t, err)
	defer w.Close()

	seen := make(chan Flags, 1)
	s.OnReload(func(f Flags) { seen <- f })

	require.NoError(t, os.WriteFile(path, []byte("max_connections_per_server: 64\n"), 0o644))

	select {
	case got := <-seen:
		assert.Equal(t, 64, got.MaxConnectionsPerServer)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload within timeout")
	}
}
