// Package config holds the flags table from spec.md §6 and the dynamic
// key/value store the teacher's control package stubbed out. Flags is
// the typed, validated view every other package constructs against;
// Store is the generalized form of control.ConfigStore (control/config.go)
// with fsnotify-driven hot reload wired onto control/hotreload.go's
// previously-unconnected reload hooks.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package config

import (
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Flags is the validated configuration surface from spec.md §6, one
// field per row of the flags table. Every field carries a safe default
// via Defaults().
type Flags struct {
	// EventLoopsPerGroup is the number of loops constructed per
	// scheduling group.
	EventLoopsPerGroup int `yaml:"event_loops_per_group" validate:"min=1"`
	// WatchdogInterval is the interval between watchdog probes.
	WatchdogInterval time.Duration `yaml:"watchdog_interval" validate:"min=1ms"`
	// WatchdogMaxDelay is the miss threshold; must be <= WatchdogInterval.
	WatchdogMaxDelay time.Duration `yaml:"watchdog_max_delay" validate:"min=1ms"`
	// WatchdogAbort aborts the process on a missed watchdog probe instead
	// of only logging it.
	WatchdogAbort bool `yaml:"watchdog_abort"`
	// MaxConnectionsPerServer is the global cap for the shared pool,
	// divided across scheduling groups.
	MaxConnectionsPerServer int `yaml:"max_connections_per_server" validate:"min=1"`
	// IdlePurgeInterval is the purge sweep period.
	IdlePurgeInterval time.Duration `yaml:"idle_purge_interval" validate:"min=1ms"`
	// IdleMaxAge is the eviction threshold; must be strictly less than
	// the server-side idle timeout (not modeled here, so only checked
	// for positivity and against IdlePurgeInterval in Validate).
	IdleMaxAge time.Duration `yaml:"idle_max_age" validate:"min=1ms"`
	// DoubleQuitAborts makes a second SIGINT/SIGQUIT/SIGTERM force-abort
	// the process instead of waiting on graceful shutdown again.
	DoubleQuitAborts bool `yaml:"double_quit_aborts"`
}

// Defaults returns the flags table's documented safe defaults.
func Defaults() Flags {
	return Flags{
		EventLoopsPerGroup:      1,
		WatchdogInterval:        10_000 * time.Millisecond,
		WatchdogMaxDelay:        5_000 * time.Millisecond,
		WatchdogAbort:           false,
		MaxConnectionsPerServer: 8,
		IdlePurgeInterval:       15 * time.Second,
		IdleMaxAge:              45 * time.Second,
		DoubleQuitAborts:        true,
	}
}

var validate = validator.New()

// Validate checks struct-tag constraints plus the cross-field invariants
// the flags table calls out in prose (watchdog max delay must not exceed
// the check interval; idle max age must exceed the purge interval, or
// every entry would be evicted on the sweep right after it is created).
func (f Flags) Validate() error {
	if err := validate.Struct(f); err != nil {
		return errors.Wrap(err, "config: invalid flags")
	}
	if f.WatchdogMaxDelay > f.WatchdogInterval {
		return errors.New("config: watchdog max delay must not exceed watchdog check interval")
	}
	if f.IdleMaxAge <= f.IdlePurgeInterval {
		return errors.New("config: idle max age must be strictly greater than the purge interval")
	}
	return nil
}

// Load reads a YAML file at path, merges it onto Defaults(), and
// validates the result.
func Load(path string) (Flags, error) {
	f := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Flags{}, errors.Wrap(err, "config: read file")
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Flags{}, errors.Wrap(err, "config: parse yaml")
	}
	if err := f.Validate(); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// Store is a dynamic, hot-reloadable holder for a validated Flags value,
// generalized from the teacher's control.ConfigStore (a bare
// map[string]any) into a typed snapshot with the same
// get-snapshot/set/listener shape.
type Store struct {
	mu        sync.RWMutex
	current   Flags
	listeners []func(Flags)
}

// NewStore builds a Store seeded with the given flags.
func NewStore(initial Flags) *Store {
	return &Store{current: initial}
}

// Snapshot returns the currently active flags.
func (s *Store) Snapshot() Flags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set validates and installs next, then dispatches every registered
// listener with the new snapshot. Rejects next without installing it if
// validation fails.
func (s *Store) Set(next Flags) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = next
	listeners := append([]func(Flags){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		go fn(next)
	}
	return nil
}

// OnReload registers a listener invoked, in its own goroutine, every
// time Set installs a new configuration.
func (s *Store) OnReload(fn func(Flags)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
