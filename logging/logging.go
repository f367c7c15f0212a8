// Package logging wraps github.com/hashicorp/go-hclog into the process-wide
// root logger. The cmd entry point obtains its logger here and hands it to
// runtime.Start, from which the event loops and watchdog derive theirs;
// the other packages that log (gate, httpfacade, config.Watcher) take an
// hclog.Logger from their caller rather than from this package.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package logging

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu     sync.Mutex
	global hclog.Logger
)

// Named returns a logger scoped to name, sharing the process-wide level
// and writer configured by Configure (or the hclog defaults if Configure
// was never called).
func Named(name string) hclog.Logger {
	return root().Named(name)
}

func root() hclog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = newLogger(hclog.Info, os.Stderr)
	}
	return global
}

// Configure replaces the process-wide root logger, e.g. once the CLI has
// parsed a --log-level flag. Safe to call at any time, including after
// Named loggers have already been handed out: hclog loggers returned by
// Named before a Configure call keep logging at their original level,
// since hclog.Logger does not retroactively rebind to a replaced parent.
// Call Configure as early as possible, before the first Named, for it to
// govern every logger in the process.
func Configure(level hclog.Level, output *os.File) {
	mu.Lock()
	defer mu.Unlock()
	global = newLogger(level, output)
}

func newLogger(level hclog.Level, output *os.File) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:            "fiberpc",
		Level:           level,
		Output:          output,
		IncludeLocation: false,
	})
}
