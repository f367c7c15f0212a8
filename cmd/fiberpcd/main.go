// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/momentics/fiberpc/config"
	"github.com/momentics/fiberpc/logging"
	"github.com/momentics/fiberpc/metrics"
	"github.com/momentics/fiberpc/runtime"
	"github.com/urfave/cli"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "fiberpcd"
	app.Usage = "async I/O and call-orchestration core daemon"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "path to a YAML config file overriding the flags below",
		},
		cli.IntFlag{
			Name:  "event-loops-per-group",
			Value: config.Defaults().EventLoopsPerGroup,
			Usage: "number of event loops constructed per scheduling group",
		},
		cli.DurationFlag{
			Name:  "watchdog-interval",
			Value: config.Defaults().WatchdogInterval,
			Usage: "interval between watchdog probes",
		},
		cli.DurationFlag{
			Name:  "watchdog-max-delay",
			Value: config.Defaults().WatchdogMaxDelay,
			Usage: "miss threshold; must be <= watchdog-interval",
		},
		cli.BoolFlag{
			Name:  "watchdog-abort",
			Usage: "abort the process on a missed watchdog probe instead of logging it",
		},
		cli.IntFlag{
			Name:  "max-connections-per-server",
			Value: config.Defaults().MaxConnectionsPerServer,
			Usage: "global cap for the shared gate pool, divided across scheduling groups",
		},
		cli.DurationFlag{
			Name:  "idle-purge-interval",
			Value: config.Defaults().IdlePurgeInterval,
			Usage: "idle connection purge sweep period",
		},
		cli.DurationFlag{
			Name:  "idle-max-age",
			Value: config.Defaults().IdleMaxAge,
			Usage: "idle connection eviction threshold; must exceed idle-purge-interval",
		},
		cli.BoolTFlag{
			Name:  "double-quit-aborts",
			Usage: "a second SIGINT/SIGQUIT/SIGTERM force-aborts the process",
		},
		cli.StringFlag{
			Name:  "metrics-listen",
			Value: "",
			Usage: "address to serve Prometheus metrics on, e.g. :9090 (disabled if empty)",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "trace, debug, info, warn, or error",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logging.Configure(hclog.LevelFromString(c.String("log-level")), os.Stderr)
	log := logging.Named("fiberpcd")

	flags := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		flags = loaded
	} else {
		flags.EventLoopsPerGroup = c.Int("event-loops-per-group")
		flags.WatchdogInterval = c.Duration("watchdog-interval")
		flags.WatchdogMaxDelay = c.Duration("watchdog-max-delay")
		flags.WatchdogAbort = c.Bool("watchdog-abort")
		flags.MaxConnectionsPerServer = c.Int("max-connections-per-server")
		flags.IdlePurgeInterval = c.Duration("idle-purge-interval")
		flags.IdleMaxAge = c.Duration("idle-max-age")
		flags.DoubleQuitAborts = c.BoolT("double-quit-aborts")
	}
	if err := flags.Validate(); err != nil {
		return err
	}

	return runtime.Start(c.Args(), flags, log, func(r *runtime.Runtime, argv []string) error {
		log.Info("fiberpcd running", "event_loops", flags.EventLoopsPerGroup)
		if addr := c.String("metrics-listen"); addr != "" {
			go serveAdmin(addr, r, log)
		}
		<-r.QuitRequested()
		return nil
	})
}

// serveAdmin blocks the calling goroutine forever serving /metrics
// (Prometheus) and /debug (r.Debug's registered probe dump, as JSON).
func serveAdmin(addr string, r *runtime.Runtime, log hclog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/debug", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(r.Debug.DumpState()); err != nil {
			log.Error("debug dump encode failed", "err", err)
		}
	})
	log.Info("serving admin endpoints", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("admin server exited", "err", err)
	}
}
