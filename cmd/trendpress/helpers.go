package main

import (
	"fmt"
	"io"

	"trendpress/internal/artifact"
	"trendpress/internal/config"
	"trendpress/internal/journal"
	"trendpress/internal/registry"
	"trendpress/internal/run"
)

// runtime bundles everything a command needs to touch runs.
type runtime struct {
	cfg        config.Config
	reg        registry.Registry
	artifacts  *artifact.Store
	journal    *journal.Journal
	controller *run.Controller
}

// openRuntime loads config (defaults when --config is unset) and opens the
// registry, artifact store, and journal. Callers must Close.
func openRuntime() (*runtime, error) {
	cfg := config.Default()
	if rootFlags.configPath != "" {
		var err error
		cfg, err = config.LoadFromPath(rootFlags.configPath)
		if err != nil {
			return nil, err
		}
	}
	reg, err := registry.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	store, err := artifact.NewStore(cfg.DataDir)
	if err != nil {
		reg.Close()
		return nil, err
	}
	jnl, err := journal.New(cfg.DataDir)
	if err != nil {
		reg.Close()
		return nil, err
	}
	ctrl, err := run.New(cfg, reg, store, jnl)
	if err != nil {
		reg.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, reg: reg, artifacts: store, journal: jnl, controller: ctrl}, nil
}

func (rt *runtime) Close() error { return rt.reg.Close() }

// newController rebuilds the controller after a config change (mode
// override on the command line).
func newController(rt *runtime) (*run.Controller, error) {
	return run.New(rt.cfg, rt.reg, rt.artifacts, rt.journal)
}

// printResult renders a controller result for the operator.
func printResult(w io.Writer, res *run.Result) {
	fmt.Fprintf(w, "Run:      %s\n", res.RunID)
	fmt.Fprintf(w, "State:    %s\n", res.State)
	if res.TerminalStatus != "" {
		fmt.Fprintf(w, "Status:   %s\n", res.TerminalStatus)
	}
	if res.Suspended {
		fmt.Fprintf(w, "Awaiting admin approval. Approve with:\n")
		fmt.Fprintf(w, "  trendpress approve %s\n", res.RunID)
		fmt.Fprintf(w, "  trendpress resume %s\n", res.RunID)
	}
	if res.Failures > 0 {
		fmt.Fprintf(w, "Failures: %d\n", res.Failures)
	}
}
