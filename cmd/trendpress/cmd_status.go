package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"trendpress/internal/registry"
	"trendpress/internal/run"
)

var statusFlags struct {
	failures bool
	events   bool
}

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show a run's state, stage history, and failures",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.BoolVar(&statusFlags.failures, "failures", false, "Also print the failure log")
	f.BoolVar(&statusFlags.events, "events", false, "Also print the event log")
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	runID := args[0]
	out := cmd.OutOrStdout()

	r, err := rt.reg.GetRun(runID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			fmt.Fprintf(out, "No run %s. Start one with 'trendpress run'.\n", runID)
			return nil
		}
		return err
	}

	fmt.Fprintf(out, "Run:       %s\n", r.ID)
	fmt.Fprintf(out, "Mode:      %s\n", r.Mode)
	fmt.Fprintf(out, "State:     %s\n", r.State)
	fmt.Fprintf(out, "Approved:  %v\n", r.AdminApproved)
	if r.TerminalStatus != "" {
		fmt.Fprintf(out, "Status:    %s\n", r.TerminalStatus)
	}
	if r.FailureCount > 0 {
		fmt.Fprintf(out, "Failures:  %d\n", r.FailureCount)
	}

	var m run.Manifest
	if err := rt.artifacts.ReadManifest(runID, &m); err == nil && len(m.Stages) > 0 {
		fmt.Fprintf(out, "Stages:\n")
		for _, s := range m.Stages {
			line := fmt.Sprintf("  %-13s %-7s records=%d attempts=%d", s.Stage, s.Status, s.Count, s.Attempts)
			if s.Degraded {
				line += " degraded"
			}
			fmt.Fprintln(out, line)
		}
	}

	if statusFlags.failures {
		failures, err := rt.journal.Failures(runID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Failure log: (%d entries)\n", len(failures))
		for _, f := range failures {
			fmt.Fprintf(out, "  %s [%s] %s: %s\n", f.TS.Format("15:04:05"), f.Stage, f.ErrorKind, f.Message)
		}
	}
	if statusFlags.events {
		events, err := rt.journal.Events(runID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Event log: (%d entries)\n", len(events))
		for _, e := range events {
			fmt.Fprintf(out, "  %s %-17s %s %s\n", e.TS.Format("15:04:05"), e.Kind, e.Stage, e.Detail)
		}
	}
	return nil
}
