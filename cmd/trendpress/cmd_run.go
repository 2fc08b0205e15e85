package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runFlags struct {
	approve bool
	mode    string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a new content-production run",
	Long: `Starts a run in the configured mode and drives it stage by stage.
Unless --approve is given, the run suspends at AWAITING_APPROVAL after
review; grant approval and resume to publish:

  trendpress run
  trendpress approve <run-id>
  trendpress resume <run-id>`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.BoolVar(&runFlags.approve, "approve", false, "Record admin approval up front; the run publishes without suspending")
	f.StringVar(&runFlags.mode, "mode", "", "Override discovery mode (fixture or live)")
}

func runRun(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if runFlags.mode != "" {
		cfg := rt.cfg
		cfg.Mode = runFlags.mode
		if err := cfg.Validate(); err != nil {
			return err
		}
		rt.cfg = cfg
		ctrl, err := newController(rt)
		if err != nil {
			return err
		}
		rt.controller = ctrl
	}

	res, err := rt.controller.Start(cmd.Context(), runFlags.approve, "start-flag")
	if res != nil {
		printResult(cmd.OutOrStdout(), res)
	}
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}
