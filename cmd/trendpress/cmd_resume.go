package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeFlags struct {
	approve bool
}

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Re-enter an existing run",
	Long: `Resumes a run from wherever it rests. Completed stages are never
re-run. A run suspended at AWAITING_APPROVAL re-checks the gate and
publishes when approval has been granted; a terminal run reports its
status unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeFlags.approve, "approve", false, "Record admin approval before resuming")
}

func runResume(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.controller.Resume(cmd.Context(), args[0], resumeFlags.approve, "cli")
	if res != nil {
		printResult(cmd.OutOrStdout(), res)
	}
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	return nil
}
