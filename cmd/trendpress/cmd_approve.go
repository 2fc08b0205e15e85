package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var approveCmd = &cobra.Command{
	Use:   "approve <run-id>",
	Short: "Record admin approval for a run",
	Long: `Records the explicit admin approval decision for a run. The decision
is durable and set at most once; it does not advance the run by itself.
Follow with 'trendpress resume <run-id>' to publish.`,
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	runID := args[0]
	if _, err := rt.reg.GetRun(runID); err != nil {
		return err
	}
	if err := rt.controller.Approve(runID, "cli"); err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Approved run %s. Resume to publish:\n", runID)
	fmt.Fprintf(cmd.OutOrStdout(), "  trendpress resume %s\n", runID)
	return nil
}
