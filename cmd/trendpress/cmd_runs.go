package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List all known runs",
	RunE:  runRuns,
}

func runRuns(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	runs, err := rt.reg.ListRuns()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs. Start one with 'trendpress run'.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tMODE\tSTATE\tAPPROVED\tSTATUS\tFAILURES\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%d\t%s\n",
			r.ID, r.Mode, r.State, r.AdminApproved, r.TerminalStatus, r.FailureCount,
			r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
