package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Finalize paid settlements and list stale pending ones",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.server.Engine().Resume(cmd.Context())
		if report != nil {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "finalized: %d\nfailed: %d\nstale pending: %d\n", report.Finalized, report.Failed, len(report.StalePending))
			for _, in := range report.StalePending {
				fmt.Fprintf(out, "  %s task=%d child=%s amount=%s since=%s\n",
					in.ID, in.TaskID, in.ChildID, in.AmountFiat, in.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
		}
		return err
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release <intent-id>",
	Short: "Mark a stale pending settlement failed so its task can be reviewed again",
	Long: "Check the wallet gateway first. Approving the task again reuses the intent id as the " +
		"idempotency key, so a gateway that honours it will not pay twice.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.server.Engine().Release(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "released %s\n", args[0])
		return nil
	},
}
