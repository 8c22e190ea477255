package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/octosphere/internal/task"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <orcid>",
	Short: "Run a sync for a connected researcher",
	Long: `Run the background sync for one connected researcher now.

Publication versions already in the ledger are skipped. The command exits
non-zero if the run was skipped or failed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db := mustOpenDatabase()
		defer db.Close()

		out := newRunner(db).RunFor(cmd.Context(), args[0])
		if err := printOutcome(out); err != nil {
			return err
		}
		switch {
		case out.Status == task.StatusFailed:
			db.Close()
			os.Exit(exitCodeFor(out.Err))
		case out.Status == task.StatusSkipped:
			db.Close()
			os.Exit(ExitConfigError)
		case out.Failed > 0:
			db.Close()
			os.Exit(ExitPartial)
		}
		return nil
	},
}

func printOutcome(out task.Outcome) error {
	if !humanOutput {
		return outputJSON(out)
	}
	switch out.Status {
	case task.StatusSynced:
		printSuccess("%s: %d written, %d already synced, %d failed (%s)",
			out.ORCID, out.Written, out.Skipped, out.Failed, out.Duration)
		if out.Message != "" {
			printDim("  %s", out.Message)
		}
	case task.StatusSkipped:
		printWarning("%s: skipped (%s)", out.ORCID, out.Reason)
	default:
		printFailure("%s: %s", out.ORCID, out.Message)
	}
	if out.Status == task.StatusFailed && out.Written > 0 {
		fmt.Printf("  %d publications were written before the failure\n", out.Written)
	}
	return nil
}
