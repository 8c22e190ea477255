package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/matsen/octosphere/internal/storage"
)

func init() {
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
}

var enableCmd = &cobra.Command{
	Use:   "enable <orcid>",
	Short: "Resume scheduled syncs for a researcher",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <orcid>",
	Short: "Pause scheduled syncs for a researcher",
	Long: `Pause scheduled syncs. Stored credentials, the ledger and records already
written are kept; 'octo enable' resumes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], false)
	},
}

func setActive(cmd *cobra.Command, orcid string, active bool) error {
	db := mustOpenDatabase()
	defer db.Close()

	if err := db.SetActive(cmd.Context(), orcid, active); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			exitWithError(ExitConfigError, "%s is not connected", orcid)
		}
		exitWithError(ExitError, "%v", err)
	}

	status := "disabled"
	if active {
		status = "enabled"
	}
	if humanOutput {
		printSuccess("Scheduled syncs %s for %s", status, orcid)
		return nil
	}
	return outputJSON(StatusResponse{Status: status, ORCID: orcid})
}
