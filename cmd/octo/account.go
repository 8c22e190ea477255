package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/matsen/octosphere/internal/storage"
)

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountDeleteCmd)
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage stored researcher accounts",
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete <orcid>",
	Short: "Forget a researcher's credentials and ledger",
	Long: `Delete the stored configuration and ledger for a researcher. Records
already written to their repository are left in place; remove them with
'octo records delete-all' first if needed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orcid := args[0]
		db := mustOpenDatabase()
		defer db.Close()

		if err := db.DeleteUser(cmd.Context(), orcid); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				exitWithError(ExitConfigError, "%s is not connected", orcid)
			}
			exitWithError(ExitError, "%v", err)
		}

		if humanOutput {
			printSuccess("Deleted account %s", orcid)
			return nil
		}
		return outputJSON(StatusResponse{Status: "deleted", ORCID: orcid})
	},
}
