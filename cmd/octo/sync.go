package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/octosphere/internal/bridge"
)

var (
	syncHandle      string
	syncAppPassword string
	syncOctopusUser string
)

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncHandle, "handle", "", "Bluesky handle (required)")
	syncCmd.Flags().StringVar(&syncAppPassword, "app-password", "", "App password (or $"+EnvAppPassword+")")
	syncCmd.Flags().StringVar(&syncOctopusUser, "octopus-user", "", "Octopus user id or author profile URL (required)")
	syncCmd.MarkFlagRequired("handle")
	syncCmd.MarkFlagRequired("octopus-user")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync one Octopus author into a repository, once",
	Long: `Sync every publication of an Octopus author into a Bluesky repository.

This is a one-shot sync that does not use the ledger: every publication is
written again. Writes are idempotent, so existing records are replaced.

Examples:
  octo sync --handle alice.bsky.social --octopus-user https://www.octopus.ac/authors/abc123
  OCTO_APP_PASSWORD=xxxx-xxxx-xxxx-xxxx octo sync --handle alice.bsky.social --octopus-user abc123`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	mustValidate(false)
	ctx := cmd.Context()

	userID := octopusUserID(syncOctopusUser)
	repo := newATProtoClient()
	sess := mustAuthenticate(ctx, repo, syncHandle, appPassword(syncAppPassword))

	report, err := newEngine(repo).Sync(ctx, sess, userID, bridge.Set{}, nil)
	exitOnError(err, "syncing")

	if humanOutput {
		printReport(report)
	} else if err := outputJSON(report); err != nil {
		return err
	}
	if len(report.Failures) > 0 {
		os.Exit(ExitPartial)
	}
	return nil
}
