package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/octosphere/internal/storage"
)

var (
	connectHandle      string
	connectAppPassword string
	connectOctopusUser string
	connectRun         bool
)

// ConnectResult is the response for the connect command.
type ConnectResult struct {
	ORCID         string `json:"orcid"`
	Handle        string `json:"bsky_handle"`
	DID           string `json:"bsky_did"`
	OctopusUserID string `json:"octopus_user_id"`
	Active        bool   `json:"active"`
}

func init() {
	rootCmd.AddCommand(connectCmd)
	connectCmd.Flags().StringVar(&connectHandle, "handle", "", "Bluesky handle (required)")
	connectCmd.Flags().StringVar(&connectAppPassword, "app-password", "", "App password (or $"+EnvAppPassword+")")
	connectCmd.Flags().StringVar(&connectOctopusUser, "octopus-user", "", "Octopus user id or author profile URL (required)")
	connectCmd.Flags().BoolVar(&connectRun, "sync", false, "Run a sync right after connecting")
	connectCmd.MarkFlagRequired("handle")
	connectCmd.MarkFlagRequired("octopus-user")
}

var connectCmd = &cobra.Command{
	Use:   "connect <orcid>",
	Short: "Store a researcher's repository credentials for scheduled syncs",
	Long: `Verify a Bluesky handle and app password, then store them (the password
sealed with OCTOSPHERE_ENCRYPTION_KEY) together with the researcher's
Octopus user id. Connecting again replaces the stored values and
re-activates scheduled syncs.

Example:
  octo connect 0000-0002-1825-0097 --handle alice.bsky.social \
      --octopus-user https://www.octopus.ac/authors/abc123 --sync`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func runConnect(cmd *cobra.Command, args []string) error {
	orcid := args[0]
	ctx := cmd.Context()
	box := mustBox()

	userID := octopusUserID(connectOctopusUser)
	password := appPassword(connectAppPassword)
	sess := mustAuthenticate(ctx, newATProtoClient(), connectHandle, password)

	sealed, err := box.Seal(password)
	if err != nil {
		exitWithError(ExitError, "sealing app password: %v", err)
	}

	db := mustOpenDatabase()
	defer db.Close()

	cfg := storage.UserConfig{
		ORCID:                orcid,
		BskyHandle:           sess.Handle,
		BskyDID:              sess.DID,
		EncryptedAppPassword: sealed,
		OctopusUserID:        userID,
		Active:               true,
	}
	if err := db.UpsertConfig(ctx, cfg); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if connectRun {
		return printOutcome(newRunner(db).RunFor(ctx, orcid))
	}

	if humanOutput {
		printSuccess("Connected %s as %s (%s)", orcid, sess.Handle, sess.DID)
		fmt.Printf("  Octopus user: %s\n", userID)
		return nil
	}
	return outputJSON(ConnectResult{
		ORCID:         orcid,
		Handle:        sess.Handle,
		DID:           sess.DID,
		OctopusUserID: userID,
		Active:        true,
	})
}
