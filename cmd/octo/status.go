package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/octosphere/internal/storage"
)

// UserStatus is one researcher in the status listing.
type UserStatus struct {
	storage.UserConfig
	SyncedCount int                         `json:"synced_count"`
	Synced      []storage.SyncedPublication `json:"synced,omitempty"`
}

// SyncedCheck answers status --publication.
type SyncedCheck struct {
	ORCID         string `json:"orcid"`
	PublicationID string `json:"publication_id"`
	VersionID     string `json:"version_id"`
	Synced        bool   `json:"synced"`
}

var (
	statusPublication string
	statusVersion     string
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusPublication, "publication", "", "Check whether this publication id is in the ledger (needs an ORCID)")
	statusCmd.Flags().StringVar(&statusVersion, "version", "", "Version id to check with --publication")
}

var statusCmd = &cobra.Command{
	Use:   "status [orcid]",
	Short: "Show connected researchers and what has been synced",
	Long: `Without an argument, list every connected researcher with the number of
publication versions in the ledger. With an ORCID, also list the ledger
entries, newest first. With --publication and --version, report whether
that publication version is in the researcher's ledger.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db := mustOpenDatabase()
	defer db.Close()

	if statusPublication != "" {
		if len(args) != 1 || statusVersion == "" {
			exitWithError(ExitError, "--publication needs an ORCID argument and --version")
		}
		return checkSynced(cmd, db, args[0])
	}

	var statuses []UserStatus
	if len(args) == 1 {
		cfg, err := db.GetConfig(ctx, args[0])
		if errors.Is(err, storage.ErrNotFound) {
			exitWithError(ExitConfigError, "%s is not connected", args[0])
		}
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		synced, err := db.ListSynced(ctx, cfg.ORCID)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		statuses = append(statuses, UserStatus{UserConfig: *cfg, SyncedCount: len(synced), Synced: synced})
	} else {
		users, err := db.ListUsers(ctx)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		for _, u := range users {
			n, err := db.SyncedCount(ctx, u.ORCID)
			if err != nil {
				exitWithError(ExitError, "%v", err)
			}
			statuses = append(statuses, UserStatus{UserConfig: u, SyncedCount: n})
		}
	}

	if !humanOutput {
		if statuses == nil {
			statuses = []UserStatus{}
		}
		return outputJSON(statuses)
	}

	if len(statuses) == 0 {
		fmt.Println("No researchers connected")
		return nil
	}
	for _, s := range statuses {
		state := successColor.Sprint("active")
		if !s.Active {
			state = warningColor.Sprint("disabled")
		}
		last := "never"
		if s.LastSync != nil {
			last = s.LastSync.Local().Format(time.DateTime)
		}
		fmt.Printf("%s  %s  %s\n", s.ORCID, s.BskyHandle, state)
		printDim("  Octopus user %s, last sync %s, %d versions synced", s.OctopusUserID, last, s.SyncedCount)
		for _, e := range s.Synced {
			fmt.Printf("  %s  %s/%s  %s\n", e.SyncedAt.Local().Format(time.DateTime), e.PublicationID, e.VersionID, e.URI)
		}
	}
	return nil
}

func checkSynced(cmd *cobra.Command, db *storage.DB, orcid string) error {
	ok, err := db.IsSynced(cmd.Context(), orcid, statusPublication, statusVersion)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if !humanOutput {
		return outputJSON(SyncedCheck{ORCID: orcid, PublicationID: statusPublication, VersionID: statusVersion, Synced: ok})
	}
	if ok {
		printSuccess("%s/%s is synced for %s", statusPublication, statusVersion, orcid)
	} else {
		printWarning("%s/%s is not synced for %s", statusPublication, statusVersion, orcid)
	}
	return nil
}
