package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/octosphere/internal/atproto"
	"github.com/matsen/octosphere/internal/bridge"
	"github.com/matsen/octosphere/internal/record"
	"github.com/matsen/octosphere/internal/storage"
)

var (
	recordsHandle      string
	recordsAppPassword string
	recordsLimit       int
	recordsYes         bool
	recordsDryRun      bool
	recordsORCID       string
)

// RecordSummary is one record in listings.
type RecordSummary struct {
	URI       string `json:"uri"`
	OctopusID string `json:"octopus_id"`
	VersionID string `json:"version_id"`
	Title     string `json:"title"`
}

// DeleteResult is the response for records delete-all and dedupe.
type DeleteResult struct {
	Found   int      `json:"found"`
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
	DryRun  bool     `json:"dry_run"`

	// Set by delete-all when the repository belongs to a stored researcher.
	Deactivated   string `json:"deactivated,omitempty"`
	LedgerCleared int64  `json:"ledger_cleared,omitempty"`
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsListCmd, recordsDeleteAllCmd, recordsDedupeCmd)

	recordsCmd.PersistentFlags().StringVar(&recordsHandle, "handle", "", "Bluesky handle or DID (required)")
	recordsCmd.MarkPersistentFlagRequired("handle")

	recordsListCmd.Flags().IntVar(&recordsLimit, "limit", 0, "Maximum records to list (0 = all)")

	for _, c := range []*cobra.Command{recordsDeleteAllCmd, recordsDedupeCmd} {
		c.Flags().StringVar(&recordsAppPassword, "app-password", "", "App password (or $"+EnvAppPassword+")")
		c.Flags().BoolVar(&recordsDryRun, "dry-run", false, "Only show what would be deleted")
	}
	recordsDeleteAllCmd.Flags().BoolVarP(&recordsYes, "yes", "y", false, "Do not ask for confirmation")
	recordsDeleteAllCmd.Flags().StringVar(&recordsORCID, "orcid", "", "Researcher to deactivate (default: the one connected to --handle)")
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect and clean up publication records in a repository",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List publication records (no login needed)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := listPublic(cmd.Context(), newATProtoClient(), recordsHandle, recordsLimit)
		exitOnError(err, "listing records")

		listed := record.FromListing(records, logger)
		summaries := make([]RecordSummary, 0, len(listed))
		for _, l := range listed {
			summaries = append(summaries, summarize(l))
		}
		if !humanOutput {
			return outputJSON(summaries)
		}
		fmt.Printf("%d records\n\n", len(summaries))
		for i, s := range summaries {
			fmt.Printf("%3d. %s\n", i+1, truncate(s.Title, TitleMaxLen))
			printDim("     %s", s.URI)
		}
		return nil
	},
}

var recordsDeleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Delete every publication record in the repository",
	Long: `Delete every social.octosphere.publication record in the repository.
Requires the app password. Asks for confirmation unless --yes is given.

If the repository belongs to a connected researcher (looked up by handle
and DID, or named with --orcid), scheduled syncs are disabled and the
ledger is cleared, so 'octo enable' later rewrites everything.`,
	Args: cobra.NoArgs,
	RunE: runDeleteAll,
}

var recordsDedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Delete duplicate records of the same publication",
	Long: `Find publications that have more than one record (for example records
written under random keys by older versions) and delete all but one. The
record under the "octopus-<id>" key is kept when present.`,
	Args: cobra.NoArgs,
	RunE: runDedupe,
}

// listPublic lists without logging in, resolving a handle to its DID first.
func listPublic(ctx context.Context, c *atproto.Client, handleOrDID string, limit int) ([]atproto.Record, error) {
	did, err := c.ResolveHandle(ctx, handleOrDID)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", handleOrDID, err)
	}
	return c.ListRecordsPublic(ctx, did, record.Collection, limit)
}

func summarize(l record.Listed) RecordSummary {
	return RecordSummary{
		URI:       l.URI,
		OctopusID: l.Record.OctopusID,
		VersionID: l.Record.VersionID,
		Title:     l.Record.Title,
	}
}

func runDeleteAll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c := newATProtoClient()

	if recordsDryRun {
		records, err := listPublic(ctx, c, recordsHandle, 0)
		exitOnError(err, "listing records")
		return reportDeletes(DeleteResult{Found: len(records), Deleted: urisOf(records), DryRun: true})
	}

	sess := mustAuthenticate(ctx, c, recordsHandle, appPassword(recordsAppPassword))
	records, err := c.ListRecords(ctx, sess, record.Collection, 0)
	exitOnError(err, "listing records")

	if len(records) > 0 && !recordsYes && !confirm(fmt.Sprintf("Delete all %d publication records of %s?", len(records), sess.Handle)) {
		exitWithError(ExitError, "aborted")
	}

	deleted, failed := deleteAll(ctx, c, sess, records)
	result := DeleteResult{Found: len(records), Deleted: deleted, Failed: failed}

	db := mustOpenDatabase()
	defer db.Close()
	orcid, cleared, err := deactivateOwner(ctx, db, recordsORCID, sess)
	switch {
	case err != nil:
		exitWithError(ExitError, "deactivating researcher: %v", err)
	case orcid == "":
		logger.Warn("repository is not connected to a stored researcher", "did", sess.DID)
	default:
		result.Deactivated = orcid
		result.LedgerCleared = cleared
	}
	return reportDeletes(result)
}

// deactivateOwner stops scheduled syncs for the researcher who owns sess's
// repository and clears their ledger. orcid overrides the lookup by DID and
// handle. An unknown repository returns an empty orcid and no error.
func deactivateOwner(ctx context.Context, db *storage.DB, orcid string, sess *atproto.Session) (string, int64, error) {
	if orcid == "" {
		for _, account := range []string{sess.DID, sess.Handle} {
			cfg, err := db.FindByAccount(ctx, account)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return "", 0, err
			}
			orcid = cfg.ORCID
			break
		}
		if orcid == "" {
			return "", 0, nil
		}
	}
	cleared, err := db.Deactivate(ctx, orcid)
	if err != nil {
		return "", 0, err
	}
	return orcid, cleared, nil
}

func runDedupe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c := newATProtoClient()

	var (
		records []atproto.Record
		sess    *atproto.Session
		err     error
	)
	if recordsDryRun {
		records, err = listPublic(ctx, c, recordsHandle, 0)
	} else {
		sess = mustAuthenticate(ctx, c, recordsHandle, appPassword(recordsAppPassword))
		records, err = c.ListRecords(ctx, sess, record.Collection, 0)
	}
	exitOnError(err, "listing records")

	groups := bridge.PlanCleanup(records)
	var doomed []atproto.Record
	for _, g := range groups {
		doomed = append(doomed, g.Delete...)
		if humanOutput {
			fmt.Printf("%s: keeping %s\n", g.PublicationID, g.Keep.URI)
		}
	}

	if recordsDryRun {
		return reportDeletes(DeleteResult{Found: len(records), Deleted: urisOf(doomed), DryRun: true})
	}
	deleted, failed := deleteAll(ctx, c, sess, doomed)
	return reportDeletes(DeleteResult{Found: len(records), Deleted: deleted, Failed: failed})
}

func deleteAll(ctx context.Context, c *atproto.Client, sess *atproto.Session, records []atproto.Record) (deleted, failed []string) {
	deleted = []string{}
	for _, r := range records {
		if err := c.DeleteRecord(ctx, sess, r.URI); err != nil {
			logger.Warn("delete failed", "uri", r.URI, "error", err)
			failed = append(failed, r.URI)
			continue
		}
		deleted = append(deleted, r.URI)
	}
	return deleted, failed
}

func urisOf(records []atproto.Record) []string {
	uris := make([]string, 0, len(records))
	for _, r := range records {
		uris = append(uris, r.URI)
	}
	return uris
}

func reportDeletes(r DeleteResult) error {
	if !humanOutput {
		if err := outputJSON(r); err != nil {
			return err
		}
	} else {
		verb := "Deleted"
		if r.DryRun {
			verb = "Would delete"
		}
		for _, uri := range r.Deleted {
			printDim("  %s", uri)
		}
		printSuccess("%s %d of %d records", verb, len(r.Deleted), r.Found)
		for _, uri := range r.Failed {
			printFailure("could not delete %s", uri)
		}
		if r.Deactivated != "" {
			printWarning("Disabled syncs for %s and cleared %d ledger entries", r.Deactivated, r.LedgerCleared)
		}
	}
	if len(r.Failed) > 0 {
		os.Exit(ExitPartial)
	}
	return nil
}

// confirm asks a yes/no question on stderr.
func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s Type 'yes' to confirm: ", question)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "yes")
}
