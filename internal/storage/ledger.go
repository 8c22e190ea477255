package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/matsen/octosphere/internal/bridge"
)

// SyncedPublication is one ledger entry.
type SyncedPublication struct {
	ID            int64     `json:"id"`
	ORCID         string    `json:"orcid"`
	PublicationID string    `json:"octopus_pub_id"`
	VersionID     string    `json:"octopus_version_id"`
	URI           string    `json:"at_uri"`
	SyncedAt      time.Time `json:"synced_at"`
}

// IsSynced reports whether orcid already has a record for the version.
func (d *DB) IsSynced(ctx context.Context, orcid, publicationID, versionID string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM synced_publications
			WHERE orcid = ? AND octopus_pub_id = ? AND octopus_version_id = ?
		)
	`, orcid, publicationID, versionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking ledger: %w", err)
	}
	return exists, nil
}

// RecordSynced appends a ledger entry. Entries are never updated; a second
// write of the same version appends again.
func (d *DB) RecordSynced(ctx context.Context, orcid, publicationID, versionID, uri string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO synced_publications (orcid, octopus_pub_id, octopus_version_id, at_uri, synced_at)
		VALUES (?, ?, ?, ?, ?)
	`, orcid, publicationID, versionID, uri, toMillis(d.now()))
	if err != nil {
		return fmt.Errorf("recording %s/%s for %s: %w", publicationID, versionID, orcid, err)
	}
	return nil
}

// SyncedSet loads every (publication, version) pair recorded for orcid.
func (d *DB) SyncedSet(ctx context.Context, orcid string) (bridge.Set, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT octopus_pub_id, octopus_version_id
		FROM synced_publications
		WHERE orcid = ?
	`, orcid)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	set := bridge.Set{}
	for rows.Next() {
		var pubID, verID string
		if err := rows.Scan(&pubID, &verID); err != nil {
			return nil, fmt.Errorf("scanning ledger: %w", err)
		}
		set.Add(pubID, verID)
	}
	return set, rows.Err()
}

// SyncedCount returns the number of ledger entries for orcid.
func (d *DB) SyncedCount(ctx context.Context, orcid string) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM synced_publications WHERE orcid = ?`, orcid).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting ledger: %w", err)
	}
	return n, nil
}

// ListSynced returns orcid's ledger entries, newest first.
func (d *DB) ListSynced(ctx context.Context, orcid string) ([]SyncedPublication, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, orcid, octopus_pub_id, octopus_version_id, at_uri, synced_at
		FROM synced_publications
		WHERE orcid = ?
		ORDER BY synced_at DESC, id DESC
	`, orcid)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var entries []SyncedPublication
	for rows.Next() {
		var (
			e        SyncedPublication
			syncedAt int64
		)
		if err := rows.Scan(&e.ID, &e.ORCID, &e.PublicationID, &e.VersionID, &e.URI, &syncedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger: %w", err)
		}
		e.SyncedAt = fromMillis(syncedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteAllFor removes orcid's ledger, so the next run rewrites every
// publication. Returns the number of entries removed.
func (d *DB) DeleteAllFor(ctx context.Context, orcid string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM synced_publications WHERE orcid = ?`, orcid)
	if err != nil {
		return 0, fmt.Errorf("clearing ledger for %s: %w", orcid, err)
	}
	return res.RowsAffected()
}
