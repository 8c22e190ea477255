package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UserConfig is one researcher's bridge configuration.
type UserConfig struct {
	ORCID                string     `json:"orcid"`
	BskyHandle           string     `json:"bsky_handle"`
	BskyDID              string     `json:"bsky_did,omitempty"`
	EncryptedAppPassword string     `json:"-"`
	OctopusUserID        string     `json:"octopus_user_id,omitempty"`
	Active               bool       `json:"active"`
	LastSync             *time.Time `json:"last_sync,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

const selectUserFields = `orcid, bsky_handle, bsky_did, encrypted_app_password,
	octopus_user_id, active, last_sync, created_at, updated_at`

// GetConfig returns the configuration for orcid, or ErrNotFound.
func (d *DB) GetConfig(ctx context.Context, orcid string) (*UserConfig, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+selectUserFields+` FROM users WHERE orcid = ?`, orcid)
	cfg, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("config for %s: %w", orcid, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindByAccount returns the researcher whose repository DID or handle is
// account, or ErrNotFound.
func (d *DB) FindByAccount(ctx context.Context, account string) (*UserConfig, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+selectUserFields+`
		FROM users WHERE bsky_did = ? OR bsky_handle = ?
		ORDER BY orcid LIMIT 1`, account, account)
	cfg, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("config for account %s: %w", account, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpsertConfig creates or replaces the configuration for cfg.ORCID.
// created_at and last_sync survive a replace.
func (d *DB) UpsertConfig(ctx context.Context, cfg UserConfig) error {
	if cfg.ORCID == "" {
		return errors.New("upserting config: orcid is required")
	}
	now := toMillis(d.now())
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (orcid, bsky_handle, bsky_did, encrypted_app_password,
			octopus_user_id, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(orcid) DO UPDATE SET
			bsky_handle = excluded.bsky_handle,
			bsky_did = excluded.bsky_did,
			encrypted_app_password = excluded.encrypted_app_password,
			octopus_user_id = excluded.octopus_user_id,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, cfg.ORCID, cfg.BskyHandle, nullableString(cfg.BskyDID), cfg.EncryptedAppPassword,
		nullableString(cfg.OctopusUserID), cfg.Active, now, now)
	if err != nil {
		return fmt.Errorf("upserting config for %s: %w", cfg.ORCID, err)
	}
	return nil
}

// SetActive enables or disables scheduled syncs for orcid.
func (d *DB) SetActive(ctx context.Context, orcid string, active bool) error {
	return d.updateUser(ctx, orcid, `UPDATE users SET active = ?, updated_at = ? WHERE orcid = ?`,
		active, toMillis(d.now()), orcid)
}

// TouchLastSync records that a sync for orcid completed at t.
func (d *DB) TouchLastSync(ctx context.Context, orcid string, t time.Time) error {
	return d.updateUser(ctx, orcid, `UPDATE users SET last_sync = ?, updated_at = ? WHERE orcid = ?`,
		toMillis(t), toMillis(d.now()), orcid)
}

func (d *DB) updateUser(ctx context.Context, orcid, query string, args ...any) error {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating config for %s: %w", orcid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating config for %s: %w", orcid, err)
	}
	if n == 0 {
		return fmt.Errorf("config for %s: %w", orcid, ErrNotFound)
	}
	return nil
}

// DeleteUser removes orcid's configuration and its ledger entries.
// Records already written to AT Protocol are not touched.
func (d *DB) DeleteUser(ctx context.Context, orcid string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM synced_publications WHERE orcid = ?`, orcid); err != nil {
		return fmt.Errorf("deleting ledger for %s: %w", orcid, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE orcid = ?`, orcid)
	if err != nil {
		return fmt.Errorf("deleting config for %s: %w", orcid, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("config for %s: %w", orcid, ErrNotFound)
	}
	return tx.Commit()
}

// Deactivate disables scheduled syncs for orcid and clears its ledger in
// one transaction, after its records were removed from the repository. A
// later re-enable rewrites everything. Returns the ledger entries removed.
func (d *DB) Deactivate(ctx context.Context, orcid string) (int64, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE users SET active = 0, updated_at = ? WHERE orcid = ?`,
		toMillis(d.now()), orcid)
	if err != nil {
		return 0, fmt.Errorf("deactivating %s: %w", orcid, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("config for %s: %w", orcid, ErrNotFound)
	}
	res, err = tx.ExecContext(ctx, `DELETE FROM synced_publications WHERE orcid = ?`, orcid)
	if err != nil {
		return 0, fmt.Errorf("clearing ledger for %s: %w", orcid, err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clearing ledger for %s: %w", orcid, err)
	}
	return removed, tx.Commit()
}

// ListUsers returns every configured researcher ordered by orcid.
func (d *DB) ListUsers(ctx context.Context) ([]UserConfig, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+selectUserFields+` FROM users ORDER BY orcid`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// UsersNeedingSync returns active researchers with an Octopus account that
// have never synced or last synced before cutoff.
func (d *DB) UsersNeedingSync(ctx context.Context, cutoff time.Time) ([]UserConfig, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+selectUserFields+`
		FROM users
		WHERE active = 1
			AND octopus_user_id IS NOT NULL AND octopus_user_id != ''
			AND (last_sync IS NULL OR last_sync < ?)
		ORDER BY orcid
	`, toMillis(cutoff))
	if err != nil {
		return nil, fmt.Errorf("querying users needing sync: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*UserConfig, error) {
	var (
		u                  UserConfig
		did, octopusID     sql.NullString
		lastSync           sql.NullInt64
		createdAt, updated int64
	)
	if err := row.Scan(&u.ORCID, &u.BskyHandle, &did, &u.EncryptedAppPassword,
		&octopusID, &u.Active, &lastSync, &createdAt, &updated); err != nil {
		return nil, err
	}
	u.BskyDID = did.String
	u.OctopusUserID = octopusID.String
	if lastSync.Valid {
		t := fromMillis(lastSync.Int64)
		u.LastSync = &t
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

func scanUsers(rows *sql.Rows) ([]UserConfig, error) {
	var users []UserConfig
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}
