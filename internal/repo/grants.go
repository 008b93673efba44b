package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Suganthan96/NCP/internal/domain"
)

// NormalizeGrantKey case-folds a caller-supplied grant key so that
// checksum-cased addresses hit the same record.
func NormalizeGrantKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// SaveGrant upserts a grant record; last write wins, no merge.
func (r Repo) SaveGrant(ctx context.Context, tx *sql.Tx, key, recordJSON string) error {
	if NormalizeGrantKey(key) == "" {
		return errors.New("grant key required")
	}
	now := r.now().UTC().Format(time.RFC3339)
	_, err := r.exec(ctx, tx, `INSERT INTO permission_grants(key,record_json,created_at,updated_at) VALUES (?,?,?,?)
		ON CONFLICT(key) DO UPDATE SET record_json=excluded.record_json, updated_at=excluded.updated_at`,
		NormalizeGrantKey(key), recordJSON, now, now)
	if err != nil {
		return fmt.Errorf("save grant: %w", err)
	}
	return nil
}

// GetGrant returns the grant stored under key, or ErrNotFound.
func (r Repo) GetGrant(ctx context.Context, key string) (domain.PermissionGrant, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT key,record_json,created_at,updated_at FROM permission_grants WHERE key=?`,
		NormalizeGrantKey(key))
	var g domain.PermissionGrant
	err := row.Scan(&g.Key, &g.RecordJSON, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	return g, err
}

// HasGrant reports whether a record exists under key.
func (r Repo) HasGrant(ctx context.Context, key string) (bool, error) {
	_, err := r.GetGrant(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RemoveGrant deletes the record under key. Removing an absent key is
// not an error.
func (r Repo) RemoveGrant(ctx context.Context, key string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM permission_grants WHERE key=?`, NormalizeGrantKey(key))
	return err
}

// ListGrants returns all cached grants, newest first.
func (r Repo) ListGrants(ctx context.Context) ([]domain.PermissionGrant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key,record_json,created_at,updated_at FROM permission_grants ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PermissionGrant
	for rows.Next() {
		var g domain.PermissionGrant
		if err := rows.Scan(&g.Key, &g.RecordJSON, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}
