package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Suganthan96/NCP/internal/domain"
)

// normalizeAccount case-folds an account address so the composite key
// survives checksum-cased inputs.
func normalizeAccount(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// PersistSessionKey upserts a session key under its
// (owner node, account) composite key. A re-generated key fully
// replaces the previous record, including its authorized flag.
func (r Repo) PersistSessionKey(ctx context.Context, key domain.SessionKey) error {
	if key.OwnerNodeID == "" {
		return errors.New("owner node id required")
	}
	if key.AccountAddress == "" {
		return errors.New("account address required")
	}
	var scopeJSON any
	if key.Scope != nil {
		b, err := json.Marshal(key.Scope)
		if err != nil {
			return fmt.Errorf("marshal session key scope: %w", err)
		}
		scopeJSON = string(b)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO session_keys(owner_node_id,account_address,private_key,public_address,created_at,expires_at,authorized,scope_json)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(owner_node_id,account_address) DO UPDATE SET
			private_key=excluded.private_key, public_address=excluded.public_address,
			created_at=excluded.created_at, expires_at=excluded.expires_at,
			authorized=excluded.authorized, scope_json=excluded.scope_json`,
		key.OwnerNodeID, normalizeAccount(key.AccountAddress), key.PrivateKey, key.PublicAddress,
		key.CreatedAt, key.ExpiresAt, boolToInt(key.Authorized), scopeJSON)
	if err != nil {
		return fmt.Errorf("persist session key: %w", err)
	}
	return nil
}

// GetSessionKey returns the usable key for (nodeID, account), or nil.
// An expired record is deleted as a side effect (lazy expiry; there is
// no background timer). A record that exists but was never authorized
// is also reported as nil: it is not valid for use until the explicit
// authorize step succeeds.
func (r Repo) GetSessionKey(ctx context.Context, nodeID, account string) (*domain.SessionKey, error) {
	key, err := r.rawSessionKey(ctx, nodeID, account)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	exp, err := time.Parse(time.RFC3339, key.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("session key %s/%s expiry: %w", nodeID, account, err)
	}
	if r.now().After(exp) {
		if err := r.RevokeSessionKey(ctx, nodeID, account); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if !key.Authorized {
		return nil, nil
	}
	return &key, nil
}

// PeekSessionKey returns the stored record regardless of expiry or
// authorization state. CLI inspection only; use GetSessionKey to
// decide whether a key may sign.
func (r Repo) PeekSessionKey(ctx context.Context, nodeID, account string) (domain.SessionKey, error) {
	return r.rawSessionKey(ctx, nodeID, account)
}

func (r Repo) rawSessionKey(ctx context.Context, nodeID, account string) (domain.SessionKey, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT owner_node_id,account_address,private_key,public_address,created_at,expires_at,authorized,scope_json
		FROM session_keys WHERE owner_node_id=? AND account_address=?`, nodeID, normalizeAccount(account))
	return scanSessionKey(row.Scan)
}

func scanSessionKey(scan func(...any) error) (domain.SessionKey, error) {
	var key domain.SessionKey
	var authorized int
	var scopeJSON sql.NullString
	err := scan(&key.OwnerNodeID, &key.AccountAddress, &key.PrivateKey, &key.PublicAddress,
		&key.CreatedAt, &key.ExpiresAt, &authorized, &scopeJSON)
	if err == sql.ErrNoRows {
		return key, ErrNotFound
	}
	if err != nil {
		return key, err
	}
	key.Authorized = authorized != 0
	if scopeJSON.Valid && scopeJSON.String != "" {
		var scope domain.SessionKeyScope
		if err := json.Unmarshal([]byte(scopeJSON.String), &scope); err != nil {
			return key, fmt.Errorf("session key scope: %w", err)
		}
		key.Scope = &scope
	}
	return key, nil
}

// AuthorizeSessionKey flips the authorized flag. Returns false when no
// record exists; it never creates one. Callers must only invoke this
// after exactly one successful external approval.
func (r Repo) AuthorizeSessionKey(ctx context.Context, nodeID, account string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE session_keys SET authorized=1 WHERE owner_node_id=? AND account_address=?`,
		nodeID, normalizeAccount(account))
	if err != nil {
		return false, fmt.Errorf("authorize session key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeSessionKey deletes the record unconditionally.
func (r Repo) RevokeSessionKey(ctx context.Context, nodeID, account string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM session_keys WHERE owner_node_id=? AND account_address=?`,
		nodeID, normalizeAccount(account))
	if err != nil {
		return fmt.Errorf("revoke session key: %w", err)
	}
	return nil
}

// SweepExpiredSessionKeys deletes every record past its expiry and
// returns the count removed. Intended to run once per process start.
func (r Repo) SweepExpiredSessionKeys(ctx context.Context) (int, error) {
	cutoff := r.now().UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx, `DELETE FROM session_keys WHERE expires_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep session keys: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListSessionKeys returns all stored keys with private material
// blanked, for CLI/API listing.
func (r Repo) ListSessionKeys(ctx context.Context) ([]domain.SessionKey, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT owner_node_id,account_address,private_key,public_address,created_at,expires_at,authorized,scope_json
		FROM session_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []domain.SessionKey
	for rows.Next() {
		key, err := scanSessionKey(rows.Scan)
		if err != nil {
			return nil, err
		}
		key.PrivateKey = ""
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
