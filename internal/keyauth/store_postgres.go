package keyauth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sentra-io/sentra-backend/internal/authz"
)

// PostgresKeyStore reads the api_keys table through sqlx.
type PostgresKeyStore struct {
	db *sqlx.DB
}

func NewPostgresKeyStore(db *sqlx.DB) *PostgresKeyStore {
	return &PostgresKeyStore{db: db}
}

type keyRow struct {
	ID          string          `db:"id"`
	OrgID       string          `db:"organization_id"`
	SubjectID   string          `db:"subject_id"`
	Name        string          `db:"name"`
	Roles       json.RawMessage `db:"roles"`
	Permissions json.RawMessage `db:"permissions"`
	Plan        string          `db:"plan"`
	ExpiresAt   *time.Time      `db:"expires_at"`
	RevokedAt   *time.Time      `db:"revoked_at"`
	LastUsedAt  *time.Time      `db:"last_used_at"`
	CreatedAt   time.Time       `db:"created_at"`
}

const keyColumns = `id, organization_id, subject_id, name, roles, permissions, plan, expires_at, revoked_at, last_used_at, created_at`

func (s *PostgresKeyStore) Lookup(ctx context.Context, keyID string) (*KeyRecord, error) {
	var row keyRow
	err := s.db.GetContext(ctx, &row, `SELECT `+keyColumns+` FROM api_keys WHERE id=$1 AND revoked_at IS NULL LIMIT 1`, keyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyStoreUnavailable, err)
	}
	return row.toRecord()
}

func (s *PostgresKeyStore) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at=$1 WHERE id=$2`, at, keyID)
	return err
}

// Create inserts a new key record.
func (s *PostgresKeyStore) Create(ctx context.Context, rec *KeyRecord) error {
	roles, err := json.Marshal(rec.Roles)
	if err != nil {
		return err
	}
	perms, err := json.Marshal(rec.Permissions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO api_keys(id, organization_id, subject_id, name, roles, permissions, plan, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, rec.OrgID, rec.SubjectID, rec.Name, roles, perms, rec.Plan, rec.ExpiresAt, rec.CreatedAt)
	return err
}

// Revoke soft-deletes a key; revoked keys vanish from Lookup.
func (s *PostgresKeyStore) Revoke(ctx context.Context, keyID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET revoked_at=NOW() WHERE id=$1 AND revoked_at IS NULL`, keyID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r keyRow) toRecord() (*KeyRecord, error) {
	rec := &KeyRecord{
		ID:         r.ID,
		OrgID:      r.OrgID,
		SubjectID:  r.SubjectID,
		Name:       r.Name,
		Plan:       r.Plan,
		ExpiresAt:  r.ExpiresAt,
		RevokedAt:  r.RevokedAt,
		LastUsedAt: r.LastUsedAt,
		CreatedAt:  r.CreatedAt,
	}
	if len(r.Roles) > 0 {
		if err := json.Unmarshal(r.Roles, &rec.Roles); err != nil {
			return nil, fmt.Errorf("keyauth: bad roles column for %s: %w", r.ID, err)
		}
	}
	if len(r.Permissions) > 0 {
		if err := json.Unmarshal(r.Permissions, &rec.Permissions); err != nil {
			return nil, fmt.Errorf("keyauth: bad permissions column for %s: %w", r.ID, err)
		}
		compiled, err := authz.CompilePermissions(rec.Permissions)
		if err != nil {
			return nil, fmt.Errorf("keyauth: key %s: %w", r.ID, err)
		}
		rec.Permissions = compiled
	}
	return rec, nil
}
