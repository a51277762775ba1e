package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Case represents the 'cases' table: the sample business resource the
// authorization pipeline fronts.
type Case struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	OwnerID        string    `db:"owner_id" json:"owner_id"`
	Title          string    `db:"title" json:"title"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ErrCaseNotFound is returned when a case id has no row.
var ErrCaseNotFound = errors.New("case not found")

// CaseRepo is the opaque record store the business handlers read through.
type CaseRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*Case, error)
	List(ctx context.Context, orgID string, limit int) ([]Case, error)
	Create(ctx context.Context, c *Case) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type PostgresCaseRepo struct {
	db *sqlx.DB
}

func NewPostgresCaseRepo(db *sqlx.DB) *PostgresCaseRepo {
	return &PostgresCaseRepo{db: db}
}

func (r *PostgresCaseRepo) Get(ctx context.Context, id uuid.UUID) (*Case, error) {
	var c Case
	err := r.db.GetContext(ctx, &c, `SELECT id, organization_id, owner_id, title, status, created_at, updated_at FROM cases WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresCaseRepo) List(ctx context.Context, orgID string, limit int) ([]Case, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	cases := []Case{}
	err := r.db.SelectContext(ctx, &cases, `SELECT id, organization_id, owner_id, title, status, created_at, updated_at FROM cases WHERE organization_id=$1 ORDER BY created_at DESC LIMIT $2`, orgID, limit)
	return cases, err
}

func (r *PostgresCaseRepo) Create(ctx context.Context, c *Case) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO cases(id, organization_id, owner_id, title, status, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.OrganizationID, c.OwnerID, c.Title, c.Status, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *PostgresCaseRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cases WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCaseNotFound
	}
	return nil
}

// MemoryCaseRepo backs tests and sink-less local runs.
type MemoryCaseRepo struct {
	mu    sync.RWMutex
	cases map[uuid.UUID]Case
}

func NewMemoryCaseRepo() *MemoryCaseRepo {
	return &MemoryCaseRepo{cases: make(map[uuid.UUID]Case)}
}

func (r *MemoryCaseRepo) Get(ctx context.Context, id uuid.UUID) (*Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	return &c, nil
}

func (r *MemoryCaseRepo) List(ctx context.Context, orgID string, limit int) ([]Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Case{}
	for _, c := range r.cases {
		if c.OrganizationID == orgID {
			out = append(out, c)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryCaseRepo) Create(ctx context.Context, c *Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases[c.ID] = *c
	return nil
}

func (r *MemoryCaseRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cases[id]; !ok {
		return ErrCaseNotFound
	}
	delete(r.cases, id)
	return nil
}
