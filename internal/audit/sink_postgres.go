package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresSink appends entries to the audit_logs table.
type PostgresSink struct {
	db *sqlx.DB
}

func NewPostgresSink(db *sqlx.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

type auditRow struct {
	ID          string          `db:"id"`
	Time        time.Time       `db:"time"`
	RequestID   string          `db:"request_id"`
	PrincipalID string          `db:"principal_id"`
	OrgID       string          `db:"org_id"`
	KeyID       string          `db:"key_id"`
	Method      string          `db:"method"`
	Path        string          `db:"path"`
	Status      int             `db:"status"`
	Event       string          `db:"event"`
	Error       string          `db:"error"`
	ClientIP    string          `db:"client_ip"`
	UserAgent   string          `db:"user_agent"`
	DurationMS  int64           `db:"duration_ms"`
	Details     json.RawMessage `db:"details"`
}

type entryDetails struct {
	Query    map[string]string `json:"query,omitempty"`
	Body     any               `json:"body,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

func (s *PostgresSink) Store(ctx context.Context, e Entry) error {
	details, err := json.Marshal(entryDetails{Query: e.Query, Body: e.Body, Metadata: e.Metadata})
	if err != nil {
		return fmt.Errorf("audit: marshal details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO audit_logs(id, time, request_id, principal_id, org_id, key_id, method, path, status, event, error, client_ip, user_agent, duration_ms, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		e.ID, e.Time, e.RequestID, e.PrincipalID, e.OrgID, e.KeyID, e.Method, e.Path, e.Status, string(e.Event), e.Error, e.ClientIP, e.UserAgent, e.DurationMS, details)
	return err
}

func (s *PostgresSink) Query(ctx context.Context, f Filter) ([]Entry, error) {
	clauses := []string{"1=1"}
	args := []any{}
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if f.OrgID != "" {
		clauses = append(clauses, "org_id="+arg(f.OrgID))
	}
	if f.Event != "" {
		clauses = append(clauses, "event="+arg(string(f.Event)))
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "time >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "time <= "+arg(f.To))
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `SELECT id, time, request_id, principal_id, org_id, key_id, method, path, status, event, error, client_ip, user_agent, duration_ms, details FROM audit_logs WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY time DESC LIMIT ` + arg(limit)

	rows := []auditRow{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntry())
	}
	return out, nil
}

func (s *PostgresSink) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE time < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r auditRow) toEntry() Entry {
	e := Entry{
		RequestID:   r.RequestID,
		Time:        r.Time,
		PrincipalID: r.PrincipalID,
		OrgID:       r.OrgID,
		KeyID:       r.KeyID,
		Method:      r.Method,
		Path:        r.Path,
		Status:      r.Status,
		Event:       EventType(r.Event),
		Error:       r.Error,
		ClientIP:    r.ClientIP,
		UserAgent:   r.UserAgent,
		DurationMS:  r.DurationMS,
	}
	if id, err := uuid.Parse(r.ID); err == nil {
		e.ID = id
	}
	if len(r.Details) > 0 {
		var d entryDetails
		if err := json.Unmarshal(r.Details, &d); err == nil {
			e.Query = d.Query
			e.Body = d.Body
			e.Metadata = d.Metadata
		}
	}
	return e
}
