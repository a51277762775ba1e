package audit

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func newMockSink(t *testing.T) (*PostgresSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresSink(sqlx.NewDb(db, "sqlmock")), mock
}

func TestPostgresSink_Store(t *testing.T) {
	sink, mock := newMockSink(t)
	e := Entry{
		ID:        uuid.New(),
		Time:      time.Now(),
		RequestID: "req-1",
		OrgID:     "org-1",
		Method:    "GET",
		Path:      "/v1/cases",
		Status:    200,
		Event:     EventDataRead,
		Query:     map[string]string{"limit": "10"},
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(e.ID, e.Time, e.RequestID, e.PrincipalID, e.OrgID, e.KeyID,
			e.Method, e.Path, e.Status, string(e.Event), e.Error, e.ClientIP,
			e.UserAgent, e.DurationMS, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := sink.Store(context.Background(), e); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresSink_QueryFilters(t *testing.T) {
	sink, mock := newMockSink(t)
	id := uuid.New()
	cols := []string{"id", "time", "request_id", "principal_id", "org_id", "key_id",
		"method", "path", "status", "event", "error", "client_ip", "user_agent", "duration_ms", "details"}
	rows := sqlmock.NewRows(cols).AddRow(
		id.String(), time.Now(), "req-1", "user-1", "org-1", "sk_abc",
		"GET", "/v1/cases", 200, "data_read", "", "10.0.0.1", "curl", 12,
		[]byte(`{"query":{"limit":"10"}}`))

	mock.ExpectQuery(regexp.QuoteMeta("org_id=$1 AND event=$2")).
		WithArgs("org-1", "data_read", 100).
		WillReturnRows(rows)

	got, err := sink.Query(context.Background(), Filter{OrgID: "org-1", Event: EventDataRead})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	e := got[0]
	if e.ID != id || e.OrgID != "org-1" || e.Event != EventDataRead {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.Query["limit"] != "10" {
		t.Fatalf("details not unpacked: %+v", e.Query)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresSink_QueryLimitClamped(t *testing.T) {
	sink, mock := newMockSink(t)
	mock.ExpectQuery("SELECT .* FROM audit_logs").
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := sink.Query(context.Background(), Filter{Limit: 5000}); err != nil {
		t.Fatalf("query: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresSink_Cleanup(t *testing.T) {
	sink, mock := newMockSink(t)
	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_logs WHERE time < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 42))

	n, err := sink.Cleanup(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 42 {
		t.Fatalf("removed = %d, want 42", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
