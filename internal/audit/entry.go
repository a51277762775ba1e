package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType is the coarse classification of one recorded request.
type EventType string

const (
	EventAuthSuccess      EventType = "auth_success"
	EventAuthFailure      EventType = "auth_failure"
	EventPermissionDenied EventType = "permission_denied"
	EventRateLimited      EventType = "rate_limited"
	EventDataRead         EventType = "data_read"
	EventDataCreate       EventType = "data_create"
	EventDataUpdate       EventType = "data_update"
	EventDataDelete       EventType = "data_delete"
	EventAdminAction      EventType = "admin_action"
	EventError            EventType = "error"
)

// Entry is the immutable record of one pipeline decision. Body and Query
// are already sanitized by the time an Entry exists.
type Entry struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	Time        time.Time         `json:"time" db:"time"`
	RequestID   string            `json:"request_id" db:"request_id"`
	PrincipalID string            `json:"principal_id,omitempty" db:"principal_id"`
	OrgID       string            `json:"org_id,omitempty" db:"org_id"`
	KeyID       string            `json:"key_id,omitempty" db:"key_id"`
	Method      string            `json:"method" db:"method"`
	Path        string            `json:"path" db:"path"`
	Query       map[string]string `json:"query,omitempty" db:"-"`
	Body        any               `json:"body,omitempty" db:"-"`
	Status      int               `json:"status" db:"status"`
	Event       EventType         `json:"event" db:"event"`
	Error       string            `json:"error,omitempty" db:"error"`
	ClientIP    string            `json:"client_ip,omitempty" db:"client_ip"`
	UserAgent   string            `json:"user_agent,omitempty" db:"user_agent"`
	DurationMS  int64             `json:"duration_ms" db:"duration_ms"`
	Metadata    map[string]any    `json:"metadata,omitempty" db:"-"`
}

// Filter narrows Query results.
type Filter struct {
	OrgID string
	Event EventType
	From  time.Time
	To    time.Time
	Limit int
}

// ErrQueryUnsupported marks sinks that are write-only from this process
// (the NATS publisher; readers live on the other side of the subject).
var ErrQueryUnsupported = errors.New("audit sink does not support queries")

// Sink persists audit entries. Implementations must tolerate concurrent
// appends and must not assume the caller awaits completion.
type Sink interface {
	Store(ctx context.Context, e Entry) error
	Query(ctx context.Context, f Filter) ([]Entry, error)
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
}

// MemorySink keeps entries in memory. Used by tests and as the default
// sink when no backend is configured.
type MemorySink struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Store(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemorySink) Query(ctx context.Context, f Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Entry{}
	for _, e := range s.entries {
		if matchFilter(e, f) {
			out = append(out, e)
		}
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemorySink) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	var removed int64
	for _, e := range s.entries {
		if e.Time.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed, nil
}

// Entries returns a copy of everything stored. Tests only.
func (s *MemorySink) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func matchFilter(e Entry, f Filter) bool {
	if f.OrgID != "" && e.OrgID != f.OrgID {
		return false
	}
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if !f.From.IsZero() && e.Time.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Time.After(f.To) {
		return false
	}
	return true
}
