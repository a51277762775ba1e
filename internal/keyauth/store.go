package keyauth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sentra-io/sentra-backend/internal/authz"
)

// KeyRecord is the credential-store view of one API key.
type KeyRecord struct {
	ID          string
	OrgID       string
	SubjectID   string
	Name        string
	Roles       []string
	Permissions []authz.Permission
	Plan        string
	ExpiresAt   *time.Time
	RevokedAt   *time.Time
	LastUsedAt  *time.Time
	CreatedAt   time.Time
}

// ErrKeyStoreUnavailable marks infrastructure failures, as opposed to the
// authentication verdicts in errors.go. Authentication fails closed on it.
var ErrKeyStoreUnavailable = errors.New("key store unavailable")

// KeyStore resolves key identifiers to metadata. Implementations must be
// safe for concurrent reads; the pipeline adds no locking.
type KeyStore interface {
	Lookup(ctx context.Context, keyID string) (*KeyRecord, error)
	TouchLastUsed(ctx context.Context, keyID string, at time.Time) error
}

// MemoryKeyStore serves tests and storage-free local runs.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*KeyRecord
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]*KeyRecord)}
}

func (s *MemoryKeyStore) Put(rec *KeyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.keys[rec.ID] = &cp
}

// Create mirrors the Postgres store's management surface.
func (s *MemoryKeyStore) Create(ctx context.Context, rec *KeyRecord) error {
	s.Put(rec)
	return nil
}

// Revoke soft-deletes a key.
func (s *MemoryKeyStore) Revoke(ctx context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.keys[keyID]
	if !ok || rec.RevokedAt != nil {
		return ErrNotFound
	}
	now := time.Now()
	rec.RevokedAt = &now
	return nil
}

func (s *MemoryKeyStore) Lookup(ctx context.Context, keyID string) (*KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.keys[keyID]
	if !ok || rec.RevokedAt != nil {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryKeyStore) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.keys[keyID]; ok {
		t := at
		rec.LastUsedAt = &t
	}
	return nil
}
