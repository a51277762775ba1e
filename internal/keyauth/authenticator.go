package keyauth

import (
	"context"
	"crypto/hmac"
	"fmt"
	"log"
	"time"

	"github.com/sentra-io/sentra-backend/internal/authz"
)

// Authenticator verifies client-presented credentials against the key
// store and the master secret. All checks that can fail without the store
// run first, so malformed or stale input never generates a lookup.
type Authenticator struct {
	store  KeyStore
	master []byte
	now    func() time.Time
}

func NewAuthenticator(store KeyStore, masterSecret []byte) *Authenticator {
	return &Authenticator{store: store, master: masterSecret, now: time.Now}
}

// WithClock overrides the time source. Tests only.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// Authenticate resolves a raw credential to a Principal.
//
// An empty credential is not a failure: some routes are intentionally
// public, so the anonymous principal is returned and the allow/deny call
// is left to the permission evaluator.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (authz.Principal, error) {
	if raw == "" {
		return authz.Principal{}, nil
	}

	cred, err := ParseCredential(raw)
	if err != nil {
		return authz.Principal{}, err
	}
	now := a.now()
	if !cred.Fresh(now) {
		return authz.Principal{}, fmt.Errorf("%w: timestamp outside freshness window", ErrExpired)
	}

	key, err := a.store.Lookup(ctx, cred.KeyID)
	if err != nil {
		return authz.Principal{}, err
	}
	if key.ExpiresAt != nil && now.After(*key.ExpiresAt) {
		return authz.Principal{}, fmt.Errorf("%w: key expired", ErrExpired)
	}

	expected := Sign(cred.KeyID, cred.IssuedAt, DeriveSecret(a.master, cred.KeyID))
	if !hmac.Equal([]byte(expected), []byte(cred.Signature)) {
		return authz.Principal{}, ErrInvalidSignature
	}

	// Best effort; a failed touch must not fail the request.
	go func() {
		tctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.store.TouchLastUsed(tctx, key.ID, now); err != nil {
			log.Printf("keyauth: touch last_used for %s: %v", key.ID, err)
		}
	}()

	subject := key.SubjectID
	if subject == "" {
		subject = key.ID
	}
	return authz.Principal{
		ID:          subject,
		OrgID:       key.OrgID,
		KeyID:       key.ID,
		Roles:       key.Roles,
		Permissions: key.Permissions,
		Plan:        key.Plan,
	}, nil
}
