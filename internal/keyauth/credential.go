package keyauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Credential wire format: <key id>.<unix ms>.<signature>
// where the key id is "sk_" plus 16 hex characters, the timestamp is a
// decimal unix-milliseconds string, and the signature is the lowercase
// hex HMAC-SHA256 of "<key id>.<unix ms>" under the key's secret.
const (
	KeyIDPrefix = "sk_"
	keyIDLen    = len(KeyIDPrefix) + 16
	sigHexLen   = sha256.Size * 2

	// Freshness window bounding replay exposure.
	MaxCredentialAge = 5 * time.Minute
	MaxClockSkew     = 60 * time.Second
)

// Credential is a parsed, not yet verified, client credential.
type Credential struct {
	KeyID     string
	IssuedAt  time.Time
	Signature string
}

// ParseCredential splits and structurally validates a raw credential.
// All structural failures are ErrInvalidFormat; nothing here touches the
// credential store.
func ParseCredential(raw string) (Credential, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Credential{}, fmt.Errorf("%w: expected 3 segments, got %d", ErrInvalidFormat, len(parts))
	}
	id, ts, sig := parts[0], parts[1], parts[2]
	if !strings.HasPrefix(id, KeyIDPrefix) || len(id) != keyIDLen {
		return Credential{}, fmt.Errorf("%w: bad key identifier", ErrInvalidFormat)
	}
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || ms <= 0 {
		return Credential{}, fmt.Errorf("%w: bad timestamp", ErrInvalidFormat)
	}
	if len(sig) != sigHexLen {
		return Credential{}, fmt.Errorf("%w: bad signature length", ErrInvalidFormat)
	}
	if _, err := hex.DecodeString(sig); err != nil {
		return Credential{}, fmt.Errorf("%w: signature is not hex", ErrInvalidFormat)
	}
	return Credential{KeyID: id, IssuedAt: time.UnixMilli(ms), Signature: strings.ToLower(sig)}, nil
}

// Fresh reports whether the credential timestamp is inside the replay
// window relative to now.
func (c Credential) Fresh(now time.Time) bool {
	age := now.Sub(c.IssuedAt)
	return age <= MaxCredentialAge && age >= -MaxClockSkew
}

// Sign computes the expected signature for (keyID, issuedAt) under secret.
func Sign(keyID string, issuedAt time.Time, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s.%d", keyID, issuedAt.UnixMilli())
	return hex.EncodeToString(mac.Sum(nil))
}

// MintCredential assembles a complete credential string. Clients normally
// do this themselves; the helper exists for the SDK and tests.
func MintCredential(keyID string, issuedAt time.Time, secret []byte) string {
	return fmt.Sprintf("%s.%d.%s", keyID, issuedAt.UnixMilli(), Sign(keyID, issuedAt, secret))
}
