package keyauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveSecret expands the master authentication secret into a per-key
// MAC secret. Keys created this way need no secret column at all: the
// store never holds raw signing material.
func DeriveSecret(master []byte, keyID string) []byte {
	r := hkdf.New(sha256.New, master, nil, []byte("sentra/api-key/"+keyID))
	out := make([]byte, 32)
	if _, err := io.ReadFull(r, out); err != nil {
		// hkdf only fails after ~8k bytes of output; 32 is always fine
		panic(err)
	}
	return out
}

// NewKeyID generates a fresh key identifier in wire format.
func NewKeyID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return KeyIDPrefix + hex.EncodeToString(b)
}
