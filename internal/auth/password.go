package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// CredentialStore hashes and verifies password credentials using bcrypt with
// a configurable work factor. The per-hash salt is embedded in the output by
// the primitive itself.
type CredentialStore struct {
	cost int
}

// NewCredentialStore validates the cost factor up front; an out-of-range cost
// is a configuration error, not something to fix per request.
func NewCredentialStore(cost int) (*CredentialStore, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: bcrypt cost %d out of range [%d,%d]", ErrInvalidInput, cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &CredentialStore{cost: cost}, nil
}

// Hash produces a salted one-way hash of the password. Passwords longer than
// bcrypt's 72-byte input bound are pre-digested so no suffix is silently
// ignored.
func (c *CredentialStore) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(normalizePassword(password), c.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify compares a plaintext password against a stored hash. Any mismatch,
// including an empty or malformed stored hash, reports ErrInvalidCredentials;
// the password itself never appears in errors or logs.
func (c *CredentialStore) Verify(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), normalizePassword(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func normalizePassword(password string) []byte {
	if len(password) <= 72 {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.RawStdEncoding.EncodeToString(sum[:]))
}
