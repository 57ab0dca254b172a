package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"careportal.org/internal/ids"
)

// refreshTokenBytes is the raw entropy of a refresh token (256 bits).
const refreshTokenBytes = 32

// SessionRegistry owns the refresh-token lifecycle:
// Issued -> consumed-by-rotation | revoked | expired.
// Raw token values exist only in transit; the registry stores and looks up
// records exclusively by SHA-256 hash.
type SessionRegistry struct {
	store RefreshTokenStore
	ttl   time.Duration
	now   func() time.Time
}

// RegistryOption configures a SessionRegistry.
type RegistryOption func(*SessionRegistry)

// WithRegistryClock overrides the time source (useful for tests).
func WithRegistryClock(fn func() time.Time) RegistryOption {
	return func(r *SessionRegistry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewSessionRegistry constructs a registry over the given store.
func NewSessionRegistry(store RefreshTokenStore, ttl time.Duration, opts ...RegistryOption) (*SessionRegistry, error) {
	if store == nil {
		return nil, errors.New("auth: refresh token store is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: refresh ttl must be greater than zero", ErrInvalidInput)
	}
	r := &SessionRegistry{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// HashToken derives the storage key for a raw refresh token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Issue mints a fresh refresh token for the principal and persists its hash.
// The raw value is returned exactly once and is unrecoverable thereafter.
func (r *SessionRegistry) Issue(ctx context.Context, userID string, meta ClientMeta) (string, *RefreshToken, error) {
	raw, err := generateRefreshSecret()
	if err != nil {
		return "", nil, err
	}
	now := r.now().UTC()
	rec := &RefreshToken{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: HashToken(raw),
		IssuedAt:  now,
		ExpiresAt: now.Add(r.ttl),
		ClientIP:  meta.IP,
		UserAgent: meta.UserAgent,
	}
	if err := r.store.Create(ctx, rec); err != nil {
		return "", nil, err
	}
	return raw, rec, nil
}

// Validate resolves a raw token to its principal. Only an existing,
// unconsumed, unrevoked, unexpired record validates.
func (r *SessionRegistry) Validate(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", ErrTokenNotFound
	}
	rec, err := r.store.FindByHash(ctx, HashToken(raw))
	if err != nil {
		return "", err
	}
	if rec.Consumed {
		return "", ErrTokenAlreadyUsed
	}
	if !rec.Active(r.now().UTC()) {
		return "", ErrTokenNotFound
	}
	return rec.UserID, nil
}

// Rotate atomically spends the old token and issues a replacement bound to
// the same principal. Under concurrent rotation of the same raw token the
// store's conditional consume admits exactly one winner; the loser fails
// closed with ErrTokenAlreadyUsed.
func (r *SessionRegistry) Rotate(ctx context.Context, raw string, meta ClientMeta) (string, *RefreshToken, error) {
	if raw == "" {
		return "", nil, ErrTokenNotFound
	}
	old, err := r.store.Consume(ctx, HashToken(raw), r.now().UTC())
	if err != nil {
		return "", nil, err
	}
	return r.Issue(ctx, old.UserID, meta)
}

// Owner reports which principal a raw token belongs to, regardless of its
// state. Used to attribute replay attempts; never to authenticate.
func (r *SessionRegistry) Owner(ctx context.Context, raw string) (string, error) {
	rec, err := r.store.FindByHash(ctx, HashToken(raw))
	if err != nil {
		return "", err
	}
	return rec.UserID, nil
}

// Revoke deletes the record for a raw token. Idempotent: revoking an unknown
// or already-revoked token is not an error.
func (r *SessionRegistry) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	if err := r.store.Revoke(ctx, HashToken(raw)); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return err
	}
	return nil
}

// RevokeAll deletes every record belonging to the principal.
func (r *SessionRegistry) RevokeAll(ctx context.Context, userID string) (int, error) {
	return r.store.RevokeAllForUser(ctx, userID)
}

// SweepExpired removes records past their expiry, consumed ones included.
func (r *SessionRegistry) SweepExpired(ctx context.Context) (int, error) {
	return r.store.DeleteExpired(ctx, r.now().UTC())
}

func generateRefreshSecret() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
