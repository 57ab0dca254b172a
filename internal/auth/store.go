package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	Audit(ctx context.Context) AuditStore
}

// UserStore manages account records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// RoleStore is the authoritative source of a user's portal roles.
type RoleStore interface {
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
	Assign(ctx context.Context, userID string, role Role) error
	Remove(ctx context.Context, userID string, role Role) error
}

// RefreshTokenStore manages refresh token records, always keyed by token
// hash, never by raw value.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	FindByHash(ctx context.Context, hash string) (*RefreshToken, error)
	// Consume spends the record iff it is currently active. The conditional
	// update guarantees exactly one winner under concurrent rotation; the
	// loser gets ErrTokenAlreadyUsed when the record was spent and
	// ErrTokenNotFound when no such record exists.
	Consume(ctx context.Context, hash string, now time.Time) (*RefreshToken, error)
	// Revoke deletes the record. Revoking an unknown hash is not an error.
	Revoke(ctx context.Context, hash string) error
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
	// DeleteExpired removes records past their expiry. Safe to run
	// concurrently with issuance: nothing it deletes can still validate.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// AuditStore appends immutable audit trail entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
}
