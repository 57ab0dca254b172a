package auth

import "time"

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User represents a portal account: a clinician, client, carer or staff
// member operating within an organization.
type User struct {
	ID             string
	OrganizationID string
	Email          string
	PasswordHash   string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RefreshToken is the persisted record of an issued refresh token. Only the
// SHA-256 hash of the raw value is ever stored, so a copy of the store cannot
// be replayed as live tokens.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ClientIP  string
	UserAgent string
	RevokedAt *time.Time
	// Consumed marks a record spent by rotation. A consumed record is kept
	// until the expiry sweep so replays can be told apart from unknown tokens.
	Consumed bool
}

// Active reports whether the record may still authenticate a refresh.
func (t *RefreshToken) Active(now time.Time) bool {
	if t == nil {
		return false
	}
	return !t.Consumed && t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// ClientMeta carries per-session request metadata stored alongside a refresh
// token for audit and revocation UIs.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// AuditEntry is an append-only record of a security-relevant action.
type AuditEntry struct {
	ID           string            `json:"id,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
	ActorUserID  string            `json:"actor_user_id,omitempty"`
	ActorOrgID   string            `json:"actor_org_id,omitempty"`
	Event        string            `json:"event"`
	ResourceKind string            `json:"resource_kind,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
}
