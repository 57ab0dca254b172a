package auth

import "context"

// Audit event names emitted by the Service. Events never carry the signing
// secret, passwords, or raw refresh tokens.
const (
	EventLoginSuccess  = "login_success"
	EventLoginFailure  = "login_failure"
	EventTokenRefresh  = "token_refresh"
	EventTokenRevoked  = "token_revoked"
	EventAccessDenied  = "access_denied"
	EventRefreshReplay = "refresh_replay"
)

// AuditSink receives security-relevant events. Implementations must not
// block request handling on delivery.
type AuditSink interface {
	Emit(ctx context.Context, event string, fields map[string]any)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(context.Context, string, map[string]any) {}
