package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTTL = 1 * time.Hour

	// TokenTypeAccess marks access tokens; refresh tokens are opaque and
	// never pass through the codec.
	TokenTypeAccess = "access"
)

// Service ties the codec, credential store and session registry together
// into the portal's login/refresh/authenticate flows.
type Service struct {
	store     Store
	codec     *Codec
	creds     *CredentialStore
	sessions  *SessionRegistry
	sink      AuditSink
	accessTTL time.Duration
	now       func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithAuditSink routes security events to the given sink.
func WithAuditSink(sink AuditSink) ServiceOption {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the auth service. All collaborators are required;
// a nil dependency is a wiring bug surfaced at startup.
func NewService(store Store, codec *Codec, creds *CredentialStore, sessions *SessionRegistry, opts ...ServiceOption) (*Service, error) {
	if store == nil || codec == nil || creds == nil || sessions == nil {
		return nil, errors.New("auth: store, codec, credential store and session registry are required")
	}
	s := &Service{
		store:     store,
		codec:     codec,
		creds:     creds,
		sessions:  sessions,
		sink:      NopSink{},
		accessTTL: defaultAccessTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TokenPair is what a successful login or refresh hands back to the client.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Register creates an account with a hashed credential and the given roles.
func (s *Service) Register(ctx context.Context, orgID, email, password string, roles ...Role) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := s.creds.Hash(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		OrganizationID: orgID,
		Email:          email,
		PasswordHash:   hash,
		Status:         UserStatusActive,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	for _, role := range roles {
		if err := s.store.Roles(ctx).Assign(ctx, user.ID, role); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// Login authenticates credentials and mints a token pair. Unknown user,
// wrong password and disabled account are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string, meta ClientMeta) (TokenPair, Principal, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		s.sink.Emit(ctx, EventLoginFailure, map[string]any{"reason": "missing_credentials", "ip": meta.IP})
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.sink.Emit(ctx, EventLoginFailure, map[string]any{"reason": "bad_credentials", "ip": meta.IP})
			return TokenPair{}, Principal{}, ErrInvalidCredentials
		}
		return TokenPair{}, Principal{}, err
	}
	if user.Status != UserStatusActive {
		s.sink.Emit(ctx, EventLoginFailure, map[string]any{"reason": "account_disabled", "user_id": user.ID, "ip": meta.IP})
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	if err := s.creds.Verify(user.PasswordHash, password); err != nil {
		s.sink.Emit(ctx, EventLoginFailure, map[string]any{"reason": "bad_credentials", "user_id": user.ID, "ip": meta.IP})
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}

	principal, err := s.principalFor(ctx, user)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	pair, err := s.mint(ctx, principal, meta)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	s.sink.Emit(ctx, EventLoginSuccess, map[string]any{"user_id": user.ID, "ip": meta.IP})
	return pair, principal, nil
}

// Authenticate resolves a bearer token into a Principal. Roles come from the
// authoritative store, not the token, so revoking a role takes effect before
// the token expires. Idempotent and side-effect free.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	if claims.TokenType != TokenTypeAccess {
		return Principal{}, ErrBadPayload
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}
	if user.Status != UserStatusActive {
		return Principal{}, ErrUnauthenticated
	}
	return s.principalFor(ctx, user)
}

// Refresh rotates a refresh token and mints a fresh access token. Reuse of a
// spent token is treated as replay: the principal's remaining sessions are
// revoked and the caller gets ErrTokenAlreadyUsed.
func (s *Service) Refresh(ctx context.Context, raw string, meta ClientMeta) (TokenPair, Principal, error) {
	newRaw, rec, err := s.sessions.Rotate(ctx, raw, meta)
	if err != nil {
		if errors.Is(err, ErrTokenAlreadyUsed) {
			s.handleReplay(ctx, raw, meta)
		}
		return TokenPair{}, Principal{}, err
	}
	user, err := s.store.Users(ctx).Find(ctx, rec.UserID)
	if err != nil || user.Status != UserStatusActive {
		// The account vanished or was disabled between issuance and refresh;
		// drop the freshly minted session and fail closed.
		_ = s.sessions.Revoke(ctx, newRaw)
		return TokenPair{}, Principal{}, ErrUnauthenticated
	}
	principal, err := s.principalFor(ctx, user)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	access, accessExp, err := s.signAccess(principal)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	s.sink.Emit(ctx, EventTokenRefresh, map[string]any{"user_id": user.ID, "ip": meta.IP})
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     newRaw,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
	}, principal, nil
}

func (s *Service) handleReplay(ctx context.Context, raw string, meta ClientMeta) {
	fields := map[string]any{"ip": meta.IP}
	if userID, err := s.sessions.Owner(ctx, raw); err == nil {
		fields["user_id"] = userID
		if count, err := s.sessions.RevokeAll(ctx, userID); err == nil {
			fields["revoked_sessions"] = count
		}
	}
	s.sink.Emit(ctx, EventRefreshReplay, fields)
}

// Logout revokes a single refresh token. Idempotent.
func (s *Service) Logout(ctx context.Context, raw string) error {
	if err := s.sessions.Revoke(ctx, raw); err != nil {
		return err
	}
	s.sink.Emit(ctx, EventTokenRevoked, map[string]any{"scope": "single"})
	return nil
}

// LogoutAll revokes every refresh token of the principal.
func (s *Service) LogoutAll(ctx context.Context, userID string) (int, error) {
	count, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.sink.Emit(ctx, EventTokenRevoked, map[string]any{"scope": "all", "user_id": userID, "count": count})
	return count, nil
}

// ChangePassword verifies the current credential, stores a new hash and
// revokes all existing sessions so stolen refresh tokens die with the old
// password.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if next == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if err := s.creds.Verify(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := s.creds.Hash(next)
	if err != nil {
		return err
	}
	if err := s.store.Users(ctx).UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	count, _ := s.sessions.RevokeAll(ctx, userID)
	s.sink.Emit(ctx, EventTokenRevoked, map[string]any{"scope": "password_change", "user_id": userID, "count": count})
	return nil
}

// Authorize evaluates the access policy and audits denials. The evaluation
// itself is pure; only the audit emission is a side effect.
func (s *Service) Authorize(ctx context.Context, principal Principal, action Action, resource ResourceDescriptor) Decision {
	decision := Evaluate(principal, action, resource)
	if !decision.Allowed {
		s.sink.Emit(ctx, EventAccessDenied, map[string]any{
			"user_id":       principal.ID,
			"action":        string(action),
			"resource_kind": string(resource.Kind),
			"resource_id":   resource.ID,
			"reason":        string(decision.Reason),
		})
	}
	return decision
}

// Sessions exposes the registry for the expiry sweep and admin tooling.
func (s *Service) Sessions() *SessionRegistry {
	return s.sessions
}

func (s *Service) principalFor(ctx context.Context, user *User) (Principal, error) {
	roles, err := s.store.Roles(ctx).RolesForUser(ctx, user.ID)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(user, NewRoleSet(roles...)), nil
}

func (s *Service) mint(ctx context.Context, principal Principal, meta ClientMeta) (TokenPair, error) {
	access, accessExp, err := s.signAccess(principal)
	if err != nil {
		return TokenPair{}, err
	}
	rawRefresh, rec, err := s.sessions.Issue(ctx, principal.ID, meta)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     rawRefresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

func (s *Service) signAccess(principal Principal) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.accessTTL)
	claims := Claims{
		Roles:          principal.Roles.Strings(),
		OrganizationID: principal.OrganizationID,
		TokenType:      TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := s.codec.Issue(claims, s.accessTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}
