package auth

import "errors"

// Token verification failures. Each mode is distinct so callers can report
// precisely why a token was rejected; none of them is ever coerced into a
// silent "no user".
var (
	ErrMalformedToken = errors.New("auth: malformed token")
	ErrBadSignature   = errors.New("auth: bad token signature")
	ErrBadPayload     = errors.New("auth: bad token payload")
	ErrExpired        = errors.New("auth: token expired")
)

// ErrInvalidCredentials covers unknown user, wrong password and disabled
// accounts alike so login responses cannot be used to enumerate accounts.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Refresh token lifecycle failures. ErrTokenAlreadyUsed means the token was
// spent by a rotation; seeing it again is a replay signal.
var (
	ErrTokenNotFound    = errors.New("auth: refresh token not found")
	ErrTokenAlreadyUsed = errors.New("auth: refresh token already used")
)

var (
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrNotFound        = errors.New("auth: not found")
	ErrConflict        = errors.New("auth: already exists")
	ErrInvalidInput    = errors.New("auth: invalid input")
)
