package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the signed token payload. Registered claims keep the wire shape
// bit-compatible with the portal's existing tokens: payload carries at least
// sub/iat/exp plus whatever the caller adds here.
//
// Roles are embedded for interop with downstream consumers but are never
// trusted for authorization; the Service re-resolves roles from the store on
// every request so role changes take effect before token expiry.
type Claims struct {
	Roles          []string `json:"roles,omitempty"`
	OrganizationID string   `json:"org,omitempty"`
	TokenType      string   `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// Codec produces and verifies compact HS256-signed tokens without any
// server-side token state. The secret is process-wide configuration and is
// never derived from request data.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithCodecIssuer sets the issuer stamped into and required of tokens.
func WithCodecIssuer(issuer string) CodecOption {
	return func(c *Codec) { c.issuer = strings.TrimSpace(issuer) }
}

// WithCodecClock overrides the time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec. A missing secret is fatal misconfiguration and
// aborts initialization rather than failing requests one by one.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is not configured")
	}
	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs the claims, filling issued-at and expiry when the caller left
// them unset. The result is base64url(header).base64url(payload).base64url(sig).
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := c.now().UTC()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil {
		if ttl <= 0 {
			return "", fmt.Errorf("%w: ttl must be greater than zero", ErrInvalidInput)
		}
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	if claims.Issuer == "" {
		claims.Issuer = c.issuer
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	headerJSON, err := json.Marshal(map[string]any{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signingString := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	sig := hmacSign([]byte(signingString), c.secret)
	return signingString + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify checks a token and returns its claims. Untrusted input always yields
// a typed error, never a panic. The signature is recomputed over the raw
// segments and compared in constant time before the payload is decoded, so a
// token tampered in any byte fails as ErrBadSignature rather than something
// softer.
func (c *Codec) Verify(token string) (Claims, error) {
	segments := strings.Split(strings.TrimSpace(token), ".")
	if len(segments) != 3 {
		return Claims{}, ErrMalformedToken
	}
	headerJSON, err := base64.RawURLEncoding.DecodeString(segments[0])
	if err != nil {
		return Claims{}, ErrMalformedToken
	}
	var header struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return Claims{}, ErrMalformedToken
	}
	if header.Alg != "HS256" {
		return Claims{}, ErrMalformedToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(segments[2])
	if err != nil {
		return Claims{}, ErrMalformedToken
	}

	expected := hmacSign([]byte(segments[0]+"."+segments[1]), c.secret)
	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return Claims{}, ErrBadSignature
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return Claims{}, ErrBadPayload
	}
	var claims Claims
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Claims{}, ErrBadPayload
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, ErrBadPayload
	}
	if c.issuer != "" && claims.Issuer != "" && claims.Issuer != c.issuer {
		return Claims{}, ErrBadPayload
	}
	if claims.ExpiresAt == nil {
		return Claims{}, ErrBadPayload
	}
	if c.now().UTC().After(claims.ExpiresAt.Time) {
		return Claims{}, ErrExpired
	}
	return claims, nil
}

func hmacSign(data, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return mac.Sum(nil)
}
