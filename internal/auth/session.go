// Package auth verifies student sessions. Sessions are HS256 JWTs minted by
// the external auth service; this service only checks them.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"scholarwatch/internal/types"
)

// MinSecretLength is the shortest session secret accepted.
const MinSecretLength = 32

// SessionClaims are the claims read from a session token. Subject is the
// student id.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// SessionVerifier checks bearer session tokens.
type SessionVerifier struct {
	secret types.SecretString
	clock  types.Clock
	parser *jwt.Parser
}

// SessionOption configures a SessionVerifier.
type SessionOption func(*SessionVerifier)

// WithSessionClock sets the clock used for expiry checks.
func WithSessionClock(c types.Clock) SessionOption {
	return func(v *SessionVerifier) { v.clock = c }
}

// NewSessionVerifier creates a verifier for tokens signed with secret.
func NewSessionVerifier(secret types.SecretString, opts ...SessionOption) (*SessionVerifier, error) {
	if len(secret.Unmask()) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	v := &SessionVerifier{secret: secret, clock: types.RealClock{}}
	for _, opt := range opts {
		opt(v)
	}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(func() time.Time { return v.clock.Now() }),
	)
	return v, nil
}

// Verify authenticates token and returns the student it belongs to.
func (v *SessionVerifier) Verify(token string) (types.Actor, error) {
	if token == "" {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenMissing, "session token is missing", nil)
	}

	var claims SessionClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret.Bytes(), nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenExpired, "session has expired", err)
	default:
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session token is invalid", err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session token has no subject", nil)
	}
	return types.Actor{StudentID: claims.Subject, SessionID: claims.ID}, nil
}

// BearerToken extracts the token from an Authorization header value. It
// returns "" when the header is not a bearer credential.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
