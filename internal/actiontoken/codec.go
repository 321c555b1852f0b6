// Package actiontoken issues and verifies the signed capabilities embedded in
// alert notification links. A token lets the holder perform exactly one action
// on exactly one alert until it expires, without a login session.
//
// Tokens are HS256 JWTs signed with a key derived from the configured secret
// by HKDF-SHA256 under a versioned label.
package actiontoken

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"scholarwatch/internal/types"
)

const (
	issuer   = "scholarwatch"
	audience = "alert-action"

	keyInfo = "scholarwatch/action-token/v1"

	// MinSecretLength is the shortest secret NewCodec accepts.
	MinSecretLength = 32

	// DefaultTTL applies when Issue is called with a non-positive ttl.
	DefaultTTL = 72 * time.Hour

	// MaxTTL caps every token at the relevance window of an alert.
	MaxTTL = 7 * 24 * time.Hour
)

// Claims is the decoded content of a verified token.
type Claims struct {
	AlertID string            `json:"alert_id"`
	Action  types.AlertAction `json:"action"`
	jwt.RegisteredClaims
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for iat/exp and verification.
func WithClock(clock types.Clock) Option {
	return func(c *Codec) { c.clock = clock }
}

// Codec signs and verifies action tokens. It is safe for concurrent use.
type Codec struct {
	key    []byte
	clock  types.Clock
	parser *jwt.Parser
}

// NewCodec derives the signing key from secret. The secret is passed in
// explicitly so tests can run codecs with distinct keys side by side.
func NewCodec(secret types.SecretString, opts ...Option) (*Codec, error) {
	if len(secret.Unmask()) < MinSecretLength {
		return nil, fmt.Errorf("action token secret must be at least %d bytes", MinSecretLength)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret.Bytes(), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive action token key: %w", err)
	}

	c := &Codec{
		key:   key,
		clock: types.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return c.clock.Now() }),
	)
	return c, nil
}

// Issue returns a token authorizing action on alertID for ttl. The ttl is
// clamped to MaxTTL.
func (c *Codec) Issue(alertID string, action types.AlertAction, ttl time.Duration) (string, error) {
	if alertID == "" {
		return "", types.NewAppError(types.ErrCodeValidationMissingField, "alert id is required", nil)
	}
	if _, err := types.ParseAlertAction(string(action)); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := c.clock.Now()
	claims := Claims{
		AlertID: alertID,
		Action:  action,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalTokenSigning, "failed to sign action token", err)
	}
	return signed, nil
}

// Verify authenticates token and returns its claims. An elapsed expiry yields
// ErrCodeAuthTokenExpired; every other failure yields ErrCodeAuthTokenInvalid.
// The signature is checked before expiry, so a tampered token is always
// reported as invalid.
func (c *Codec) Verify(token string) (Claims, error) {
	var claims Claims
	if token == "" {
		return Claims{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "action token is empty", nil)
	}

	_, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, types.NewAppError(types.ErrCodeAuthTokenExpired, "action token has expired", err)
	default:
		return Claims{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "action token is invalid", err)
	}

	if claims.AlertID == "" {
		return Claims{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "action token has no alert id", nil)
	}
	if _, err := types.ParseAlertAction(string(claims.Action)); err != nil {
		return Claims{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "action token has an unknown action", err)
	}
	return claims, nil
}

// VerifyFor verifies token and additionally requires that it was issued for
// want. A token for another action is rejected, never reinterpreted.
func (c *Codec) VerifyFor(token string, want types.AlertAction) (Claims, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	if claims.Action != want {
		return Claims{}, types.NewAppErrorWithDetails(
			types.ErrCodeAuthTokenActionMismatch,
			"action token was issued for a different action",
			nil,
			map[string]any{"expected": string(want), "actual": string(claims.Action)},
		)
	}
	return claims, nil
}
