package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. Services can override these per-config,
// but most deployments run on the defaults.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 60 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultRememberMeTTL is the extended refresh lifetime for sessions
	// opened with "remember me".
	DefaultRememberMeTTL = 30 * 24 * time.Hour
)

// Claims are access-token claims shared across the asset services. Keep
// changes additive so already-issued tokens stay parseable.
type Claims struct {
	jwt.RegisteredClaims

	/* Cross-service custom fields */

	// Session ID of the device session that issued this token.
	SID string `json:"sid,omitempty"`

	// Permission scopes, e.g. "assets:read assets:write".
	Scopes []string `json:"scopes,omitempty"`

	// Authentication Methods Reference ["pwd","otp","mfa"]
	// 		"pwd": password-based authentication
	//		"otp": one-time password (TOTP or emailed code)
	//		"mfa": a second factor was completed
	// Lets resource services require MFA for sensitive operations.
	AMR []string `json:"amr,omitempty"`

	// Username for the authenticated user.
	Username string `json:"username,omitempty"`

	// Email for the authenticated user.
	Email string `json:"email,omitempty"`

	// DeviceID identifies which registered device holds the session.
	DeviceID string `json:"device_id,omitempty"`
}

// NewAccessClaims builds minimally-correct claims.
func NewAccessClaims(
	subject, sid, deviceID string,
	scopes, amr []string,
	ttl time.Duration,
	issuer string,
	audience []string,
	username, email string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		SID:      sid,
		DeviceID: deviceID,
		Scopes:   scopes,
		AMR:      amr,
		Username: username,
		Email:    email,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
