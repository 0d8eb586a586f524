package service

import (
	"context"
	"fmt"
	"time"

	"github.com/assetworks/assetauth/internal/auth/domain"
	"github.com/assetworks/assetauth/pkg/cryptox"
	"github.com/assetworks/assetauth/pkg/jwtx"
)

// TokenIssuer signs access JWTs with the active key and mints opaque
// refresh tokens. It does not touch device rows; that is the session
// manager's job.
type TokenIssuer struct {
	Keys *SigningKeyManager

	Issuer   string
	Audience []string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	RememberMeTTL   time.Duration

	Now func() time.Time
}

func (t *TokenIssuer) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now().UTC()
}

func (t *TokenIssuer) accessTTL() time.Duration {
	if t.AccessTokenTTL > 0 {
		return t.AccessTokenTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

// RefreshTTL picks the refresh lifetime for a session. Remember-me
// sessions live longer.
func (t *TokenIssuer) RefreshTTL(rememberMe bool) time.Duration {
	if rememberMe {
		if t.RememberMeTTL > 0 {
			return t.RememberMeTTL
		}
		return jwtx.DefaultRememberMeTTL
	}
	if t.RefreshTokenTTL > 0 {
		return t.RefreshTokenTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// IssueAccessToken signs a JWT for the user with the active key.
func (t *TokenIssuer) IssueAccessToken(ctx context.Context, user domain.User, sessionID, deviceID string, scopes, amr []string) (string, error) {
	key, err := t.Keys.GetOrCreateActiveKey(ctx)
	if err != nil {
		return "", fmt.Errorf("active signing key: %w", err)
	}

	signer, err := t.Keys.SignerFor(key)
	if err != nil {
		return "", fmt.Errorf("build signer: %w", err)
	}

	claims := jwtx.NewAccessClaims(
		user.ID, sessionID, deviceID,
		scopes, amr,
		t.accessTTL(),
		t.Issuer,
		t.Audience,
		user.Username,
		user.Email,
		t.now(),
	)

	token, err := signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

// NewRefreshToken mints an opaque refresh token and its fingerprint.
// Only the fingerprint may be persisted.
func (t *TokenIssuer) NewRefreshToken() (plain, fingerprint string, err error) {
	plain, err = cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}
	return plain, cryptox.FingerprintToken(plain), nil
}

// IssuePair builds the full token pair returned by login and refresh.
func (t *TokenIssuer) IssuePair(ctx context.Context, user domain.User, sessionID, deviceID string, scopes, amr []string) (domain.TokenPair, string, error) {
	access, err := t.IssueAccessToken(ctx, user, sessionID, deviceID, scopes, amr)
	if err != nil {
		return domain.TokenPair{}, "", err
	}

	refresh, fingerprint, err := t.NewRefreshToken()
	if err != nil {
		return domain.TokenPair{}, "", err
	}

	pair := domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    t.accessTTL(),
	}
	return pair, fingerprint, nil
}

// JWKS exposes the verification keys for the discovery endpoint.
func (t *TokenIssuer) JWKS(ctx context.Context) (jwtx.JWKS, error) {
	return t.Keys.JWKS(ctx)
}
