package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/assetworks/assetauth/internal/auth/domain"
	"github.com/assetworks/assetauth/internal/auth/service"
	"github.com/assetworks/assetauth/internal/auth/store"
	"github.com/assetworks/assetauth/internal/auth/twofactor"
	"github.com/assetworks/assetauth/pkg/cryptox"
	"github.com/assetworks/assetauth/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func testDevice() domain.DeviceDescriptor {
	return domain.DeviceDescriptor{
		DeviceID:   "install-abc",
		DeviceName: "Pixel 9",
		IP:         "203.0.113.1",
		UserAgent:  "assetapp/1.0",
	}
}

func newSessionManager(t *testing.T, s store.Store, clock *testClock) *service.SessionManager {
	t.Helper()

	bridge := twofactor.NewMemoryStore()
	t.Cleanup(func() { _ = bridge.Close() })

	keys := &service.SigningKeyManager{Store: s, Now: clock.Now}
	guard := newGuard(s, clock)

	return &service.SessionManager{
		Store: s,
		Guard: guard,
		TwoFA: &service.TwoFactorService{
			Store:  s,
			Guard:  guard,
			Issuer: "AssetWorks",
			Now:    clock.Now,
		},
		Tokens: &service.TokenIssuer{
			Keys:     keys,
			Issuer:   "https://auth.assetworks.example",
			Audience: []string{"assetworks"},
			Now:      clock.Now,
		},
		Bridge: bridge,
		Geo:    service.StaticGeoResolver{Location: "Brisbane, AU"},
		Scopes: []string{"assets:read", "assets:write"},
		Now:    clock.Now,
	}
}

func TestLoginIssuesTokens(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newSessionManager(t, s, clock)
	ctx := context.Background()

	u := seedUser(t, s)

	res, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   testDevice(),
	})
	require.NoError(t, err)
	require.Nil(t, res.Challenge)
	require.NotNil(t, res.Tokens)
	require.Equal(t, "Bearer", res.Tokens.TokenType)
	require.NotEmpty(t, res.Tokens.AccessToken)
	require.NotEmpty(t, res.Tokens.RefreshToken)

	// The device row holds the fingerprint, never the raw token.
	d, err := s.Devices().GetDeviceByUserAndDeviceID(ctx, u.ID, "install-abc")
	require.NoError(t, err)
	require.True(t, d.IsActive)
	require.False(t, d.RememberMe)
	require.Equal(t, cryptox.FingerprintToken(res.Tokens.RefreshToken), d.RefreshHash)
	require.WithinDuration(t, clock.Now().Add(7*24*time.Hour), d.ExpiresAt, time.Second)
	require.Equal(t, "Brisbane, AU", d.LastLocation)
	require.Equal(t, "203.0.113.1", d.LastSeenIP)

	// The access token verifies against the published JWKS.
	jwks, err := mgr.Tokens.JWKS(ctx)
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.ResetFromJWKS(jwks))

	claims, err := jwtx.NewVerifier(keyset, "https://auth.assetworks.example", []string{"assetworks"}).Verify(res.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.Subject)
	require.Equal(t, "testuser", claims.Username)
	require.Equal(t, "testuser@example.com", claims.Email)
	require.Equal(t, "install-abc", claims.DeviceID)
	require.Equal(t, []string{"pwd"}, claims.AMR)
	require.Equal(t, []string{"assets:read", "assets:write"}, claims.Scopes)
}

func TestLoginRememberMeExtendsExpiry(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newSessionManager(t, s, clock)
	ctx := context.Background()

	u := seedUser(t, s)

	res, err := mgr.Login(ctx, service.LoginParams{
		Identity:   "testuser",
		Password:   testPassword,
		RememberMe: true,
		Device:     testDevice(),
	})
	require.NoError(t, err)

	d, err := s.Devices().GetDeviceByUserAndDeviceID(ctx, u.ID, "install-abc")
	require.NoError(t, err)
	require.True(t, d.RememberMe)
	require.WithinDuration(t, clock.Now().Add(30*24*time.Hour), d.ExpiresAt, time.Second)
	require.NotNil(t, res.Tokens)
}

func TestLoginWithTwoFactorFullFlow(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newSessionManager(t, s, clock)
	ctx := context.Background()

	u := seedUser(t, s)
	secret, _ := enroll(t, mgr.TwoFA, clock, u.ID)

	res, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   testDevice(),
	})
	require.NoError(t, err)
	require.Nil(t, res.Tokens)
	require.NotNil(t, res.Challenge)
	require.True(t, res.Challenge.TwoFactorRequired)
	require.NotEmpty(t, res.Challenge.SessionToken)
	require.Contains(t, res.Challenge.Methods, domain.TwoFactorMethodTOTP)
	require.Contains(t, res.Challenge.Methods, domain.TwoFactorMethodBackup)

	code, err := totp.GenerateCode(secret, clock.Now())
	require.NoError(t, err)

	pair, user, err := mgr.CompleteTwoFactor(ctx, res.Challenge.SessionToken, domain.TwoFactorMethodTOTP, code)
	require.NoError(t, err)
	require.Equal(t, u.ID, user.ID)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	// The bridge token is single use.
	_, _, err = mgr.CompleteTwoFactor(ctx, res.Challenge.SessionToken, domain.TwoFactorMethodTOTP, code)
	require.ErrorIs(t, err, service.ErrTwoFactorSessionInvalid)
}

func TestCompleteTwoFactorAttemptCap(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newSessionManager(t, s, clock)
	ctx := context.Background()

	u := seedUser(t, s)
	enroll(t, mgr.TwoFA, clock, u.ID)

	res, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   testDevice(),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Challenge)

	token := res.Challenge.SessionToken
	for i := 0; i < twofactor.MaxAttempts-1; i++ {
		_, _, err = mgr.CompleteTwoFactor(ctx, token, domain.TwoFactorMethodTOTP, "000000")
		require.ErrorIs(t, err, service.ErrInvalidTwoFactorCode)
	}

	_, _, err = mgr.CompleteTwoFactor(ctx, token, domain.TwoFactorMethodTOTP, "000000")
	require.ErrorIs(t, err, service.ErrTooManyAttempts)

	// The burned session rejects even a valid follow-up.
	_, _, err = mgr.CompleteTwoFactor(ctx, token, domain.TwoFactorMethodTOTP, "000000")
	require.ErrorIs(t, err, service.ErrTwoFactorSessionInvalid)
}

func TestSwitchTwoFactorMethod(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newSessionManager(t, s, clock)
	ctx := context.Background()

	u := seedUser(t, s)
	_, codes := enroll(t, mgr.TwoFA, clock, u.ID)

	res, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   testDevice(),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Challenge)

	newToken, err := mgr.SwitchTwoFactorMethod(ctx, res.Challenge.SessionToken, domain.TwoFactorMethodBackup)
	require.NoError(t, err)
	require.NotEqual(t, res.Challenge.SessionToken, newToken)

	// The old token is dead.
	_, _, err = mgr.CompleteTwoFactor(ctx, res.Challenge.SessionToken, domain.TwoFactorMethodBackup, codes[0])
	require.ErrorIs(t, err, service.ErrTwoFactorSessionInvalid)

	pair, _, err := mgr.CompleteTwoFactor(ctx, newToken, domain.TwoFactorMethodBackup, codes[0])
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
}

func TestCompleteTwoFactorEnforcesSelectedMethod(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newSessionManager(t, s, clock)
	ctx := context.Background()

	u := seedUser(t, s)
	secret, codes := enroll(t, mgr.TwoFA, clock, u.ID)

	res, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   testDevice(),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Challenge)

	// A fresh session selects TOTP; a valid backup code is rejected until
	// the client switches methods.
	_, _, err = mgr.CompleteTwoFactor(ctx, res.Challenge.SessionToken, domain.TwoFactorMethodBackup, codes[0])
	require.ErrorIs(t, err, service.ErrInvalidTwoFactorCode)

	code, err := totp.GenerateCode(secret, clock.Now())
	require.NoError(t, err)
	pair, _, err := mgr.CompleteTwoFactor(ctx, res.Challenge.SessionToken, domain.TwoFactorMethodTOTP, code)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
}

func TestRefreshRotation(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newSessionManager(t, s, clock)
	ctx := context.Background()

	seedUser(t, s)

	res, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   testDevice(),
	})
	require.NoError(t, err)

	clock.Advance(time.Hour)

	rotated, err := mgr.Refresh(ctx, res.Tokens.RefreshToken, testDevice())
	require.NoError(t, err)
	require.NotEqual(t, res.Tokens.RefreshToken, rotated.RefreshToken)

	// Replaying the old token fails; the rotated one still works.
	_, err = mgr.Refresh(ctx, res.Tokens.RefreshToken, testDevice())
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)

	_, err = mgr.Refresh(ctx, rotated.RefreshToken, testDevice())
	require.NoError(t, err)
}

func TestRefreshRejectsExpiredSession(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newSessionManager(t, s, clock)
	ctx := context.Background()

	seedUser(t, s)

	res, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   testDevice(),
	})
	require.NoError(t, err)

	clock.Advance(8 * 24 * time.Hour)

	_, err = mgr.Refresh(ctx, res.Tokens.RefreshToken, testDevice())
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	s := newServiceStore(t)
	mgr := newSessionManager(t, s, newTestClock())

	_, err := mgr.Refresh(context.Background(), "never-issued", testDevice())
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)
}

func TestRefreshRejectsLockedUser(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newSessionManager(t, s, clock)
	ctx := context.Background()

	u := seedUser(t, s)

	res, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   testDevice(),
	})
	require.NoError(t, err)

	lockedUntil := clock.Now().Add(15 * time.Minute)
	require.NoError(t, s.Users().UpdateLoginAttempts(ctx, u.ID, 5, &lockedUntil))

	_, err = mgr.Refresh(ctx, res.Tokens.RefreshToken, testDevice())
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)
}

func TestLogout(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newSessionManager(t, s, clock)
	ctx := context.Background()

	u := seedUser(t, s)

	res, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   testDevice(),
	})
	require.NoError(t, err)

	require.NoError(t, mgr.Logout(ctx, u.ID, "install-abc"))

	_, err = mgr.Refresh(ctx, res.Tokens.RefreshToken, testDevice())
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)

	// Unknown devices are a no-op.
	require.NoError(t, mgr.Logout(ctx, u.ID, "never-seen"))
}

func TestLogoutAll(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newSessionManager(t, s, clock)
	ctx := context.Background()

	u := seedUser(t, s)

	first, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   testDevice(),
	})
	require.NoError(t, err)

	other := testDevice()
	other.DeviceID = "install-xyz"
	second, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   other,
	})
	require.NoError(t, err)

	require.NoError(t, mgr.LogoutAll(ctx, u.ID, ""))

	_, err = mgr.Refresh(ctx, first.Tokens.RefreshToken, testDevice())
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)
	_, err = mgr.Refresh(ctx, second.Tokens.RefreshToken, other)
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)
}

func TestLogoutAllKeepsExcludedDevice(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newSessionManager(t, s, clock)
	ctx := context.Background()

	u := seedUser(t, s)

	current, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   testDevice(),
	})
	require.NoError(t, err)

	other := testDevice()
	other.DeviceID = "install-xyz"
	stale, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   other,
	})
	require.NoError(t, err)

	require.NoError(t, mgr.LogoutAll(ctx, u.ID, "install-abc"))

	_, err = mgr.Refresh(ctx, stale.Tokens.RefreshToken, other)
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)

	// The excluded device keeps its session.
	pair, err := mgr.Refresh(ctx, current.Tokens.RefreshToken, testDevice())
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
}

func TestChangePassword(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newSessionManager(t, s, clock)
	ctx := context.Background()

	u := seedUser(t, s)

	current, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   testDevice(),
	})
	require.NoError(t, err)

	other := testDevice()
	other.DeviceID = "install-xyz"
	stale, err := mgr.Login(ctx, service.LoginParams{
		Identity: "testuser",
		Password: testPassword,
		Device:   other,
	})
	require.NoError(t, err)

	err = mgr.ChangePassword(ctx, u.ID, "wrong-password", "NewSecurePass456!", "install-abc")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	require.NoError(t, mgr.ChangePassword(ctx, u.ID, testPassword, "NewSecurePass456!", "install-abc"))

	// The new password works; the old one does not.
	_, err = mgr.Guard.VerifyCredentials(ctx, "testuser", "NewSecurePass456!")
	require.NoError(t, err)
	_, err = mgr.Guard.VerifyCredentials(ctx, "testuser", testPassword)
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	// Other devices are signed out; the current one survives.
	_, err = mgr.Refresh(ctx, stale.Tokens.RefreshToken, other)
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)
	_, err = mgr.Refresh(ctx, current.Tokens.RefreshToken, testDevice())
	require.NoError(t, err)
}
