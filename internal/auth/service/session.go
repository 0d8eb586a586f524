package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/assetworks/assetauth/internal/auth/domain"
	"github.com/assetworks/assetauth/internal/auth/store"
	"github.com/assetworks/assetauth/internal/auth/twofactor"
	"github.com/assetworks/assetauth/pkg/cryptox"
	"github.com/assetworks/assetauth/pkg/idx"
)

var (
	ErrInvalidRefreshToken     = errors.New("invalid_refresh_token")
	ErrTwoFactorSessionInvalid = errors.New("two_factor_session_invalid")
	ErrTooManyAttempts         = errors.New("too_many_attempts")
)

// SessionManager runs the login flow end to end: credential check, the
// 2FA bridge, per-device refresh sessions, rotation, and logout.
type SessionManager struct {
	Store    store.Store
	Guard    *AccountGuard
	TwoFA    *TwoFactorService
	Tokens   *TokenIssuer
	Bridge   twofactor.SessionStore
	Geo      GeoResolver
	EmailOTP EmailOTPSender

	// Scopes granted on every session. Per-user scopes would come from a
	// roles table, which this service does not own.
	Scopes []string

	Now func() time.Time
}

func (m *SessionManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

// LoginParams are the credentials plus the device making the request.
type LoginParams struct {
	Identity   string // username or email
	Password   string
	RememberMe bool
	Device     domain.DeviceDescriptor
}

// LoginResult is either a token pair (2FA off) or a challenge (2FA on).
// Exactly one of Tokens and Challenge is set.
type LoginResult struct {
	Tokens    *domain.TokenPair
	Challenge *domain.TwoFactorChallenge
	User      domain.User
}

// Login verifies credentials and either issues tokens immediately or
// opens an ephemeral 2FA bridge session the client must complete.
func (m *SessionManager) Login(ctx context.Context, p LoginParams) (LoginResult, error) {
	user, err := m.Guard.VerifyCredentials(ctx, p.Identity, p.Password)
	if err != nil {
		return LoginResult{}, err
	}

	if !user.HasTwoFactor() {
		pair, err := m.establishSession(ctx, user, p.RememberMe, p.Device, []string{"pwd"})
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{Tokens: &pair, User: user}, nil
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return LoginResult{}, fmt.Errorf("generate bridge token: %w", err)
	}

	now := m.now()
	sess := twofactor.Session{
		Token:      token,
		UserID:     user.ID,
		RememberMe: p.RememberMe,
		Device:     p.Device,
		Method:     domain.TwoFactorMethodTOTP,
		CreatedAt:  now,
		ExpiresAt:  now.Add(twofactor.DefaultSessionTTL),
	}
	if err := m.Bridge.Put(ctx, sess); err != nil {
		return LoginResult{}, fmt.Errorf("store bridge session: %w", err)
	}

	methods := []string{domain.TwoFactorMethodTOTP, domain.TwoFactorMethodBackup}
	if m.EmailOTP != nil {
		methods = append(methods, domain.TwoFactorMethodEmailOTP)
	}

	return LoginResult{
		Challenge: &domain.TwoFactorChallenge{
			TwoFactorRequired: true,
			SessionToken:      token,
			Methods:           methods,
		},
		User: user,
	}, nil
}

// CompleteTwoFactor finishes a bridge session. The session is consumed
// on success so the token can never complete a second login; failures
// count toward a cap that burns the session. The code must match the
// method the session has selected; SwitchTwoFactorMethod changes it.
func (m *SessionManager) CompleteTwoFactor(ctx context.Context, sessionToken, method, code string) (domain.TokenPair, domain.User, error) {
	sess, err := m.Bridge.Get(ctx, sessionToken)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, ErrTwoFactorSessionInvalid
	}

	if sess.Attempts >= twofactor.MaxAttempts {
		_ = m.Bridge.Delete(ctx, sessionToken)
		return domain.TokenPair{}, domain.User{}, ErrTooManyAttempts
	}

	if method != sess.Method {
		return domain.TokenPair{}, domain.User{}, ErrInvalidTwoFactorCode
	}

	user, err := m.Store.Users().GetUserByID(ctx, sess.UserID)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, fmt.Errorf("get user: %w", err)
	}

	if err := m.TwoFA.VerifyLoginCode(ctx, user, method, code, m.EmailOTP); err != nil {
		if errors.Is(err, ErrInvalidTwoFactorCode) {
			sess.Attempts++
			if sess.Attempts >= twofactor.MaxAttempts {
				_ = m.Bridge.Delete(ctx, sessionToken)
				return domain.TokenPair{}, domain.User{}, ErrTooManyAttempts
			}
			if uerr := m.Bridge.Update(ctx, sess); uerr != nil {
				return domain.TokenPair{}, domain.User{}, fmt.Errorf("update bridge session: %w", uerr)
			}
		}
		return domain.TokenPair{}, domain.User{}, err
	}

	// Consume after verification so a parallel request cannot reuse the
	// session; losing the race means someone else already completed it.
	if _, err := m.Bridge.Consume(ctx, sessionToken); err != nil {
		return domain.TokenPair{}, domain.User{}, ErrTwoFactorSessionInvalid
	}

	amr := []string{"pwd", "mfa"}
	if method == domain.TwoFactorMethodTOTP || method == domain.TwoFactorMethodEmailOTP {
		amr = []string{"pwd", "otp", "mfa"}
	}

	pair, err := m.establishSession(ctx, user, sess.RememberMe, sess.Device, amr)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}
	return pair, user, nil
}

// SwitchTwoFactorMethod changes the verification method mid-flow. The
// old bridge token is invalidated and a fresh one issued; the original
// deadline carries over so switching never extends the window. Choosing
// email_otp sends the code.
func (m *SessionManager) SwitchTwoFactorMethod(ctx context.Context, sessionToken, method string) (string, error) {
	switch method {
	case domain.TwoFactorMethodTOTP, domain.TwoFactorMethodBackup:
	case domain.TwoFactorMethodEmailOTP:
		if m.EmailOTP == nil {
			return "", ErrInvalidTwoFactorCode
		}
	default:
		return "", ErrInvalidTwoFactorCode
	}

	sess, err := m.Bridge.Consume(ctx, sessionToken)
	if err != nil {
		return "", ErrTwoFactorSessionInvalid
	}

	newToken, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", fmt.Errorf("generate bridge token: %w", err)
	}
	sess.Token = newToken
	sess.Method = method
	if err := m.Bridge.Put(ctx, sess); err != nil {
		if errors.Is(err, twofactor.ErrSessionExpired) {
			return "", ErrTwoFactorSessionInvalid
		}
		return "", fmt.Errorf("store bridge session: %w", err)
	}

	if method == domain.TwoFactorMethodEmailOTP {
		user, err := m.Store.Users().GetUserByID(ctx, sess.UserID)
		if err != nil {
			return "", fmt.Errorf("get user: %w", err)
		}
		code, err := randomDigits(6)
		if err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		if err := m.EmailOTP.Send(ctx, user.Email, code); err != nil {
			return "", fmt.Errorf("send otp: %w", err)
		}
	}

	return newToken, nil
}

// Refresh rotates a refresh token. The lookup, validation, and rotation
// run in one transaction so a replayed token can never win a race.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string, device domain.DeviceDescriptor) (domain.TokenPair, error) {
	fingerprint := cryptox.FingerprintToken(refreshToken)
	now := m.now()

	d, err := m.Store.Devices().GetDeviceByRefreshHash(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefreshToken
		}
		return domain.TokenPair{}, fmt.Errorf("lookup refresh token: %w", err)
	}

	if !d.CanRefresh(now) {
		return domain.TokenPair{}, ErrInvalidRefreshToken
	}

	user, err := m.Store.Users().GetUserByID(ctx, d.UserID)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("get user: %w", err)
	}
	if !user.IsActive || user.IsLocked(now) {
		return domain.TokenPair{}, ErrInvalidRefreshToken
	}

	pair, newFingerprint, err := m.Tokens.IssuePair(ctx, user, d.ID, d.DeviceID, m.Scopes, []string{"pwd"})
	if err != nil {
		return domain.TokenPair{}, err
	}

	// Re-check under the transaction so a replayed token can never win a
	// race: the row must still carry the old fingerprint when we swap it.
	err = m.Store.WithTx(ctx, func(tx store.Tx) error {
		cur, err := tx.Devices().GetDeviceByRefreshHash(ctx, fingerprint)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefreshToken
			}
			return fmt.Errorf("lookup refresh token: %w", err)
		}

		cur.RefreshHash = newFingerprint
		cur.ExpiresAt = now.Add(m.Tokens.RefreshTTL(cur.RememberMe))
		m.applyAudit(&cur, device, now)
		if err := tx.Devices().UpdateDeviceSession(ctx, cur); err != nil {
			return fmt.Errorf("rotate refresh token: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.TokenPair{}, err
	}
	return pair, nil
}

// Logout ends the session for one device. Unknown devices are a no-op
// so logout is always safe to retry.
func (m *SessionManager) Logout(ctx context.Context, userID, deviceID string) error {
	d, err := m.Store.Devices().GetDeviceByUserAndDeviceID(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup device: %w", err)
	}
	return m.Store.Devices().DeactivateDevice(ctx, d.ID)
}

// LogoutAll ends every session the user has. A non-empty exceptDeviceID
// spares that device so the caller can stay signed in.
func (m *SessionManager) LogoutAll(ctx context.Context, userID, exceptDeviceID string) error {
	return m.Store.Devices().DeactivateUserDevices(ctx, userID, exceptDeviceID)
}

// ListDevices returns the user's device sessions for the audit screen.
func (m *SessionManager) ListDevices(ctx context.Context, userID string) ([]domain.UserDevice, error) {
	return m.Store.Devices().ListUserDevices(ctx, userID)
}

// ChangePassword re-verifies the current password, swaps the hash, and
// signs the user out everywhere except the device making the change.
func (m *SessionManager) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, keepDeviceID string) error {
	user, err := m.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if err := cryptox.VerifyPassword(currentPassword, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	newHash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := m.Store.Users().UpdatePasswordHash(ctx, userID, newHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return m.Store.Devices().DeactivateUserDevices(ctx, userID, keepDeviceID)
}

// establishSession finds or creates the device row and binds a fresh
// token pair to it.
func (m *SessionManager) establishSession(ctx context.Context, user domain.User, rememberMe bool, device domain.DeviceDescriptor, amr []string) (domain.TokenPair, error) {
	now := m.now()

	d, err := m.Store.Devices().GetDeviceByUserAndDeviceID(ctx, user.ID, device.DeviceID)
	created := false
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, fmt.Errorf("lookup device: %w", err)
		}
		d = domain.UserDevice{
			ID:        idx.New().String(),
			UserID:    user.ID,
			DeviceID:  device.DeviceID,
			CreatedAt: now,
		}
		created = true
	}

	pair, fingerprint, err := m.Tokens.IssuePair(ctx, user, d.ID, device.DeviceID, m.Scopes, amr)
	if err != nil {
		return domain.TokenPair{}, err
	}

	d.RefreshHash = fingerprint
	d.IsActive = true
	d.RememberMe = rememberMe
	d.ExpiresAt = now.Add(m.Tokens.RefreshTTL(rememberMe))
	m.applyAudit(&d, device, now)

	if created {
		if err := m.Store.Devices().CreateDevice(ctx, d); err != nil {
			return domain.TokenPair{}, fmt.Errorf("create device: %w", err)
		}
	} else {
		if err := m.Store.Devices().UpdateDeviceSession(ctx, d); err != nil {
			return domain.TokenPair{}, fmt.Errorf("update device: %w", err)
		}
	}

	return pair, nil
}

func (m *SessionManager) applyAudit(d *domain.UserDevice, device domain.DeviceDescriptor, now time.Time) {
	if device.DeviceName != "" {
		d.DeviceName = device.DeviceName
	}
	if device.IP != "" {
		d.LastSeenIP = device.IP
		if m.Geo != nil {
			d.LastLocation = m.Geo.Resolve(device.IP)
		}
	}
	if device.UserAgent != "" {
		d.LastSeenUA = device.UserAgent
	}
	d.LastSeenAt = now
	d.UpdatedAt = now
}

func randomDigits(n int) (string, error) {
	out := make([]byte, n)
	for i := range out {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + v.Int64())
	}
	return string(out), nil
}
