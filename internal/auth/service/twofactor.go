package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/assetworks/assetauth/internal/auth/domain"
	"github.com/assetworks/assetauth/internal/auth/store"
	"github.com/assetworks/assetauth/pkg/cryptox"
	"github.com/assetworks/assetauth/pkg/idx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// backupCodeCount is how many recovery codes a confirmation mints.
	backupCodeCount = 16

	// pendingConfirmWindow bounds how long an unconfirmed secret lives.
	pendingConfirmWindow = 10 * time.Minute

	totpPeriod = 30
	totpSkew   = 1 // accept one period either side for clock drift
)

var (
	ErrTwoFactorAlreadyEnabled = errors.New("two_factor_already_enabled")
	ErrTwoFactorNotEnabled     = errors.New("two_factor_not_enabled")
	ErrTwoFactorNotPending     = errors.New("two_factor_not_pending")
	ErrInvalidTwoFactorCode    = errors.New("invalid_two_factor_code")
)

// TwoFactorService drives the enrollment state machine
// disabled -> pending -> enabled and verifies codes at login time.
type TwoFactorService struct {
	Store  store.Store
	Guard  *AccountGuard
	Issuer string // TOTP issuer label, e.g. "AssetWorks"

	Now func() time.Time
}

func (s *TwoFactorService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Enable starts enrollment. The password is re-verified, a fresh secret
// is generated on every call (repeat calls replace the pending secret),
// and the user has pendingConfirmWindow to confirm it.
func (s *TwoFactorService) Enable(ctx context.Context, userID, password string) (domain.TwoFactorEnrollment, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.TwoFactorEnrollment{}, fmt.Errorf("get user: %w", err)
	}

	if user.TwoFactorState == domain.TwoFactorEnabled {
		return domain.TwoFactorEnrollment{}, ErrTwoFactorAlreadyEnabled
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		return domain.TwoFactorEnrollment{}, ErrInvalidCredentials
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Username,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.TwoFactorEnrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	expiresAt := s.now().Add(pendingConfirmWindow)
	if err := s.Store.Users().SetPendingTwoFactor(ctx, userID, key.Secret(), domain.TwoFactorMethodTOTP, expiresAt); err != nil {
		return domain.TwoFactorEnrollment{}, fmt.Errorf("store pending secret: %w", err)
	}

	return domain.TwoFactorEnrollment{
		Secret:     key.Secret(),
		OTPAuthURI: key.URL(),
		Issuer:     s.Issuer,
		Account:    user.Username,
	}, nil
}

// Confirm finishes enrollment. On a valid code it promotes the pending
// secret and mints the backup codes in one transaction; the plaintext
// codes are returned exactly once. A bad code mutates nothing.
func (s *TwoFactorService) Confirm(ctx context.Context, userID, code string) ([]string, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	now := s.now()

	if user.TwoFactorState != domain.TwoFactorPending || user.TwoFactorSecret == nil {
		return nil, ErrTwoFactorNotPending
	}
	if user.PendingExpiresAt != nil && now.After(*user.PendingExpiresAt) {
		return nil, ErrTwoFactorNotPending
	}

	if !s.validateTOTP(code, *user.TwoFactorSecret, now) {
		return nil, ErrInvalidTwoFactorCode
	}

	plainCodes, err := cryptox.GenerateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().ConfirmTwoFactor(ctx, userID, now); err != nil {
			return fmt.Errorf("confirm two factor: %w", err)
		}

		// Replace any leftover codes from a previous enrollment.
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return fmt.Errorf("clear backup codes: %w", err)
		}

		for _, plain := range plainCodes {
			hash, err := cryptox.HashPassword(plain)
			if err != nil {
				return fmt.Errorf("hash backup code: %w", err)
			}
			bc := domain.BackupCode{
				ID:        idx.New().String(),
				UserID:    userID,
				CodeHash:  hash,
				CreatedAt: now,
			}
			if err := tx.BackupCodes().CreateBackupCode(ctx, bc); err != nil {
				return fmt.Errorf("store backup code: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return plainCodes, nil
}

// Disable turns 2FA off for an authenticated user. Idempotent: calling
// it when already disabled succeeds.
func (s *TwoFactorService) Disable(ctx context.Context, userID, password string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	return s.disableAll(ctx, userID)
}

// DisableWithBackupCode is the unauthenticated recovery path for a user
// who lost their authenticator. It requires the password AND a valid
// unused backup code, then disables 2FA entirely and wipes every code.
func (s *TwoFactorService) DisableWithBackupCode(ctx context.Context, identity, password, code string) error {
	user, err := s.Guard.VerifyCredentials(ctx, identity, password)
	if err != nil {
		return err
	}

	if user.TwoFactorState != domain.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}

	if err := s.consumeBackupCode(ctx, user.ID, code); err != nil {
		return err
	}

	return s.disableAll(ctx, user.ID)
}

// RegenerateBackupCodes replaces all recovery codes after a valid TOTP
// code. Unused old codes stop working immediately.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, userID, totpCode string) ([]string, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !user.HasTwoFactor() {
		return nil, ErrTwoFactorNotEnabled
	}
	if !s.validateTOTP(totpCode, *user.TwoFactorSecret, s.now()) {
		return nil, ErrInvalidTwoFactorCode
	}

	plainCodes, err := cryptox.GenerateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	now := s.now()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return fmt.Errorf("delete old backup codes: %w", err)
		}
		for _, plain := range plainCodes {
			hash, err := cryptox.HashPassword(plain)
			if err != nil {
				return fmt.Errorf("hash backup code: %w", err)
			}
			bc := domain.BackupCode{
				ID:        idx.New().String(),
				UserID:    userID,
				CodeHash:  hash,
				CreatedAt: now,
			}
			if err := tx.BackupCodes().CreateBackupCode(ctx, bc); err != nil {
				return fmt.Errorf("store backup code: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return plainCodes, nil
}

// VerifyLoginCode checks a second-factor code during the login bridge.
// method selects totp, backup_code, or email_otp semantics.
func (s *TwoFactorService) VerifyLoginCode(ctx context.Context, user domain.User, method, code string, emailOTP EmailOTPSender) error {
	if !user.HasTwoFactor() {
		return ErrTwoFactorNotEnabled
	}

	switch method {
	case domain.TwoFactorMethodTOTP:
		if !s.validateTOTP(code, *user.TwoFactorSecret, s.now()) {
			return ErrInvalidTwoFactorCode
		}
		return nil

	case domain.TwoFactorMethodBackup:
		return s.consumeBackupCode(ctx, user.ID, code)

	case domain.TwoFactorMethodEmailOTP:
		if emailOTP == nil {
			return ErrInvalidTwoFactorCode
		}
		ok, err := emailOTP.Verify(ctx, user.ID, user.Email, code)
		if err != nil {
			return fmt.Errorf("verify email otp: %w", err)
		}
		if !ok {
			return ErrInvalidTwoFactorCode
		}
		return nil

	default:
		return ErrInvalidTwoFactorCode
	}
}

// consumeBackupCode finds the matching unused code and burns it.
// Hashes are salted, so we have to check each candidate.
func (s *TwoFactorService) consumeBackupCode(ctx context.Context, userID, code string) error {
	if !cryptox.BackupCodePattern.MatchString(code) {
		return ErrInvalidTwoFactorCode
	}

	candidates, err := s.Store.BackupCodes().ListUserBackupCodes(ctx, userID)
	if err != nil {
		return fmt.Errorf("list backup codes: %w", err)
	}

	for _, candidate := range candidates {
		if cryptox.VerifyPassword(code, candidate.CodeHash) == nil {
			if err := s.Store.BackupCodes().MarkBackupCodeUsed(ctx, candidate.ID, s.now()); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					// Lost the race to another consumer.
					return ErrInvalidTwoFactorCode
				}
				return fmt.Errorf("mark backup code used: %w", err)
			}
			return nil
		}
	}

	return ErrInvalidTwoFactorCode
}

// disableAll clears the secret and wipes all backup codes in one tx.
func (s *TwoFactorService) disableAll(ctx context.Context, userID string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return fmt.Errorf("delete backup codes: %w", err)
		}
		if err := tx.Users().DisableTwoFactor(ctx, userID); err != nil {
			return fmt.Errorf("disable two factor: %w", err)
		}
		return nil
	})
}

func (s *TwoFactorService) validateTOTP(code, secret string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
