package domain

import "time"

// TwoFactorState tracks where a user sits in the 2FA enrollment flow.
type TwoFactorState string

const (
	// TwoFactorDisabled means no 2FA secret exists for the user.
	TwoFactorDisabled TwoFactorState = "disabled"

	// TwoFactorPending means a secret was generated but the user has not
	// yet confirmed it with a valid TOTP code.
	TwoFactorPending TwoFactorState = "pending"

	// TwoFactorEnabled means 2FA is confirmed and enforced at login.
	TwoFactorEnabled TwoFactorState = "enabled"
)

type User struct {
	ID           string
	Username     string
	Email        string
	DisplayName  string
	PasswordHash string // argon2 encoded
	IsActive     bool

	// Lockout bookkeeping. FailedLogins counts consecutive failures and
	// resets on success. LockedUntil is nil when the account is not locked.
	FailedLogins int
	LockedUntil  *time.Time

	// 2FA enrollment. Secret is the base32 TOTP secret; while state is
	// pending it has not been confirmed and PendingExpiresAt bounds how
	// long the user has to confirm it.
	TwoFactorState   TwoFactorState
	TwoFactorSecret  *string
	TwoFactorMethod  string // "totp" or "email_otp"
	PendingExpiresAt *time.Time
	TwoFactorEnabled *time.Time // when 2FA was confirmed (nullable)
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsLocked reports whether the account is locked out at the given time.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// HasTwoFactor reports whether 2FA is confirmed and must be enforced.
func (u *User) HasTwoFactor() bool {
	return u.TwoFactorState == TwoFactorEnabled && u.TwoFactorSecret != nil
}

// BackupCode is a single-use 2FA recovery code. Only the salted argon2
// hash is stored; the plaintext is shown to the user exactly once.
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsUsed reports whether the code has already been consumed.
func (c *BackupCode) IsUsed() bool { return c.UsedAt != nil }
