package store

import (
	"context"
	"errors"
	"time"

	"github.com/assetworks/assetauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. It exposes sub-repositories to keep concerns
// tidy and testable, and makes it harder to accidentally open a
// transaction inside a transaction.
type Store interface {
	Users() Users
	Devices() Devices
	BackupCodes() BackupCodes
	SigningKeys() SigningKeys

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// Use it for multi-step operations that must be atomic (e.g., refresh
	// rotation). The caller MUST call Commit() or Rollback() on the
	// returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during credential verification.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// GetUserByEmail allows login by email address.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// UpdateLoginAttempts writes the failure counter and lockout deadline.
	// Called on both the success path (reset) and the failure path.
	UpdateLoginAttempts(ctx context.Context, userID string, failedLogins int, lockedUntil *time.Time) error

	// SetPendingTwoFactor stores an unconfirmed TOTP secret with its
	// confirmation deadline and moves the user to the pending state.
	SetPendingTwoFactor(ctx context.Context, userID, secret, method string, expiresAt time.Time) error

	// ConfirmTwoFactor promotes the pending secret to enabled.
	ConfirmTwoFactor(ctx context.Context, userID string, enabledAt time.Time) error

	// DisableTwoFactor clears the secret, method, and state.
	DisableTwoFactor(ctx context.Context, userID string) error

	// DeleteUser cascades to user_devices and backup_codes (per schema).
	DeleteUser(ctx context.Context, userID string) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)

	// DeleteExpiredPendingTwoFactor clears pending secrets whose
	// confirmation window has passed (housekeeping).
	DeleteExpiredPendingTwoFactor(ctx context.Context, now time.Time) error
}

type Devices interface {
	// CreateDevice inserts a new device session (id is ULID).
	CreateDevice(ctx context.Context, d domain.UserDevice) error

	// GetDeviceByID returns a device row by its ULID.
	GetDeviceByID(ctx context.Context, id string) (domain.UserDevice, error)

	// GetDeviceByUserAndDeviceID finds the session for a user's installation.
	GetDeviceByUserAndDeviceID(ctx context.Context, userID, deviceID string) (domain.UserDevice, error)

	// GetDeviceByRefreshHash looks a session up by its refresh token fingerprint.
	GetDeviceByRefreshHash(ctx context.Context, hash string) (domain.UserDevice, error)

	// ListUserDevices returns all of a user's device sessions, newest first.
	ListUserDevices(ctx context.Context, userID string) ([]domain.UserDevice, error)

	// UpdateDeviceSession rotates the refresh fingerprint and refreshes
	// the audit metadata in one statement.
	UpdateDeviceSession(ctx context.Context, d domain.UserDevice) error

	// DeactivateDevice clears the refresh fingerprint and marks inactive.
	DeactivateDevice(ctx context.Context, id string) error

	// DeactivateUserDevices bulk-deactivates a user's sessions, optionally
	// sparing one device (pass empty string to deactivate all).
	DeactivateUserDevices(ctx context.Context, userID, exceptDeviceID string) error

	// DeleteExpiredDevices removes long-expired sessions (housekeeping).
	DeleteExpiredDevices(ctx context.Context, now time.Time) error
}

type BackupCodes interface {
	// CreateBackupCode stores a backup code hash for a user.
	CreateBackupCode(ctx context.Context, code domain.BackupCode) error

	// ListUserBackupCodes returns all unused backup codes for a user.
	// Verification iterates these because the hashes are salted.
	ListUserBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error)

	// MarkBackupCodeUsed consumes a code so it can never be replayed.
	MarkBackupCodeUsed(ctx context.Context, id string, usedAt time.Time) error

	// DeleteAllBackupCodes removes all backup codes for a user.
	DeleteAllBackupCodes(ctx context.Context, userID string) error

	// CountUnusedBackupCodes returns how many codes the user has left.
	CountUnusedBackupCodes(ctx context.Context, userID string) (int, error)
}

type SigningKeys interface {
	// CreateSigningKey stores a new signing key with encrypted private material.
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error

	// GetSigningKeyByKid fetches a signing key by its key identifier.
	GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error)

	// GetActiveSigningKey returns the single active key, or ErrNotFound.
	GetActiveSigningKey(ctx context.Context) (domain.SigningKey, error)

	// ListSigningKeys returns all keys ordered by creation date (newest
	// first), including revoked and expired ones for the admin view.
	ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error)

	// SetSigningKeyActive flips is_active for one key.
	SetSigningKeyActive(ctx context.Context, kid string, active bool) error

	// DeactivateAllSigningKeys clears is_active across the table. Run
	// inside the same tx as SetSigningKeyActive to keep at most one active.
	DeactivateAllSigningKeys(ctx context.Context) error

	// RevokeSigningKey marks a key revoked with a reason. Terminal.
	RevokeSigningKey(ctx context.Context, kid, reason string, revokedAt time.Time) error

	// DeleteSigningKey removes a key row. Callers must ensure it is revoked.
	DeleteSigningKey(ctx context.Context, kid string) error

	// DeleteExpiredRevokedSigningKeys removes revoked keys past their
	// expiry (housekeeping).
	DeleteExpiredRevokedSigningKeys(ctx context.Context, now time.Time) error
}
