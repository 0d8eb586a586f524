package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/assetworks/assetauth/internal/auth/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, username, email, display_name, password_hash, is_active,
	failed_logins, locked_until, two_factor_state, two_factor_secret,
	two_factor_method, pending_expires_at, two_factor_enabled, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (domain.User, error) {
	var (
		u                domain.User
		lockedUntil      sql.NullTime
		twoFactorSecret  sql.NullString
		pendingExpiresAt sql.NullTime
		twoFactorEnabled sql.NullTime
		state            string
	)

	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.DisplayName, &u.PasswordHash, &u.IsActive,
		&u.FailedLogins, &lockedUntil, &state, &twoFactorSecret,
		&u.TwoFactorMethod, &pendingExpiresAt, &twoFactorEnabled, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.TwoFactorState = domain.TwoFactorState(state)
	u.LockedUntil = mapNullTimePtr(lockedUntil)
	u.TwoFactorSecret = mapNullStringPtr(twoFactorSecret)
	u.PendingExpiresAt = mapNullTimePtr(pendingExpiresAt)
	u.TwoFactorEnabled = mapNullTimePtr(twoFactorEnabled)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, username, email, display_name, password_hash, is_active,
			failed_logins, locked_until, two_factor_state, two_factor_secret,
			two_factor_method, pending_expires_at, two_factor_enabled,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.DisplayName, u.PasswordHash, u.IsActive,
		u.FailedLogins, mapOptionalTime(u.LockedUntil), string(u.TwoFactorState),
		mapOptionalString(u.TwoFactorSecret), u.TwoFactorMethod,
		mapOptionalTime(u.PendingExpiresAt), mapOptionalTime(u.TwoFactorEnabled),
		u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, newHash, userID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *usersRepo) UpdateLoginAttempts(ctx context.Context, userID string, failedLogins int, lockedUntil *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET failed_logins = ?, locked_until = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, failedLogins, mapOptionalTime(lockedUntil), userID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *usersRepo) SetPendingTwoFactor(ctx context.Context, userID, secret, method string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			two_factor_state = 'pending',
			two_factor_secret = ?,
			two_factor_method = ?,
			pending_expires_at = ?,
			two_factor_enabled = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, secret, method, expiresAt, userID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *usersRepo) ConfirmTwoFactor(ctx context.Context, userID string, enabledAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			two_factor_state = 'enabled',
			pending_expires_at = NULL,
			two_factor_enabled = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND two_factor_state = 'pending'`, enabledAt, userID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *usersRepo) DisableTwoFactor(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			two_factor_state = 'disabled',
			two_factor_secret = NULL,
			two_factor_method = '',
			pending_expires_at = NULL,
			two_factor_enabled = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, userID)
	return err
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func (r *usersRepo) DeleteExpiredPendingTwoFactor(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			two_factor_state = 'disabled',
			two_factor_secret = NULL,
			two_factor_method = '',
			pending_expires_at = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE two_factor_state = 'pending' AND pending_expires_at < ?`, now)
	return err
}
