package sqlite

import (
	"context"
	"time"

	"github.com/assetworks/assetauth/internal/auth/domain"
)

type devicesRepo struct {
	db dbtx
}

const deviceColumns = `id, user_id, device_id, device_name, refresh_hash, is_active,
	remember_me, expires_at, last_seen_ip, last_seen_ua, last_location,
	last_seen_at, created_at, updated_at`

func scanDevice(row interface{ Scan(dest ...any) error }) (domain.UserDevice, error) {
	var d domain.UserDevice
	err := row.Scan(
		&d.ID, &d.UserID, &d.DeviceID, &d.DeviceName, &d.RefreshHash, &d.IsActive,
		&d.RememberMe, &d.ExpiresAt, &d.LastSeenIP, &d.LastSeenUA, &d.LastLocation,
		&d.LastSeenAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return domain.UserDevice{}, mapNotFound(err)
	}
	return d, nil
}

func (r *devicesRepo) CreateDevice(ctx context.Context, d domain.UserDevice) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_devices (
			id, user_id, device_id, device_name, refresh_hash, is_active,
			remember_me, expires_at, last_seen_ip, last_seen_ua, last_location,
			last_seen_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.DeviceID, d.DeviceName, d.RefreshHash, d.IsActive,
		d.RememberMe, d.ExpiresAt, d.LastSeenIP, d.LastSeenUA, d.LastLocation,
		d.LastSeenAt, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *devicesRepo) GetDeviceByID(ctx context.Context, id string) (domain.UserDevice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM user_devices WHERE id = ?`, id)
	return scanDevice(row)
}

func (r *devicesRepo) GetDeviceByUserAndDeviceID(ctx context.Context, userID, deviceID string) (domain.UserDevice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM user_devices WHERE user_id = ? AND device_id = ?`,
		userID, deviceID)
	return scanDevice(row)
}

func (r *devicesRepo) GetDeviceByRefreshHash(ctx context.Context, hash string) (domain.UserDevice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM user_devices WHERE refresh_hash = ? AND refresh_hash != ''`,
		hash)
	return scanDevice(row)
}

func (r *devicesRepo) ListUserDevices(ctx context.Context, userID string) ([]domain.UserDevice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM user_devices WHERE user_id = ? ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []domain.UserDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *devicesRepo) UpdateDeviceSession(ctx context.Context, d domain.UserDevice) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_devices SET
			device_name = ?,
			refresh_hash = ?,
			is_active = ?,
			remember_me = ?,
			expires_at = ?,
			last_seen_ip = ?,
			last_seen_ua = ?,
			last_location = ?,
			last_seen_at = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		d.DeviceName, d.RefreshHash, d.IsActive, d.RememberMe, d.ExpiresAt,
		d.LastSeenIP, d.LastSeenUA, d.LastLocation, d.LastSeenAt, d.ID,
	)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *devicesRepo) DeactivateDevice(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_devices SET
			is_active = 0,
			refresh_hash = '',
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	return err
}

func (r *devicesRepo) DeactivateUserDevices(ctx context.Context, userID, exceptDeviceID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_devices SET
			is_active = 0,
			refresh_hash = '',
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND device_id != ?`, userID, exceptDeviceID)
	return err
}

func (r *devicesRepo) DeleteExpiredDevices(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_devices WHERE expires_at < ?`, now)
	return err
}
