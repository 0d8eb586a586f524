package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/assetworks/assetauth/internal/auth/domain"
)

type signingKeysRepo struct {
	db dbtx
}

const signingKeyColumns = `id, kid, algorithm, key_size, public_key_pem,
	private_key_encrypted, is_active, is_revoked, revoked_at, revoked_reason,
	description, expires_at, created_at, updated_at`

func scanSigningKey(row interface{ Scan(dest ...any) error }) (domain.SigningKey, error) {
	var (
		k         domain.SigningKey
		revokedAt sql.NullTime
		expiresAt sql.NullTime
	)
	err := row.Scan(
		&k.ID, &k.Kid, &k.Algorithm, &k.KeySize, &k.PublicKeyPEM,
		&k.PrivateKeyEncrypted, &k.IsActive, &k.IsRevoked, &revokedAt, &k.RevokedReason,
		&k.Description, &expiresAt, &k.CreatedAt, &k.UpdatedAt,
	)
	if err != nil {
		return domain.SigningKey{}, mapNotFound(err)
	}
	k.RevokedAt = mapNullTimePtr(revokedAt)
	k.ExpiresAt = mapNullTimePtr(expiresAt)
	return k, nil
}

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, key domain.SigningKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO signing_keys (
			id, kid, algorithm, key_size, public_key_pem, private_key_encrypted,
			is_active, is_revoked, revoked_at, revoked_reason, description,
			expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.Kid, key.Algorithm, key.KeySize, key.PublicKeyPEM,
		key.PrivateKeyEncrypted, key.IsActive, key.IsRevoked,
		mapOptionalTime(key.RevokedAt), key.RevokedReason, key.Description,
		mapOptionalTime(key.ExpiresAt), key.CreatedAt, key.UpdatedAt,
	)
	return err
}

func (r *signingKeysRepo) GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys WHERE kid = ?`, kid)
	return scanSigningKey(row)
}

func (r *signingKeysRepo) GetActiveSigningKey(ctx context.Context) (domain.SigningKey, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys WHERE is_active = 1 LIMIT 1`)
	return scanSigningKey(row)
}

func (r *signingKeysRepo) ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.SigningKey
	for rows.Next() {
		k, err := scanSigningKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *signingKeysRepo) SetSigningKeyActive(ctx context.Context, kid string, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE signing_keys SET is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE kid = ?`, active, kid)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *signingKeysRepo) DeactivateAllSigningKeys(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE signing_keys SET is_active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE is_active = 1`)
	return err
}

func (r *signingKeysRepo) RevokeSigningKey(ctx context.Context, kid, reason string, revokedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE signing_keys SET
			is_active = 0,
			is_revoked = 1,
			revoked_at = ?,
			revoked_reason = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE kid = ?`, revokedAt, reason, kid)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *signingKeysRepo) DeleteSigningKey(ctx context.Context, kid string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM signing_keys WHERE kid = ?`, kid)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *signingKeysRepo) DeleteExpiredRevokedSigningKeys(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM signing_keys
		WHERE is_revoked = 1 AND expires_at IS NOT NULL AND expires_at < ?`, now)
	return err
}
