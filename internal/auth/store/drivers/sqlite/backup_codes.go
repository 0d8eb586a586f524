package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/assetworks/assetauth/internal/auth/domain"
)

type backupCodesRepo struct {
	db dbtx
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, code domain.BackupCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO backup_codes (id, user_id, code_hash, used_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		code.ID, code.UserID, code.CodeHash, mapOptionalTime(code.UsedAt), code.CreatedAt,
	)
	return err
}

func (r *backupCodesRepo) ListUserBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, code_hash, used_at, created_at
		FROM backup_codes
		WHERE user_id = ? AND used_at IS NULL
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []domain.BackupCode
	for rows.Next() {
		var (
			c      domain.BackupCode
			usedAt sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &usedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.UsedAt = mapNullTimePtr(usedAt)
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

func (r *backupCodesRepo) MarkBackupCodeUsed(ctx context.Context, id string, usedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE backup_codes SET used_at = ?
		WHERE id = ? AND used_at IS NULL`, usedAt, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return err
}

func (r *backupCodesRepo) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM backup_codes
		WHERE user_id = ? AND used_at IS NULL`, userID).Scan(&count)
	return count, err
}
