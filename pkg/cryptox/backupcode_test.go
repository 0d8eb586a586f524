package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateBackupCodeFormat(t *testing.T) {
	for range 50 {
		code, err := GenerateBackupCode()
		require.NoError(t, err)
		require.Regexp(t, BackupCodePattern, code)
	}
}

func TestGenerateBackupCodesBatch(t *testing.T) {
	codes, err := GenerateBackupCodes(16)
	require.NoError(t, err)
	require.Len(t, codes, 16)

	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		require.Regexp(t, BackupCodePattern, code)
		_, dup := seen[code]
		require.False(t, dup, "duplicate backup code in one batch")
		seen[code] = struct{}{}
	}
}

func TestBackupCodeHashesWithPassword(t *testing.T) {
	code, err := GenerateBackupCode()
	require.NoError(t, err)

	hash, err := HashPassword(code)
	require.NoError(t, err)
	require.NoError(t, VerifyPassword(code, hash))
	require.ErrorIs(t, VerifyPassword("00000-00000", hash), ErrPasswordMismatch)
}
