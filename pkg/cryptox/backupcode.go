package cryptox

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// Backup codes are shown to the user exactly once in the form xxxxx-xxxxx
// (two lowercase hex groups). Only their salted Argon2id hashes are stored.

// BackupCodePattern matches a well-formed backup code.
var BackupCodePattern = regexp.MustCompile(`^[0-9a-f]{5}-[0-9a-f]{5}$`)

// GenerateBackupCode returns a fresh random backup code.
func GenerateBackupCode() (string, error) {
	raw := make([]byte, 5)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("cryptox: read random: %w", err)
	}

	s := hex.EncodeToString(raw)
	return s[:5] + "-" + s[5:], nil
}

// GenerateBackupCodes returns n distinct-looking backup codes. Uniqueness is
// probabilistic; with 40 bits per code a collision within one batch is not a
// realistic concern.
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, n)
	for i := range codes {
		code, err := GenerateBackupCode()
		if err != nil {
			return nil, err
		}
		codes[i] = code
	}
	return codes, nil
}
