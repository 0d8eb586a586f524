package domain

import "time"

// SigningKey represents a JWT signing key stored in the database with
// support for rotation. Private material is encrypted at rest; revoked
// keys stay in the table for audit until explicitly deleted.
type SigningKey struct {
	ID                  string     // ULID
	Kid                 string     // Key identifier published in JWKS
	Algorithm           string     // RS256, RS384, or RS512
	KeySize             int        // RSA modulus bits: 2048, 3072, 4096
	PublicKeyPEM        []byte     // PKIX public key PEM
	PrivateKeyEncrypted []byte     // AES-256-GCM encrypted private key PEM
	IsActive            bool       // at most one active key at a time
	IsRevoked           bool       // terminal; revoked keys never sign again
	RevokedAt           *time.Time // when the key was revoked (nil = not revoked)
	RevokedReason       string     // operator-supplied reason
	Description         string     // operator-supplied label
	ExpiresAt           *time.Time // optional hard expiry (nil = no expiry)
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsExpired returns true if the key has passed its expiration time.
func (k *SigningKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// CanSign returns true if the key may be used for issuing tokens.
func (k *SigningKey) CanSign(now time.Time) bool {
	return k.IsActive && !k.IsRevoked && !k.IsExpired(now)
}

// CanVerify returns true if the key's public half should still appear in
// the JWKS document. Inactive keys remain verifiable so tokens signed
// before a rotation keep working until they expire.
func (k *SigningKey) CanVerify(now time.Time) bool {
	return !k.IsRevoked && !k.IsExpired(now)
}
