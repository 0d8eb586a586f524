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
	"github.com/assetworks/assetauth/pkg/jwtx"
	"github.com/google/uuid"
)

const (
	// DefaultKeyAlgorithm and DefaultKeySize are used when the manager
	// must self-heal and mint a key without operator input.
	DefaultKeyAlgorithm = "RS256"
	DefaultKeySize      = 2048
)

var (
	ErrKeyNotFound           = errors.New("signing_key_not_found")
	ErrKeyAlreadyActive      = errors.New("signing_key_already_active")
	ErrKeyAlreadyInactive    = errors.New("signing_key_already_inactive")
	ErrKeyAlreadyRevoked     = errors.New("signing_key_already_revoked")
	ErrKeyMustBeRevokedFirst = errors.New("signing_key_must_be_revoked_first")
	ErrKeyExpired            = errors.New("signing_key_expired")
	ErrUnsupportedAlgorithm  = errors.New("unsupported_algorithm")
	ErrUnsupportedKeySize    = errors.New("unsupported_key_size")
)

// SigningKeyManager owns the RSA signing key lifecycle: generation,
// the single-active invariant, rotation, revocation, and deletion.
type SigningKeyManager struct {
	Store store.Store

	// Defaults applied when a request leaves algorithm or key size blank.
	DefaultAlgorithm string
	DefaultKeySize   int

	Now func() time.Time
}

func (m *SigningKeyManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *SigningKeyManager) defaults(algorithm string, keySize int) (string, int) {
	if algorithm == "" {
		algorithm = m.DefaultAlgorithm
	}
	if algorithm == "" {
		algorithm = DefaultKeyAlgorithm
	}
	if keySize == 0 {
		keySize = m.DefaultKeySize
	}
	if keySize == 0 {
		keySize = DefaultKeySize
	}
	return algorithm, keySize
}

// GenerateKeyParams are the operator inputs for minting a key.
type GenerateKeyParams struct {
	Algorithm   string // RS256, RS384, RS512
	KeySize     int    // 2048, 3072, 4096
	Description string
	ExpiresAt   *time.Time
	Activate    bool // deactivate the current active key and take over
}

// GenerateKey mints a new RSA keypair, encrypts the private half, and
// stores it. With Activate set the active swap happens in the same
// transaction as the insert so there is never a moment with two active
// keys.
func (m *SigningKeyManager) GenerateKey(ctx context.Context, p GenerateKeyParams) (domain.SigningKey, error) {
	p.Algorithm, p.KeySize = m.defaults(p.Algorithm, p.KeySize)

	if err := validateKeyParams(p.Algorithm, p.KeySize); err != nil {
		return domain.SigningKey{}, err
	}

	privPEM, pubPEM, err := cryptox.GenerateRSAKeyPair(p.KeySize)
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("generate keypair: %w", err)
	}

	encrypted, err := cryptox.EncryptPrivateKey(privPEM)
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("encrypt private key: %w", err)
	}

	now := m.now()
	key := domain.SigningKey{
		ID:                  idx.New().String(),
		Kid:                 uuid.NewString(),
		Algorithm:           p.Algorithm,
		KeySize:             p.KeySize,
		PublicKeyPEM:        pubPEM,
		PrivateKeyEncrypted: encrypted,
		IsActive:            p.Activate,
		Description:         p.Description,
		ExpiresAt:           p.ExpiresAt,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = m.Store.WithTx(ctx, func(tx store.Tx) error {
		if p.Activate {
			if err := tx.SigningKeys().DeactivateAllSigningKeys(ctx); err != nil {
				return fmt.Errorf("deactivate keys: %w", err)
			}
		}
		if err := tx.SigningKeys().CreateSigningKey(ctx, key); err != nil {
			return fmt.Errorf("create key: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.SigningKey{}, err
	}

	return key, nil
}

// RotateKeyParams control a rotation: mint, activate, and optionally
// revoke the outgoing key.
type RotateKeyParams struct {
	Algorithm   string
	KeySize     int
	Description string
	ExpiresAt   *time.Time

	// RevokeOld revokes the previously active key instead of leaving it
	// verifiable. Use when rotating because of a suspected compromise.
	RevokeOld    bool
	RevokeReason string
}

// RotateKey replaces the active key in a single all-or-nothing
// transaction. The old key stays verifiable (in JWKS) unless RevokeOld
// is set.
func (m *SigningKeyManager) RotateKey(ctx context.Context, p RotateKeyParams) (domain.SigningKey, error) {
	p.Algorithm, p.KeySize = m.defaults(p.Algorithm, p.KeySize)
	if err := validateKeyParams(p.Algorithm, p.KeySize); err != nil {
		return domain.SigningKey{}, err
	}

	privPEM, pubPEM, err := cryptox.GenerateRSAKeyPair(p.KeySize)
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("generate keypair: %w", err)
	}
	encrypted, err := cryptox.EncryptPrivateKey(privPEM)
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("encrypt private key: %w", err)
	}

	now := m.now()
	key := domain.SigningKey{
		ID:                  idx.New().String(),
		Kid:                 uuid.NewString(),
		Algorithm:           p.Algorithm,
		KeySize:             p.KeySize,
		PublicKeyPEM:        pubPEM,
		PrivateKeyEncrypted: encrypted,
		IsActive:            true,
		Description:         p.Description,
		ExpiresAt:           p.ExpiresAt,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = m.Store.WithTx(ctx, func(tx store.Tx) error {
		old, err := tx.SigningKeys().GetActiveSigningKey(ctx)
		hadActive := err == nil
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("get active key: %w", err)
		}

		if err := tx.SigningKeys().DeactivateAllSigningKeys(ctx); err != nil {
			return fmt.Errorf("deactivate keys: %w", err)
		}
		if err := tx.SigningKeys().CreateSigningKey(ctx, key); err != nil {
			return fmt.Errorf("create key: %w", err)
		}

		if p.RevokeOld && hadActive {
			reason := p.RevokeReason
			if reason == "" {
				reason = "rotated"
			}
			if err := tx.SigningKeys().RevokeSigningKey(ctx, old.Kid, reason, now); err != nil {
				return fmt.Errorf("revoke old key: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.SigningKey{}, err
	}

	return key, nil
}

// GetOrCreateActiveKey never returns "no key". If no key is active it
// promotes the newest usable key; if none exists it mints a default.
func (m *SigningKeyManager) GetOrCreateActiveKey(ctx context.Context) (domain.SigningKey, error) {
	now := m.now()

	key, err := m.Store.SigningKeys().GetActiveSigningKey(ctx)
	if err == nil {
		if key.CanSign(now) {
			return key, nil
		}
		// Active but revoked or expired; fall through and self-heal.
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.SigningKey{}, fmt.Errorf("get active key: %w", err)
	}

	// Promote the newest key that can still sign.
	keys, err := m.Store.SigningKeys().ListSigningKeys(ctx)
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("list keys: %w", err)
	}
	for _, candidate := range keys {
		if candidate.IsRevoked || candidate.IsExpired(now) {
			continue
		}
		err := m.Store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.SigningKeys().DeactivateAllSigningKeys(ctx); err != nil {
				return err
			}
			return tx.SigningKeys().SetSigningKeyActive(ctx, candidate.Kid, true)
		})
		if err != nil {
			return domain.SigningKey{}, fmt.Errorf("promote key: %w", err)
		}
		candidate.IsActive = true
		return candidate, nil
	}

	// Nothing usable at all; mint a fresh default key.
	return m.GenerateKey(ctx, GenerateKeyParams{Activate: true})
}

// ActivateKey makes the named key the single active one.
func (m *SigningKeyManager) ActivateKey(ctx context.Context, kid string) error {
	return m.Store.WithTx(ctx, func(tx store.Tx) error {
		key, err := tx.SigningKeys().GetSigningKeyByKid(ctx, kid)
		if err != nil {
			return mapKeyNotFound(err)
		}
		if key.IsRevoked {
			// Revocation is terminal.
			return ErrKeyAlreadyRevoked
		}
		if key.IsExpired(m.now()) {
			return ErrKeyExpired
		}
		if key.IsActive {
			return ErrKeyAlreadyActive
		}
		if err := tx.SigningKeys().DeactivateAllSigningKeys(ctx); err != nil {
			return fmt.Errorf("deactivate keys: %w", err)
		}
		return tx.SigningKeys().SetSigningKeyActive(ctx, kid, true)
	})
}

// DeactivateKey parks a key. It stays in the JWKS for verification.
func (m *SigningKeyManager) DeactivateKey(ctx context.Context, kid string) error {
	key, err := m.Store.SigningKeys().GetSigningKeyByKid(ctx, kid)
	if err != nil {
		return mapKeyNotFound(err)
	}
	if !key.IsActive {
		return ErrKeyAlreadyInactive
	}
	return m.Store.SigningKeys().SetSigningKeyActive(ctx, kid, false)
}

// RevokeKey permanently bars a key from signing and verification. It
// drops out of the JWKS immediately.
func (m *SigningKeyManager) RevokeKey(ctx context.Context, kid, reason string) error {
	key, err := m.Store.SigningKeys().GetSigningKeyByKid(ctx, kid)
	if err != nil {
		return mapKeyNotFound(err)
	}
	if key.IsRevoked {
		return ErrKeyAlreadyRevoked
	}
	return m.Store.SigningKeys().RevokeSigningKey(ctx, kid, reason, m.now())
}

// DeleteKey removes a key row entirely. Only revoked keys can be
// deleted, which keeps accidental destruction of verifiable keys
// impossible.
func (m *SigningKeyManager) DeleteKey(ctx context.Context, kid string) error {
	key, err := m.Store.SigningKeys().GetSigningKeyByKid(ctx, kid)
	if err != nil {
		return mapKeyNotFound(err)
	}
	if !key.IsRevoked {
		return ErrKeyMustBeRevokedFirst
	}
	return m.Store.SigningKeys().DeleteSigningKey(ctx, kid)
}

// ListKeys returns every key, newest first, for the admin surface.
func (m *SigningKeyManager) ListKeys(ctx context.Context) ([]domain.SigningKey, error) {
	return m.Store.SigningKeys().ListSigningKeys(ctx)
}

// SignerFor decrypts a key's private material and builds a jwtx signer.
func (m *SigningKeyManager) SignerFor(key domain.SigningKey) (jwtx.Signer, error) {
	privPEM, err := cryptox.DecryptPrivateKey(key.PrivateKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt private key: %w", err)
	}
	return jwtx.NewSigner(key.Algorithm, key.Kid, privPEM)
}

// JWKS builds the public key set from every key that can still verify.
// Revoked and expired keys are excluded; private material never leaves
// this package.
func (m *SigningKeyManager) JWKS(ctx context.Context) (jwtx.JWKS, error) {
	keys, err := m.Store.SigningKeys().ListSigningKeys(ctx)
	if err != nil {
		return jwtx.JWKS{}, fmt.Errorf("list keys: %w", err)
	}

	now := m.now()
	var jwks jwtx.JWKS
	for _, key := range keys {
		if !key.CanVerify(now) {
			continue
		}
		pub, err := cryptox.ParseRSAPublicKey(key.PublicKeyPEM)
		if err != nil {
			return jwtx.JWKS{}, fmt.Errorf("parse public key %s: %w", key.Kid, err)
		}
		jwks.Keys = append(jwks.Keys, jwtx.NewRSAJWK(key.Kid, "sig", key.Algorithm, pub))
	}
	return jwks, nil
}

func validateKeyParams(algorithm string, keySize int) error {
	switch algorithm {
	case "RS256", "RS384", "RS512":
	default:
		return ErrUnsupportedAlgorithm
	}
	switch keySize {
	case 2048, 3072, 4096:
	default:
		return ErrUnsupportedKeySize
	}
	return nil
}

func mapKeyNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrKeyNotFound
	}
	return err
}
