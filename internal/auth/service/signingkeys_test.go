package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/assetworks/assetauth/internal/auth/service"
	"github.com/assetworks/assetauth/internal/auth/store"
	"github.com/stretchr/testify/require"
)

func newKeyManager(s store.Store, clock *testClock) *service.SigningKeyManager {
	return &service.SigningKeyManager{Store: s, Now: clock.Now}
}

func TestGenerateKeyActivate(t *testing.T) {
	s := newServiceStore(t)
	mgr := newKeyManager(s, newTestClock())
	ctx := context.Background()

	key, err := mgr.GenerateKey(ctx, service.GenerateKeyParams{Activate: true})
	require.NoError(t, err)
	require.Equal(t, "RS256", key.Algorithm)
	require.Equal(t, 2048, key.KeySize)
	require.True(t, key.IsActive)
	require.NotEmpty(t, key.Kid)
	require.NotEmpty(t, key.PublicKeyPEM)
	require.NotEmpty(t, key.PrivateKeyEncrypted)

	active, err := s.SigningKeys().GetActiveSigningKey(ctx)
	require.NoError(t, err)
	require.Equal(t, key.Kid, active.Kid)

	// Activating a second key displaces the first.
	second, err := mgr.GenerateKey(ctx, service.GenerateKeyParams{Algorithm: "RS384", KeySize: 3072, Activate: true})
	require.NoError(t, err)

	active, err = s.SigningKeys().GetActiveSigningKey(ctx)
	require.NoError(t, err)
	require.Equal(t, second.Kid, active.Kid)
}

func TestGenerateKeyValidation(t *testing.T) {
	s := newServiceStore(t)
	mgr := newKeyManager(s, newTestClock())
	ctx := context.Background()

	_, err := mgr.GenerateKey(ctx, service.GenerateKeyParams{Algorithm: "ES256"})
	require.ErrorIs(t, err, service.ErrUnsupportedAlgorithm)

	_, err = mgr.GenerateKey(ctx, service.GenerateKeyParams{KeySize: 1024})
	require.ErrorIs(t, err, service.ErrUnsupportedKeySize)
}

func TestRotateKey(t *testing.T) {
	s := newServiceStore(t)
	mgr := newKeyManager(s, newTestClock())
	ctx := context.Background()

	old, err := mgr.GenerateKey(ctx, service.GenerateKeyParams{Activate: true})
	require.NoError(t, err)

	rotated, err := mgr.RotateKey(ctx, service.RotateKeyParams{})
	require.NoError(t, err)
	require.NotEqual(t, old.Kid, rotated.Kid)

	active, err := s.SigningKeys().GetActiveSigningKey(ctx)
	require.NoError(t, err)
	require.Equal(t, rotated.Kid, active.Kid)

	// The displaced key stays verifiable.
	prev, err := s.SigningKeys().GetSigningKeyByKid(ctx, old.Kid)
	require.NoError(t, err)
	require.False(t, prev.IsActive)
	require.False(t, prev.IsRevoked)

	jwks, err := mgr.JWKS(ctx)
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 2)
}

func TestRotateKeyRevokesOld(t *testing.T) {
	s := newServiceStore(t)
	mgr := newKeyManager(s, newTestClock())
	ctx := context.Background()

	old, err := mgr.GenerateKey(ctx, service.GenerateKeyParams{Activate: true})
	require.NoError(t, err)

	_, err = mgr.RotateKey(ctx, service.RotateKeyParams{RevokeOld: true, RevokeReason: "suspected compromise"})
	require.NoError(t, err)

	prev, err := s.SigningKeys().GetSigningKeyByKid(ctx, old.Kid)
	require.NoError(t, err)
	require.True(t, prev.IsRevoked)
	require.Equal(t, "suspected compromise", prev.RevokedReason)

	jwks, err := mgr.JWKS(ctx)
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
}

func TestGetOrCreateActiveKeySelfHealing(t *testing.T) {
	s := newServiceStore(t)
	mgr := newKeyManager(s, newTestClock())
	ctx := context.Background()

	// Empty store mints a default key.
	key, err := mgr.GetOrCreateActiveKey(ctx)
	require.NoError(t, err)
	require.True(t, key.IsActive)
	require.Equal(t, "RS256", key.Algorithm)

	// Stable on repeat calls.
	again, err := mgr.GetOrCreateActiveKey(ctx)
	require.NoError(t, err)
	require.Equal(t, key.Kid, again.Kid)

	// With no active key it promotes an existing usable one.
	require.NoError(t, mgr.DeactivateKey(ctx, key.Kid))

	promoted, err := mgr.GetOrCreateActiveKey(ctx)
	require.NoError(t, err)
	require.Equal(t, key.Kid, promoted.Kid)
	require.True(t, promoted.IsActive)

	// A revoked key is never promoted; a fresh one is minted instead.
	require.NoError(t, mgr.RevokeKey(ctx, key.Kid, "rotated out"))

	minted, err := mgr.GetOrCreateActiveKey(ctx)
	require.NoError(t, err)
	require.NotEqual(t, key.Kid, minted.Kid)
	require.True(t, minted.IsActive)
}

func TestRevokedKeyIsTerminal(t *testing.T) {
	s := newServiceStore(t)
	mgr := newKeyManager(s, newTestClock())
	ctx := context.Background()

	key, err := mgr.GenerateKey(ctx, service.GenerateKeyParams{Activate: true})
	require.NoError(t, err)

	require.NoError(t, mgr.RevokeKey(ctx, key.Kid, "compromised"))

	err = mgr.ActivateKey(ctx, key.Kid)
	require.ErrorIs(t, err, service.ErrKeyAlreadyRevoked)

	err = mgr.RevokeKey(ctx, key.Kid, "again")
	require.ErrorIs(t, err, service.ErrKeyAlreadyRevoked)
}

func TestDeleteRequiresRevocation(t *testing.T) {
	s := newServiceStore(t)
	mgr := newKeyManager(s, newTestClock())
	ctx := context.Background()

	key, err := mgr.GenerateKey(ctx, service.GenerateKeyParams{})
	require.NoError(t, err)

	err = mgr.DeleteKey(ctx, key.Kid)
	require.ErrorIs(t, err, service.ErrKeyMustBeRevokedFirst)

	require.NoError(t, mgr.RevokeKey(ctx, key.Kid, "retired"))
	require.NoError(t, mgr.DeleteKey(ctx, key.Kid))

	_, err = s.SigningKeys().GetSigningKeyByKid(ctx, key.Kid)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestActivateDeactivateRules(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newKeyManager(s, clock)
	ctx := context.Background()

	key, err := mgr.GenerateKey(ctx, service.GenerateKeyParams{Activate: true})
	require.NoError(t, err)

	err = mgr.ActivateKey(ctx, key.Kid)
	require.ErrorIs(t, err, service.ErrKeyAlreadyActive)

	require.NoError(t, mgr.DeactivateKey(ctx, key.Kid))
	err = mgr.DeactivateKey(ctx, key.Kid)
	require.ErrorIs(t, err, service.ErrKeyAlreadyInactive)

	err = mgr.ActivateKey(ctx, "no-such-kid")
	require.ErrorIs(t, err, service.ErrKeyNotFound)

	// An expired key cannot come back.
	expiry := clock.Now().Add(time.Hour)
	expiring, err := mgr.GenerateKey(ctx, service.GenerateKeyParams{ExpiresAt: &expiry})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	err = mgr.ActivateKey(ctx, expiring.Kid)
	require.ErrorIs(t, err, service.ErrKeyExpired)
}

func TestJWKSExcludesExpired(t *testing.T) {
	s := newServiceStore(t)
	clock := newTestClock()
	mgr := newKeyManager(s, clock)
	ctx := context.Background()

	expiry := clock.Now().Add(time.Hour)
	_, err := mgr.GenerateKey(ctx, service.GenerateKeyParams{ExpiresAt: &expiry})
	require.NoError(t, err)

	current, err := mgr.GenerateKey(ctx, service.GenerateKeyParams{Activate: true})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	jwks, err := mgr.JWKS(ctx)
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, current.Kid, jwks.Keys[0].Kid)
	require.NotEmpty(t, jwks.Keys[0].N)
	require.NotEmpty(t, jwks.Keys[0].E)
}

func TestSignerForRoundTrip(t *testing.T) {
	s := newServiceStore(t)
	mgr := newKeyManager(s, newTestClock())
	ctx := context.Background()

	key, err := mgr.GenerateKey(ctx, service.GenerateKeyParams{Algorithm: "RS512", Activate: true})
	require.NoError(t, err)

	signer, err := mgr.SignerFor(key)
	require.NoError(t, err)
	require.Equal(t, "RS512", signer.Alg())
	require.Equal(t, key.Kid, signer.KID())
	require.NoError(t, signer.Validate())
}
