package jwtx_test

import (
	"encoding/json"
	"testing"

	"github.com/assetworks/assetauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestJWKRoundTrip(t *testing.T) {
	signer, err := jwtx.NewSigner("RS256", "jwk-key", testKeyPEM(t))
	require.NoError(t, err)

	jwk := signer.PublicJWK()
	require.Equal(t, "RSA", jwk.Kty)
	require.Equal(t, "sig", jwk.Use)
	require.Equal(t, "RS256", jwk.Alg)
	require.Equal(t, "jwk-key", jwk.Kid)
	require.NotEmpty(t, jwk.N)
	require.NotEmpty(t, jwk.E)

	pub, err := jwk.PublicKey()
	require.NoError(t, err)
	require.Equal(t, 2048, pub.N.BitLen())

	pemStr, err := jwk.PEM()
	require.NoError(t, err)
	require.Contains(t, pemStr, "PUBLIC KEY")
}

func TestJWKSSerialization(t *testing.T) {
	signer, err := jwtx.NewSigner("RS384", "ser-key", testKeyPEM(t))
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	raw, err := json.Marshal(keyset.PublicJWKS())
	require.NoError(t, err)

	var decoded jwtx.JWKS
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Keys, 1)
	require.Equal(t, "ser-key", decoded.Keys[0].Kid)
	require.Equal(t, "RS384", decoded.Keys[0].Alg)
}

func TestKeySetResetFromJWKS(t *testing.T) {
	s1, err := jwtx.NewSigner("RS256", "old", testKeyPEM(t))
	require.NoError(t, err)
	s2, err := jwtx.NewSigner("RS256", "new", testKeyPEM(t))
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(s1))
	require.True(t, keyset.IsReady())

	require.NoError(t, keyset.ResetFromJWKS(jwtx.JWKS{Keys: []jwtx.JWK{s2.PublicJWK()}}))

	_, err = keyset.Get("old")
	require.ErrorIs(t, err, jwtx.ErrNoKey)

	_, err = keyset.Get("new")
	require.NoError(t, err)
}
