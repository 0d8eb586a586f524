package jwtx_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/assetworks/assetauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const exampleIssuer = "assetauth"

func testKeyPEM(t *testing.T) []byte {
	t.Helper()

	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privKey),
	})
}

func TestSignAndVerify(t *testing.T) {
	for _, alg := range jwtx.SupportedAlgs {
		t.Run(alg, func(t *testing.T) {
			signer, err := jwtx.NewSigner(alg, "test-key", testKeyPEM(t))
			require.NoError(t, err)
			require.NoError(t, signer.Validate())
			require.Equal(t, alg, signer.Alg())

			now := time.Now().UTC()
			claims := jwtx.NewAccessClaims(
				"user-123",                              // subject
				"session-abc",                           // session ID
				"device-001",                            // device ID
				[]string{"assets:read", "assets:write"}, // scopes
				[]string{"pwd", "mfa"},                  // AMR
				2*time.Minute,                           // TTL
				exampleIssuer,                           // issuer
				[]string{"assets"},                      // audience
				"testuser",                              // username
				"testuser@example.com",                  // email
				now,                                     // issued at time
			)

			token, err := signer.Sign(claims)
			require.NoError(t, err)
			require.NotEmpty(t, token)

			keyset := jwtx.NewKeySet()
			require.NoError(t, keyset.AddSigner(signer))

			verifier := jwtx.NewVerifier(keyset, exampleIssuer, []string{"assets"})

			parsed, err := verifier.Verify(token)
			require.NoError(t, err)

			require.Equal(t, claims.Issuer, parsed.Issuer)
			require.Equal(t, claims.Subject, parsed.Subject)
			require.ElementsMatch(t, claims.Audience, parsed.Audience)
			require.ElementsMatch(t, claims.Scopes, parsed.Scopes)
			require.ElementsMatch(t, claims.AMR, parsed.AMR)
			require.Equal(t, claims.SID, parsed.SID)
			require.Equal(t, claims.DeviceID, parsed.DeviceID)
			require.Equal(t, claims.Username, parsed.Username)
			require.Equal(t, claims.Email, parsed.Email)
			require.NotEmpty(t, parsed.ID) // JTI should be set
		})
	}
}

func TestNewSignerRejectsUnsupportedAlg(t *testing.T) {
	_, err := jwtx.NewSigner("HS256", "k1", testKeyPEM(t))
	require.Error(t, err)

	_, err = jwtx.NewSigner("ES256", "k1", testKeyPEM(t))
	require.Error(t, err)
}

func TestVerifyFailsForWrongIssuer(t *testing.T) {
	signer, err := jwtx.NewSigner("RS256", "k1", testKeyPEM(t))
	require.NoError(t, err)

	now := time.Now().UTC()
	claims := jwtx.NewAccessClaims(
		"user-123", "session-xyz", "", nil, nil,
		1*time.Minute, exampleIssuer, nil, "", "", now,
	)

	token, err := signer.Sign(claims)
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	verifier := jwtx.NewVerifier(keyset, "wrong-issuer", nil)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrIssuer)
}

func TestVerifyFailsForUnknownKey(t *testing.T) {
	signer1, err := jwtx.NewSigner("RS256", "key1", testKeyPEM(t))
	require.NoError(t, err)
	signer2, err := jwtx.NewSigner("RS256", "key2", testKeyPEM(t))
	require.NoError(t, err)

	now := time.Now().UTC()
	claims := jwtx.NewAccessClaims(
		"user-123", "session-def", "", nil, nil,
		1*time.Minute, exampleIssuer, nil, "", "", now,
	)
	token, err := signer1.Sign(claims)
	require.NoError(t, err)

	// Keyset only contains key2
	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer2))

	verifier := jwtx.NewVerifier(keyset, exampleIssuer, nil)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrNoKey)
}

func TestVerifyFailsForExpiredToken(t *testing.T) {
	signer, err := jwtx.NewSigner("RS256", "k1", testKeyPEM(t))
	require.NoError(t, err)

	past := time.Now().UTC().Add(-10 * time.Minute)
	claims := jwtx.NewAccessClaims(
		"user-123", "session-old", "", nil, nil,
		1*time.Minute, exampleIssuer, nil, "", "", past,
	)
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	verifier := jwtx.NewVerifier(keyset, exampleIssuer, nil)
	_, err = verifier.Verify(token)
	require.Error(t, err)
}
