package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(TokenSize256)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	require.Len(t, raw, TokenSize256)

	other, err := GenerateToken(TokenSize256)
	require.NoError(t, err)
	require.NotEqual(t, token, other)
}

func TestGenerateTokenRejectsBadSize(t *testing.T) {
	_, err := GenerateToken(0)
	require.Error(t, err)

	_, err = GenerateToken(-8)
	require.Error(t, err)
}

func TestFingerprintTokenIsDeterministic(t *testing.T) {
	fp1 := FingerprintToken("some-opaque-token")
	fp2 := FingerprintToken("some-opaque-token")
	require.Equal(t, fp1, fp2)

	require.NotEqual(t, fp1, FingerprintToken("some-opaque-tokem"))

	// SHA-256 output is 32 bytes -> 43 chars unpadded base64url.
	require.Len(t, fp1, 43)
}
