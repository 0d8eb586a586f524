package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateRSAKeyPair(t *testing.T) {
	privPEM, pubPEM, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	require.Contains(t, string(privPEM), "RSA PRIVATE KEY")
	require.Contains(t, string(pubPEM), "PUBLIC KEY")

	priv, err := ParseRSAPrivateKey(privPEM)
	require.NoError(t, err)
	require.Equal(t, 2048, priv.N.BitLen())

	pub, err := ParseRSAPublicKey(pubPEM)
	require.NoError(t, err)
	require.Zero(t, pub.N.Cmp(priv.PublicKey.N))
}

func TestGenerateRSAKeyPairRejectsOddSizes(t *testing.T) {
	for _, bits := range []int{0, 1024, 2049, 8192} {
		_, _, err := GenerateRSAKeyPair(bits)
		require.Error(t, err, "bits=%d", bits)
	}
}

func TestParseRSAPrivateKeyRejectsGarbage(t *testing.T) {
	_, err := ParseRSAPrivateKey([]byte("not a pem"))
	require.Error(t, err)

	_, err = ParseRSAPrivateKey([]byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----"))
	require.Error(t, err)
}
