package jwtx

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	PublicJWK() JWK
	Validate() error
}

// SupportedAlgs lists the RSA signing algorithms we issue tokens with.
var SupportedAlgs = []string{
	jwt.SigningMethodRS256.Alg(),
	jwt.SigningMethodRS384.Alg(),
	jwt.SigningMethodRS512.Alg(),
}

// rsaMethods maps an alg name to its jwt signing method.
var rsaMethods = map[string]*jwt.SigningMethodRSA{
	jwt.SigningMethodRS256.Alg(): jwt.SigningMethodRS256,
	jwt.SigningMethodRS384.Alg(): jwt.SigningMethodRS384,
	jwt.SigningMethodRS512.Alg(): jwt.SigningMethodRS512,
}

// NewSigner creates an RSA signer for the given algorithm from PEM bytes.
// alg must be one of RS256, RS384, or RS512.
func NewSigner(alg, kid string, pemKey []byte) (Signer, error) {
	return newRSASigner(alg, kid, pemKey)
}

// RSASigner implements the Signer interface using RSASSA-PKCS1-v1_5.
type RSASigner struct {
	kid    string
	key    *rsa.PrivateKey
	pub    *rsa.PublicKey
	method *jwt.SigningMethodRSA
}

// newRSASigner loads an RSA private key from PEM bytes. Handles both
// PKCS1 and PKCS8 because otherwise we will be chasing a bug for longer
// than we would be willing to admit.
func newRSASigner(alg, kid string, pemKey []byte) (*RSASigner, error) {
	method, ok := rsaMethods[alg]
	if !ok {
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q", alg)
	}

	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM for RSA key")
	}

	var key *rsa.PrivateKey
	var err error

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		priv, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err2)
		}
		rk, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("jwtx: not RSA private key")
		}
		key = rk
	default:
		return nil, fmt.Errorf("jwtx: unsupported PEM type %q", block.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("jwtx: parse RSA key: %w", err)
	}

	return &RSASigner{
		kid:    kid,
		key:    key,
		pub:    &key.PublicKey,
		method: method,
	}, nil
}

func (s *RSASigner) Alg() string { return s.method.Alg() }
func (s *RSASigner) KID() string { return s.kid }

// Sign takes your claims and turns them into a signed JWT string.
func (s *RSASigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// PublicJWK returns a JWK for inclusion in a JWKS. This is what you'll
// publish so others can verify your tokens.
func (s *RSASigner) PublicJWK() JWK {
	return NewRSAJWK(s.kid, "sig", s.method.Alg(), s.pub)
}

// Validate does a quick sanity check to make sure we actually have keys.
func (s *RSASigner) Validate() error {
	if s.key == nil || s.pub == nil {
		return errors.New("jwtx: nil RSA key")
	}
	return nil
}
