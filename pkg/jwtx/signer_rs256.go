package jwtx

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/todo/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// RS256Signer mints tokens the way a realm does. The client never signs
// anything in production; this exists for fakes and fixtures.
type RS256Signer struct {
	kid string
	key *rsa.PrivateKey
}

// NewSignerRS256 loads an RSA private key from PKCS1 or PKCS8 PEM.
func NewSignerRS256(kid string, pemKey []byte) (*RS256Signer, error) {
	key, err := cryptox.ParseRSAPrivateKey(pemKey)
	if err != nil {
		return nil, fmt.Errorf("jwtx: load RSA key: %w", err)
	}
	return &RS256Signer{kid: kid, key: key}, nil
}

func (s *RS256Signer) KID() string { return s.kid }

func (s *RS256Signer) Sign(claims Claims) (string, error) {
	if s.key == nil {
		return "", errors.New("jwtx: nil RSA key")
	}
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// MustSign is Sign for test fixtures.
func (s *RS256Signer) MustSign(claims Claims) string {
	tok, err := s.Sign(claims)
	if err != nil {
		panic(err)
	}
	return tok
}

// PublicJWK is what a realm publishes on its certs endpoint for this key.
func (s *RS256Signer) PublicJWK() JWK {
	return NewRSAJWK(s.kid, "sig", jwt.SigningMethodRS256.Alg(), &s.key.PublicKey)
}
