package jwtx

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"math/big"
)

// JWK is a public key in JSON Web Key format (RFC 7517). Keycloak publishes
// extra members (x5c, x5t, ...) that we simply ignore.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"` // "sig" or "enc"
	Alg string `json:"alg,omitempty"`
	Kid string `json:"kid,omitempty"`

	N string `json:"n,omitempty"` // modulus (base64url)
	E string `json:"e,omitempty"` // exponent (base64url)
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewRSAJWK builds a JWK for an RSA public key.
func NewRSAJWK(kid, use, alg string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Use: use,
		Alg: alg,
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// RSAPublicKey decodes n and e.
func (j JWK) RSAPublicKey() (*rsa.PublicKey, error) {
	if j.Kty != "RSA" {
		return nil, errors.New("jwtx: unsupported kty " + j.Kty)
	}

	nb, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, err
	}
	if len(nb) == 0 || len(eb) == 0 {
		return nil, errors.New("jwtx: empty RSA modulus or exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}

// signingKey reports whether the key is an RS256 signature key. The realm
// certs endpoint also lists RSA-OAEP encryption keys, which must be skipped.
func (j JWK) signingKey() bool {
	if j.Kty != "RSA" || j.Use == "enc" {
		return false
	}
	return j.Alg == "" || j.Alg == "RS256"
}
