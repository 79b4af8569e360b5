package jwtx

import (
	"crypto/rsa"
	"sync"
)

// KeySet holds RSA verification keys by kid. It is swapped wholesale when a
// fresh JWKS is fetched, so readers never see a half-updated set.
type KeySet struct {
	mu  sync.RWMutex
	jks JWKS
	pub map[string]*rsa.PublicKey
}

func NewKeySet() *KeySet {
	return &KeySet{pub: make(map[string]*rsa.PublicKey)}
}

// AddJWK parses and adds a single key. Non-signing keys are ignored.
func (k *KeySet) AddJWK(j JWK) error {
	if !j.signingKey() {
		return nil
	}

	pub, err := j.RSAPublicKey()
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[j.Kid] = pub
	k.jks.Keys = append(k.jks.Keys, j)
	return nil
}

// Get returns the public key for kid.
func (k *KeySet) Get(kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrUnknownKID
}

// PublicJWKS returns a snapshot for serving, which only test fakes do.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return JWKS{Keys: append([]JWK(nil), k.jks.Keys...)}
}

func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub) > 0
}

// ResetFromJWKS replaces all keys from a JWKS.
func (k *KeySet) ResetFromJWKS(jwks JWKS) error {
	next := NewKeySet()
	for _, j := range jwks.Keys {
		if err := next.AddJWK(j); err != nil {
			return err
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub = next.pub
	k.jks = next.jks
	return nil
}
