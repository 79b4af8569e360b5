package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerifyOptions captures what a verified token must look like.
type VerifyOptions struct {
	// Issuer the token must have. Empty means "don't care".
	Issuer string

	// Audience values, any one of which must appear in aud or azp.
	Audience []string

	// Leeway for exp/nbf. Because time sync is never perfect.
	Leeway time.Duration
}

// RS256Verifier validates JWTs signed with keys from a KeySet.
type RS256Verifier struct {
	keys *KeySet
	opts VerifyOptions
}

func NewVerifierRS256(keys *KeySet, opts VerifyOptions) *RS256Verifier {
	return &RS256Verifier{keys: keys, opts: opts}
}

// Verify checks the signature and claim requirements and returns the claims.
func (v *RS256Verifier) Verify(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		// exp/nbf are checked below so the leeway applies consistently
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid", ErrUnknownKID)
		}
		return v.keys.Get(kid)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownKID):
			return nil, ErrUnknownKID
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSig
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		}
		return nil, fmt.Errorf("jwtx: parse or verify: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}

	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateAudience(v.opts.Audience); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiryWithLeeway(v.opts.Leeway); err != nil {
		return nil, err
	}

	return claims, nil
}
