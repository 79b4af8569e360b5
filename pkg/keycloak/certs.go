package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aussiebroadwan/todo/pkg/jwtx"
)

// FetchJWKS downloads the realm's public keys.
func (c *Client) FetchJWKS(ctx context.Context) (jwtx.JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.CertsURL(), nil)
	if err != nil {
		return jwtx.JWKS{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return jwtx.JWKS{}, fmt.Errorf("failed to send request: %w", err)
	}

	var jwks jwtx.JWKS
	if err := decodeJSON(resp, &jwks); err != nil {
		return jwtx.JWKS{}, err
	}
	return jwks, nil
}

// UserInfo is the userinfo endpoint payload for the default scopes.
type UserInfo struct {
	Sub               string `json:"sub"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
	Name              string `json:"name,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
}

// UserInfo asks the realm who the access token belongs to. Unlike the
// parsed token claims this reflects the server's current view of the user.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.UserInfoURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var info UserInfo
	if err := decodeJSON(resp, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// minRefetch stops a flood of tokens with bogus kids from hammering certs.
const minRefetch = 30 * time.Second

// Verifier checks access tokens against the realm JWKS the same way the API
// server does: RS256 signature, issuer, and expiry with leeway. Keys are
// fetched lazily and refetched once when an unknown kid shows up, which is
// how realm key rotation looks from the outside.
type Verifier struct {
	client   *Client
	keys     *jwtx.KeySet
	verifier *jwtx.RS256Verifier

	mu          sync.Mutex
	lastFetched time.Time
}

func NewVerifier(client *Client, leeway time.Duration) *Verifier {
	keys := jwtx.NewKeySet()
	return &Verifier{
		client: client,
		keys:   keys,
		verifier: jwtx.NewVerifierRS256(keys, jwtx.VerifyOptions{
			Issuer: client.Issuer(),
			Leeway: leeway,
		}),
	}
}

func (v *Verifier) Verify(ctx context.Context, token string) (*jwtx.Claims, error) {
	if !v.keys.IsReady() {
		if err := v.refresh(ctx, true); err != nil {
			return nil, err
		}
	}

	claims, err := v.verifier.Verify(token)
	if errors.Is(err, jwtx.ErrUnknownKID) {
		if rerr := v.refresh(ctx, false); rerr != nil {
			return nil, rerr
		}
		claims, err = v.verifier.Verify(token)
	}
	if err != nil {
		return nil, fmt.Errorf("keycloak: token verification failed: %w", err)
	}
	return claims, nil
}

func (v *Verifier) refresh(ctx context.Context, force bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !force && time.Since(v.lastFetched) < minRefetch {
		return nil
	}

	jwks, err := v.client.FetchJWKS(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch realm keys: %w", err)
	}
	if err := v.keys.ResetFromJWKS(jwks); err != nil {
		return fmt.Errorf("failed to load realm keys: %w", err)
	}
	v.lastFetched = time.Now()
	return nil
}
