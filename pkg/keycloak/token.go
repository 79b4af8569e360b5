package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// TokenResponse is the token endpoint response. Keycloak adds the refresh
// token lifetime and the SSO session id to the RFC 6749 fields.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	IDToken          string `json:"id_token,omitempty"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
	SessionState     string `json:"session_state,omitempty"`
	Scope            string `json:"scope,omitempty"`
}

// ExchangeAuthorizationCode trades the code from the redirect for tokens.
func (c *Client) ExchangeAuthorizationCode(
	ctx context.Context,
	code, redirectURI, codeVerifier string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
		"client_id":    {c.cfg.ClientID},
	}
	if codeVerifier != "" {
		data.Set("code_verifier", codeVerifier)
	}

	return c.requestToken(ctx, data)
}

// RefreshGrant requests new tokens using a refresh token.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.cfg.ClientID},
	}

	return c.requestToken(ctx, data)
}

// PasswordGrant is the Direct Access Grant. The client must have it enabled
// in the realm. otp is the one-time code when the user has OTP configured.
func (c *Client) PasswordGrant(
	ctx context.Context,
	username, password, otp string,
	scopes []string,
) (*TokenResponse, error) {
	data := url.Values{
		"grant_type": {"password"},
		"client_id":  {c.cfg.ClientID},
		"username":   {username},
		"password":   {password},
	}
	if otp != "" {
		data.Set("otp", otp)
	}
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}

	return c.requestToken(ctx, data)
}

// TOTPCode computes the current code for a base32 secret, for headless
// logins where the secret sits in the environment.
func TOTPCode(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCode(strings.ToUpper(strings.ReplaceAll(secret, " ", "")), at)
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP code: %w", err)
	}
	return code, nil
}

// EndSession ends the SSO session the refresh token belongs to. This is the
// back-channel form of the logout redirect.
func (c *Client) EndSession(ctx context.Context, refreshToken string) error {
	data := url.Values{
		"client_id":     {c.cfg.ClientID},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.LogoutURL(),
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return parseErrorResponse(resp, body)
	}

	return nil
}

func (c *Client) requestToken(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.TokenURL(),
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var tokenResp TokenResponse
	if err := decodeJSON(resp, &tokenResp); err != nil {
		return nil, err
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	return &tokenResp, nil
}

// decodeJSON reads the body once for both error parsing and decoding.
func decodeJSON(resp *http.Response, target any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp, body)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
