package keycloak

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// OAuth2 error codes Keycloak actually sends back (RFC 6749 plus a couple of
// its own).
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeLoginRequired        = "login_required"
)

var (
	// ErrNotRenewable means there is no refresh token to renew with.
	ErrNotRenewable = errors.New("keycloak: session is not renewable")

	// ErrStateMismatch is a callback whose state we did not issue.
	ErrStateMismatch = errors.New("keycloak: authorization state mismatch")

	// ErrLoginTimeout means the browser never came back to the loopback listener.
	ErrLoginTimeout = errors.New("keycloak: timed out waiting for login")
)

// OAuth2Error is an {error, error_description} response from the realm.
type OAuth2Error struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *OAuth2Error) Error() string {
	if e.Description == "" {
		return "keycloak: " + e.Code
	}
	return fmt.Sprintf("keycloak: %s: %s", e.Code, e.Description)
}

// IsInvalidGrant reports whether err says the refresh token or code is dead.
// Keycloak answers an expired SSO session this way.
func IsInvalidGrant(err error) bool {
	var oe *OAuth2Error
	return errors.As(err, &oe) && oe.Code == ErrorCodeInvalidGrant
}

func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var oe OAuth2Error
	if err := json.Unmarshal(body, &oe); err == nil && oe.Code != "" {
		oe.StatusCode = resp.StatusCode
		return &oe
	}

	// Proxies and misconfigured realms answer with HTML; keep it short.
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return fmt.Errorf("keycloak: request failed with status %d: %s", resp.StatusCode, snippet)
}
