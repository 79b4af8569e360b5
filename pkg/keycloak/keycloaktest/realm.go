// Package keycloaktest is an in-process stand-in for a Keycloak realm's
// OpenID Connect endpoints, good enough to drive the adapter end to end.
package keycloaktest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/todo/pkg/cryptox"
	"github.com/aussiebroadwan/todo/pkg/httpx"
	"github.com/aussiebroadwan/todo/pkg/jwtx"
	"github.com/aussiebroadwan/todo/pkg/jwtx/jwtxtest"
	"github.com/pquerna/otp/totp"
)

const (
	RealmName = "todo"
	ClientID  = "todo-react"
	Username  = "alice"
	Password  = "wonderland"
)

type authRequest struct {
	redirectURI string
	challenge   string
	nonce       string
}

// Realm serves /realms/todo/protocol/openid-connect/* for one user.
type Realm struct {
	*httptest.Server
	Signer *jwtxtest.Realm

	mu         sync.Mutex
	accessTTL  time.Duration
	otpSecret  string
	codes      map[string]authRequest
	refresh    map[string]bool
	grants     map[string]int
	endSession int
}

func NewRealm(t testing.TB) *Realm {
	t.Helper()

	r := &Realm{
		accessTTL: 5 * time.Minute,
		codes:     make(map[string]authRequest),
		refresh:   make(map[string]bool),
		grants:    make(map[string]int),
	}

	base := "/realms/" + RealmName + "/protocol/openid-connect/"
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+base+"auth", r.handleAuth)
	mux.HandleFunc("POST "+base+"token", r.handleToken)
	mux.HandleFunc("POST "+base+"logout", r.handleLogout)
	mux.HandleFunc("GET "+base+"certs", r.handleCerts)
	mux.HandleFunc("GET "+base+"userinfo", r.handleUserInfo)

	r.Server = httptest.NewServer(mux)
	t.Cleanup(r.Close)

	r.Signer = jwtxtest.NewRealm(t, r.URL+"/realms/"+RealmName, ClientID)
	return r
}

// SetAccessTTL changes the lifetime of tokens minted from now on. Negative
// values mint tokens that are already expired.
func (r *Realm) SetAccessTTL(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accessTTL = d
}

// RequireOTP makes the password grant demand a TOTP code for secret.
func (r *Realm) RequireOTP(secret string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.otpSecret = secret
}

// GrantCount reports how many token requests of grantType were served.
func (r *Realm) GrantCount(grantType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grants[grantType]
}

func (r *Realm) EndSessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endSession
}

// RevokeAll kills every refresh token, like an admin ending all sessions.
func (r *Realm) RevokeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresh = make(map[string]bool)
}

// handleAuth skips the login form: it approves straight away and redirects
// the browser back with a code, which is what a returning SSO user sees.
func (r *Realm) handleAuth(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	if q.Get("client_id") != ClientID {
		httpx.WriteJSON(w, http.StatusBadRequest, oauthError("invalid_client", "unknown client"))
		return
	}

	code := cryptox.MustGenerateToken(cryptox.TokenSize128)
	r.mu.Lock()
	r.codes[code] = authRequest{
		redirectURI: q.Get("redirect_uri"),
		challenge:   q.Get("code_challenge"),
		nonce:       q.Get("nonce"),
	}
	r.mu.Unlock()

	back, _ := url.Parse(q.Get("redirect_uri"))
	params := back.Query()
	params.Set("code", code)
	params.Set("state", q.Get("state"))
	back.RawQuery = params.Encode()

	http.Redirect(w, req, back.String(), http.StatusFound)
}

func (r *Realm) handleToken(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, oauthError("invalid_request", err.Error()))
		return
	}
	if req.PostForm.Get("client_id") != ClientID {
		httpx.WriteJSON(w, http.StatusUnauthorized, oauthError("invalid_client", "Invalid client credentials"))
		return
	}

	grant := req.PostForm.Get("grant_type")
	r.mu.Lock()
	r.grants[grant]++
	otpSecret := r.otpSecret
	r.mu.Unlock()

	var nonce string
	switch grant {
	case "password":
		if req.PostForm.Get("username") != Username || req.PostForm.Get("password") != Password {
			httpx.WriteJSON(w, http.StatusUnauthorized, oauthError("invalid_grant", "Invalid user credentials"))
			return
		}
		if otpSecret != "" && !totp.Validate(req.PostForm.Get("otp"), otpSecret) {
			httpx.WriteJSON(w, http.StatusUnauthorized, oauthError("invalid_grant", "Invalid user credentials"))
			return
		}

	case "authorization_code":
		r.mu.Lock()
		ar, ok := r.codes[req.PostForm.Get("code")]
		delete(r.codes, req.PostForm.Get("code"))
		r.mu.Unlock()

		if !ok || ar.redirectURI != req.PostForm.Get("redirect_uri") {
			httpx.WriteJSON(w, http.StatusBadRequest, oauthError("invalid_grant", "Code not valid"))
			return
		}
		if cryptox.FingerprintToken(req.PostForm.Get("code_verifier")) != ar.challenge {
			httpx.WriteJSON(w, http.StatusBadRequest, oauthError("invalid_grant", "PKCE verification failed"))
			return
		}
		nonce = ar.nonce

	case "refresh_token":
		tok := req.PostForm.Get("refresh_token")
		r.mu.Lock()
		ok := r.refresh[tok]
		delete(r.refresh, tok)
		r.mu.Unlock()

		if !ok {
			httpx.WriteJSON(w, http.StatusBadRequest, oauthError("invalid_grant", "Session not active"))
			return
		}

	default:
		httpx.WriteJSON(w, http.StatusBadRequest, oauthError("unsupported_grant_type", grant))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, r.mint(nonce))
}

func (r *Realm) mint(nonce string) map[string]any {
	refresh := cryptox.MustGenerateToken(cryptox.TokenSize256)
	r.mu.Lock()
	r.refresh[refresh] = true
	ttl := r.accessTTL
	r.mu.Unlock()

	claims := r.Signer.Claims(Username, ttl)
	claims.ResourceAccess = map[string]jwtx.Access{ClientID: {Roles: []string{"todo-user"}}}

	id := r.Signer.Claims(Username, ttl)
	id.Typ = "ID"
	id.Nonce = nonce

	return map[string]any{
		"access_token":       r.Signer.Signer.MustSign(claims),
		"id_token":           r.Signer.Signer.MustSign(id),
		"refresh_token":      refresh,
		"token_type":         "Bearer",
		"expires_in":         int(ttl.Seconds()),
		"refresh_expires_in": 1800,
		"scope":              claims.Scope,
	}
}

func (r *Realm) handleLogout(w http.ResponseWriter, req *http.Request) {
	_ = req.ParseForm()

	r.mu.Lock()
	r.endSession++
	delete(r.refresh, req.PostForm.Get("refresh_token"))
	r.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (r *Realm) handleCerts(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, r.Signer.JWKS())
}

func (r *Realm) handleUserInfo(w http.ResponseWriter, req *http.Request) {
	tok := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
	claims, err := jwtx.ParseUnverified(tok)
	if err != nil || claims.ExpiresWithin(0, time.Now()) {
		httpx.WriteJSON(w, http.StatusUnauthorized, oauthError("invalid_token", "Token verification failed"))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"sub":                claims.Subject,
		"preferred_username": claims.PreferredUsername,
		"email":              claims.Email,
	})
}

func oauthError(code, desc string) map[string]string {
	return map[string]string{"error": code, "error_description": desc}
}
