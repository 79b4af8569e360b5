package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TODO_DATA_DIR", "/tmp/todo-test")

	cfg := LoadConfig()
	require.Equal(t, "http://localhost:8000/api", cfg.APIURL)
	require.Equal(t, "http://localhost:8000", cfg.KeycloakURL)
	require.Equal(t, "todo", cfg.KeycloakRealm)
	require.Equal(t, "todo-react", cfg.KeycloakClientID)
	require.Equal(t, []string{"openid", "profile", "email"}, cfg.Scopes)
	require.Equal(t, 8765, cfg.RedirectPort)
	require.Equal(t, 5*time.Minute, cfg.LoginTimeout)
	require.Equal(t, "sqlite", cfg.StorageDriver)
	require.Equal(t, filepath.Join("/tmp/todo-test", "todo.db"), cfg.DatabaseFile)
	require.Equal(t, filepath.Join("/tmp/todo-test", "master.key"), cfg.MasterKeyFile)
	require.Zero(t, cfg.HTTPTimeout)
	require.Zero(t, cfg.APIRateLimit)
	require.False(t, cfg.AutoLogin)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, "text", cfg.LogFormat)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TODO_API_URL", "https://todo.example.com/api")
	t.Setenv("KEYCLOAK_SCOPES", "openid offline_access")
	t.Setenv("KEYCLOAK_REDIRECT_PORT", "0")
	t.Setenv("KEYCLOAK_VERIFY_TOKENS", "true")
	t.Setenv("TODO_HTTP_TIMEOUT", "15")
	t.Setenv("TODO_API_RATE_LIMIT", "2.5")
	t.Setenv("TODO_AUTO_LOGIN", "1")
	t.Setenv("KEYCLOAK_LOGIN_TIMEOUT", "not-a-duration")

	cfg := LoadConfig()
	require.Equal(t, "https://todo.example.com/api", cfg.APIURL)
	require.Equal(t, []string{"openid", "offline_access"}, cfg.Scopes)
	require.Zero(t, cfg.RedirectPort)
	require.True(t, cfg.VerifyTokens)
	require.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	require.InDelta(t, 2.5, cfg.APIRateLimit, 0.0001)
	require.True(t, cfg.AutoLogin)
	require.Equal(t, 5*time.Minute, cfg.LoginTimeout, "bad values fall back")
}
