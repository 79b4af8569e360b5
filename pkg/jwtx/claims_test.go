package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/todo/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestRoles(t *testing.T) {
	t.Parallel()

	c := &jwtx.Claims{
		RealmAccess: jwtx.Access{Roles: []string{"offline_access", "admin"}},
		ResourceAccess: map[string]jwtx.Access{
			"todo-react": {Roles: []string{"editor"}},
		},
	}

	require.True(t, c.HasRealmRole("admin"))
	require.False(t, c.HasRealmRole("editor"))
	require.True(t, c.HasResourceRole("editor", "todo-react"))
	require.False(t, c.HasResourceRole("editor", "other"))
	require.False(t, c.HasResourceRole("admin", "todo-react"))
}

func TestExpiresWithin(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))}}

	require.False(t, c.ExpiresWithin(30*time.Second, now))
	require.True(t, c.ExpiresWithin(2*time.Minute, now))
	require.True(t, c.ExpiresWithin(0, now.Add(2*time.Minute)))

	require.False(t, (&jwtx.Claims{}).ExpiresWithin(time.Hour, now), "no exp never expires")
}

func TestValidateIssuer(t *testing.T) {
	t.Parallel()

	c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "http://kc/realms/todo"}}

	t.Run("matching issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer("http://kc/realms/todo"))
	})

	t.Run("empty expected issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer(""))
	})

	t.Run("mismatched issuer", func(t *testing.T) {
		require.ErrorIs(t, c.ValidateIssuer("http://kc/realms/other"), jwtx.ErrIssuer)
	})
}

func TestValidateAudienceAcceptsAZP(t *testing.T) {
	t.Parallel()

	c := &jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Audience: []string{"account"}},
		AZP:              "todo-react",
	}

	require.NoError(t, c.ValidateAudience(nil))
	require.NoError(t, c.ValidateAudience([]string{"account"}))
	require.NoError(t, c.ValidateAudience([]string{"todo-react"}))
	require.ErrorIs(t, c.ValidateAudience([]string{"nope"}), jwtx.ErrAudience)
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Ada L", (&jwtx.Claims{Name: "Ada L", PreferredUsername: "ada"}).DisplayName())
	require.Equal(t, "ada", (&jwtx.Claims{PreferredUsername: "ada"}).DisplayName())

	c := &jwtx.Claims{}
	c.Subject = "sub-1"
	require.Equal(t, "sub-1", c.DisplayName())
}

func TestParseUnverified(t *testing.T) {
	t.Parallel()

	_, err := jwtx.ParseUnverified("not.a.jwt")
	require.ErrorIs(t, err, jwtx.ErrMalformed)
}
