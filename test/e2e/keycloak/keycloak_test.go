package keycloak_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aussiebroadwan/todo/internal/session"
	"github.com/aussiebroadwan/todo/internal/storage"
	"github.com/aussiebroadwan/todo/internal/storage/drivers/memory"
	"github.com/aussiebroadwan/todo/pkg/keycloak"
	"github.com/aussiebroadwan/todo/pkg/slogx"
	"github.com/aussiebroadwan/todo/pkg/todoapi"
	"github.com/aussiebroadwan/todo/pkg/todoapi/todoapitest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * End-to-end checks of the session against a real Keycloak. They pull and
 * start a container, so they only run with TODO_E2E=1.
 */

const (
	keycloakImage = "quay.io/keycloak/keycloak:26.0"

	realmName = "todo"
	clientID  = "todo-react"
	username  = "alice"
	password  = "wonderland"
)

// setupKeycloak starts Keycloak with testdata/realm.json imported and
// returns its base URL.
func setupKeycloak(t *testing.T) string {
	t.Helper()

	if os.Getenv("TODO_E2E") != "1" {
		t.Skip("set TODO_E2E=1 to run Keycloak end-to-end tests")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        keycloakImage,
		ExposedPorts: []string{"8080/tcp"},
		Cmd:          []string{"start-dev", "--import-realm"},
		Env: map[string]string{
			"KC_BOOTSTRAP_ADMIN_USERNAME": "admin",
			"KC_BOOTSTRAP_ADMIN_PASSWORD": "admin",
		},
		Files: []testcontainers.ContainerFile{{
			HostFilePath:      "testdata/realm.json",
			ContainerFilePath: "/opt/keycloak/data/import/realm.json",
			FileMode:          0o644,
		}},
		WaitingFor: wait.ForHTTP("/realms/" + realmName + "/.well-known/openid-configuration").
			WithPort("8080/tcp").
			WithStartupTimeout(3 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func newClient(serverURL string) *keycloak.Client {
	return keycloak.NewClient(keycloak.Config{
		ServerURL: serverURL,
		Realm:     realmName,
		ClientID:  clientID,
	})
}

func newHolder(t *testing.T, client *keycloak.Client, store storage.Store) (*session.Holder, *keycloak.Adapter) {
	t.Helper()

	a := keycloak.NewAdapter(keycloak.AdapterOptions{
		Client:   client,
		Store:    storage.NewRecord(store, storage.SessionRecordKey),
		Verifier: keycloak.NewVerifier(client, 30*time.Second),
		Scopes:   []string{"openid", "profile", "email"},
		Logger:   slogx.Discard(),
	})
	t.Cleanup(func() { _ = a.Close() })
	return session.New(a, storage.NewTokenCache(store), slogx.Discard()), a
}

func TestKeycloakSession(t *testing.T) {
	baseURL := setupKeycloak(t)
	ctx := context.Background()
	client := newClient(baseURL)
	store := memory.NewStore()

	h, adapter := newHolder(t, client, store)
	h.Initialize(ctx)
	require.False(t, h.Authenticated())

	t.Run("password login", func(t *testing.T) {
		require.NoError(t, h.LoginWithPassword(ctx, username, password, ""))
		require.True(t, h.Authenticated())
		require.True(t, h.HasRole("todo-user"))
		require.Equal(t, username, h.Principal().PreferredUsername)
		require.Equal(t, client.Issuer(), h.Principal().Issuer)
	})

	t.Run("token verifies against the realm keys", func(t *testing.T) {
		claims, err := keycloak.NewVerifier(client, 0).Verify(ctx, h.Token())
		require.NoError(t, err)
		require.Equal(t, h.Principal().Subject, claims.Subject)
	})

	t.Run("userinfo", func(t *testing.T) {
		info, err := adapter.UserInfo(ctx)
		require.NoError(t, err)
		require.Equal(t, username, info.PreferredUsername)
		require.Equal(t, "alice@example.com", info.Email)
	})

	t.Run("resume from storage", func(t *testing.T) {
		resumed, _ := newHolder(t, client, store)
		resumed.Initialize(ctx)
		require.True(t, resumed.Authenticated())
		require.Equal(t, h.Principal().Subject, resumed.Principal().Subject)
	})

	t.Run("forced refresh", func(t *testing.T) {
		before := h.Token()
		refreshed, err := h.Refresh(ctx, -1)
		require.NoError(t, err)
		require.True(t, refreshed)
		require.NotEqual(t, before, h.Token())

		refreshed, err = h.Refresh(ctx, 30*time.Second)
		require.NoError(t, err)
		require.False(t, refreshed)
	})

	t.Run("api pipeline with realm-verified tokens", func(t *testing.T) {
		api := todoapitest.NewServer(t)
		verifier := keycloak.NewVerifier(client, 0)
		api.Authorize(func(token string) bool {
			_, err := verifier.Verify(context.Background(), token)
			return err == nil
		})

		c := todoapi.NewClient(api.BaseURL(), h)
		created, err := c.CreateTodo(ctx, todoapi.CreateTodoRequest{Title: "Buy milk"})
		require.NoError(t, err)
		require.False(t, created.Completed)

		list, err := c.ListTodos(ctx)
		require.NoError(t, err)
		require.Len(t, list.Results, 1)
		require.Equal(t, "Buy milk", list.Results[0].Title)
	})

	t.Run("logout ends the realm session", func(t *testing.T) {
		refresh := adapter.RefreshToken()
		require.NotEmpty(t, refresh)

		require.NoError(t, h.Logout(ctx))
		require.False(t, h.Authenticated())

		_, err := client.RefreshGrant(ctx, refresh)
		require.Error(t, err)
		require.True(t, keycloak.IsInvalidGrant(err), err.Error())
	})
}

func TestKeycloakBadCredentials(t *testing.T) {
	baseURL := setupKeycloak(t)
	ctx := context.Background()

	h, _ := newHolder(t, newClient(baseURL), memory.NewStore())
	h.Initialize(ctx)

	err := h.LoginWithPassword(ctx, username, "not-the-password", "")
	require.Error(t, err)
	require.True(t, keycloak.IsInvalidGrant(err), err.Error())
	require.False(t, h.Authenticated())
}
