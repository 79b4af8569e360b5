package cli_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/todo/internal/app"
	"github.com/aussiebroadwan/todo/internal/cli"
	"github.com/aussiebroadwan/todo/pkg/keycloak/keycloaktest"
	"github.com/aussiebroadwan/todo/pkg/todoapi/todoapitest"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t     *testing.T
	cfg   app.Config
	realm *keycloaktest.Realm
	api   *todoapitest.Server

	openBrowser func(string) error
}

// newHarness shares one data directory across runs, so a login in one
// command is resumed by the next, the way it is from a shell.
func newHarness(t *testing.T) *harness {
	t.Helper()

	realm := keycloaktest.NewRealm(t)
	api := todoapitest.NewServer(t)
	dir := t.TempDir()

	return &harness{
		t:     t,
		realm: realm,
		api:   api,
		cfg: app.Config{
			APIURL:           api.BaseURL(),
			KeycloakURL:      realm.URL,
			KeycloakRealm:    keycloaktest.RealmName,
			KeycloakClientID: keycloaktest.ClientID,
			Scopes:           []string{"openid"},
			LoginTimeout:     5 * time.Second,
			DataDir:          dir,
			StorageDriver:    "file",
			DatabaseFile:     filepath.Join(dir, "todo.db"),
			StorageFile:      filepath.Join(dir, "storage.json"),
			MasterKeyFile:    filepath.Join(dir, "master.key"),
			APIRateBurst:     1,
			LogLevel:         "error",
		},
	}
}

func (h *harness) run(args ...string) (int, string, string) {
	h.t.Helper()

	var stdout, stderr bytes.Buffer
	cfg := h.cfg
	code := cli.Execute(context.Background(), args, cli.Options{
		Stdout:     &stdout,
		Stderr:     &stderr,
		Config:     &cfg,
		AppOptions: app.Options{LogOutput: io.Discard, OpenBrowser: h.openBrowser},
	})
	return code, stdout.String(), stderr.String()
}

func (h *harness) login() {
	h.t.Helper()

	code, out, errOut := h.run("auth", "login", "--username", keycloaktest.Username, "--password", keycloaktest.Password)
	require.Equal(h.t, cli.ExitOK, code, errOut)
	require.Contains(h.t, out, "logged in as")
}

func TestNotLoggedIn(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	for _, args := range [][]string{{"ls"}, {"add", "Buy milk"}, {"done", "1"}, {"rm", "1"}, {"me"}, {"auth", "whoami"}} {
		code, _, errOut := h.run(args...)
		require.Equal(t, cli.ExitUsage, code, args)
		require.Contains(t, errOut, "todo auth login", args)
	}
	require.Empty(t, h.api.Requests())

	code, out, _ := h.run("auth", "status")
	require.Equal(t, cli.ExitOK, code)
	require.Contains(t, out, "not logged in")
}

func TestUsageErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	tests := []struct {
		name   string
		args   []string
		stderr string
	}{
		{"bad id", []string{"done", "abc"}, "not a todo id"},
		{"missing id", []string{"rm"}, "usage: todo rm <id>"},
		{"show without id", []string{"show"}, "usage: todo show <id>"},
		{"unknown flag", []string{"ls", "--nope"}, "unknown flag"},
		{"empty title", []string{"add", "  "}, "Title cannot be empty"},
		{"nothing to edit", []string{"edit", "1"}, "nothing to change"},
		{"password without username", []string{"auth", "login", "--username", "alice"}, "--password is required"},
		{"register mismatch", []string{"register", "--username", "bob", "--email", "bob@example.com",
			"--password", "a", "--password-confirm", "b"}, "Password fields didn't match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := h.run(tt.args...)
			require.Equal(t, cli.ExitUsage, code)
			require.Contains(t, errOut, tt.stderr)
		})
	}
}

func TestTodoCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.login()

	code, out, errOut := h.run("add", "Buy", "milk", "-d", "2 litres")
	require.Equal(t, cli.ExitOK, code, errOut)
	require.Contains(t, out, "added #1 Buy milk")

	code, out, _ = h.run("add", "Walk dog")
	require.Equal(t, cli.ExitOK, code)
	require.Contains(t, out, "added #2 Walk dog")

	code, out, _ = h.run("ls")
	require.Equal(t, cli.ExitOK, code)
	require.Contains(t, out, "Buy milk")
	require.Contains(t, out, "2 litres")
	require.Contains(t, out, "0 done, 2 pending, 2 total")

	code, out, _ = h.run("done", "1")
	require.Equal(t, cli.ExitOK, code)
	require.Contains(t, out, "#1 Buy milk is done")

	code, out, _ = h.run("ls", "--group")
	require.Equal(t, cli.ExitOK, code)
	require.Contains(t, out, "Pending")
	require.Contains(t, out, "Done")
	require.Contains(t, out, "1 done, 1 pending, 2 total")

	code, out, _ = h.run("edit", "2", "--title", "Walk the dog", "--completed")
	require.Equal(t, cli.ExitOK, code)
	require.Contains(t, out, "updated #2 Walk the dog")

	code, out, errOut = h.run("show", "2")
	require.Equal(t, cli.ExitOK, code, errOut)
	require.Contains(t, out, "Walk the dog")
	require.Contains(t, out, "done")

	code, _, errOut = h.run("show", "99")
	require.Equal(t, cli.ExitError, code)
	require.Contains(t, errOut, "no such todo")

	code, _, errOut = h.run("rm", "99")
	require.Equal(t, cli.ExitError, code)
	require.Contains(t, errOut, "no such todo")

	code, out, _ = h.run("rm", "1")
	require.Equal(t, cli.ExitOK, code)
	require.Contains(t, out, "removed #1")

	todos := h.api.Todos()
	require.Len(t, todos, 1)
	require.Equal(t, "Walk the dog", todos[0].Title)
	require.True(t, todos[0].Completed)

	for _, r := range h.api.Requests() {
		require.Contains(t, r.Authorization, "Bearer ", r.Path)
		require.NotEmpty(t, r.RequestID, r.Path)
	}
}

func TestServerErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.login()

	h.api.FailNext("POST /todos/", 1)
	code, _, errOut := h.run("add", "Flaky")
	require.Equal(t, cli.ExitError, code)
	require.Contains(t, errOut, "request failed: boom")
}

func TestAuthCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.login()

	code, out, _ := h.run("auth", "status")
	require.Equal(t, cli.ExitOK, code)
	require.Contains(t, out, "authenticated")
	require.Contains(t, out, "todo-react")
	require.Contains(t, out, "renewable")
	require.Contains(t, out, "roles")
	require.Contains(t, out, "todo-user")

	code, out, _ = h.run("auth", "whoami", "--has-role", "todo-user")
	require.Equal(t, cli.ExitOK, code)
	require.Contains(t, out, "has role todo-user")

	code, _, errOut := h.run("auth", "whoami", "--has-role", "admin")
	require.Equal(t, cli.ExitError, code)
	require.Contains(t, errOut, "missing role admin")

	code, out, _ = h.run("auth", "whoami", "--remote")
	require.Equal(t, cli.ExitOK, code)
	require.Contains(t, out, keycloaktest.Username)
	require.Contains(t, out, "todo-user")

	code, out, _ = h.run("me")
	require.Equal(t, cli.ExitOK, code)
	require.Contains(t, out, keycloaktest.Username)

	code, out, _ = h.run("register", "--username", "bob", "--email", "bob@example.com",
		"--password", "hunter22", "--password-confirm", "hunter22")
	require.Equal(t, cli.ExitOK, code)
	require.Contains(t, out, "registered bob")

	code, _, errOut = h.run("register", "--username", "bob", "--email", "bob@example.com",
		"--password", "hunter22", "--password-confirm", "hunter22")
	require.Equal(t, cli.ExitError, code)
	require.Contains(t, errOut, "username")

	code, out, _ = h.run("auth", "logout")
	require.Equal(t, cli.ExitOK, code)
	require.Contains(t, out, "logged out")
	require.Equal(t, 1, h.realm.EndSessionCount())

	code, _, _ = h.run("ls")
	require.Equal(t, cli.ExitUsage, code)

	code, out, _ = h.run("auth", "logout")
	require.Equal(t, cli.ExitOK, code)
	require.Contains(t, out, "not logged in")
}

// followingBrowser plays the user's browser: it follows the authorize URL
// through the realm's redirect back to the loopback callback.
func followingBrowser(opened *atomic.Int32) func(string) error {
	return func(u string) error {
		opened.Add(1)
		go func() {
			resp, err := http.Get(u)
			if err == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}()
		return nil
	}
}

func TestAutoLoginFromLoggedOut(t *testing.T) {
	t.Parallel()

	var opened atomic.Int32
	h := newHarness(t)
	h.cfg.AutoLogin = true
	h.openBrowser = followingBrowser(&opened)
	h.api.Seed("Buy milk")

	code, out, errOut := h.run("ls")
	require.Equal(t, cli.ExitOK, code, errOut)
	require.Equal(t, int32(1), opened.Load(), "login should start before listing")
	require.Equal(t, 1, h.realm.GrantCount("authorization_code"))
	require.Contains(t, errOut, "starting login")
	require.Contains(t, out, "Buy milk")
	require.Contains(t, out, "0 done, 1 pending, 1 total")

	code, out, errOut = h.run("done", "1")
	require.Equal(t, cli.ExitOK, code, errOut)
	require.Contains(t, out, "#1 Buy milk is done")
	require.Equal(t, int32(1), opened.Load(), "the stored session is resumed")

	for _, r := range h.api.Requests() {
		require.Contains(t, r.Authorization, "Bearer ", r.Path)
	}
}

func TestAutoLoginBrowserFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.AutoLogin = true
	h.cfg.LoginTimeout = 200 * time.Millisecond
	h.openBrowser = func(string) error { return nil } // never completes

	code, _, errOut := h.run("ls")
	require.Equal(t, cli.ExitError, code)
	require.Contains(t, errOut, "automatic login failed")
	require.Empty(t, h.api.Requests())
}

func TestBadCredentials(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	code, _, errOut := h.run("auth", "login", "--username", "alice", "--password", "wrong")
	require.Equal(t, cli.ExitError, code)
	require.NotEmpty(t, errOut)

	code, _, _ = h.run("ls")
	require.Equal(t, cli.ExitUsage, code)
}
