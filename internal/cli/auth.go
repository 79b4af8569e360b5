package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/todo/internal/app"
	"github.com/aussiebroadwan/todo/pkg/cryptox"
	"github.com/aussiebroadwan/todo/pkg/jwtx"
	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func (rt *runtime) authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in, sign out and inspect the session",
	}

	cmd.AddCommand(rt.loginCmd())
	cmd.AddCommand(rt.logoutCmd())
	cmd.AddCommand(rt.statusCmd())
	cmd.AddCommand(rt.whoamiCmd())
	return cmd
}

func (rt *runtime) loginCmd() *cobra.Command {
	var username, password, otp string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser, or with --username for a headless login",
		Long: `Sign in through Keycloak.

Without flags this opens the realm's login page in your browser and waits for
it to redirect back to a local callback. With --username and --password it
uses the direct grant instead, which suits scripts and CI.`,
		Args: args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username != "" && password == "" {
				return usageError{fmt.Errorf("--password is required with --username")}
			}

			a, err := rt.application(cmd.Context())
			if err != nil {
				return err
			}

			if username != "" {
				err = a.Session().LoginWithPassword(cmd.Context(), username, password, otp)
			} else {
				err = rt.browserLogin(cmd.Context(), a)
			}
			if err != nil {
				return err
			}

			ok(rt.out, "logged in as "+displayName(a))
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username for a direct grant login")
	cmd.Flags().StringVar(&password, "password", "", "Password for a direct grant login")
	cmd.Flags().StringVar(&otp, "otp", "", "One-time code, when the account requires one")
	return cmd
}

func (rt *runtime) browserLogin(ctx context.Context, a *app.Application) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(rt.errOut))
	s.Suffix = " waiting for the browser to finish signing in..."
	s.Start()
	defer s.Stop()

	return a.Session().Login(ctx)
}

func (rt *runtime) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the local session and end it at the realm",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.application(cmd.Context())
			if err != nil {
				return err
			}
			if !a.Session().Authenticated() {
				fmt.Fprintln(rt.out, mutedStyle.Render("not logged in"))
				return nil
			}

			if err := a.Session().Logout(cmd.Context()); err != nil {
				return err
			}
			ok(rt.out, "logged out")
			return nil
		},
	}
}

func (rt *runtime) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is active and when it expires",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.application(cmd.Context())
			if err != nil {
				return err
			}

			h := a.Session()
			cfg := a.Config()
			if !h.Authenticated() {
				fmt.Fprintln(rt.out, mutedStyle.Render("not logged in"))
				fmt.Fprintln(rt.out, "Run: todo auth login")
				return nil
			}

			claims := h.Principal()
			if claims == nil {
				return errNotLoggedIn
			}
			rows := [][2]string{
				{"state", h.State().String()},
				{"user", displayName(a)},
				{"realm", cfg.KeycloakURL + "/realms/" + cfg.KeycloakRealm},
				{"client", cfg.KeycloakClientID},
				{"storage", cfg.StorageDriver},
			}
			if claims.ExpiresAt != nil {
				exp := claims.ExpiresAt.Time
				rows = append(rows, [2]string{"expires", fmt.Sprintf("%s (%s)",
					exp.Local().Format(time.RFC3339), time.Until(exp).Round(time.Second))})
			}
			if roles := claimRoles(claims, cfg.KeycloakClientID); len(roles) > 0 {
				rows = append(rows, [2]string{"roles", strings.Join(roles, ", ")})
			}
			if scopes := claims.Scopes(); len(scopes) > 0 {
				rows = append(rows, [2]string{"scopes", strings.Join(scopes, " ")})
			}
			if refresh := a.Keycloak().RefreshToken(); refresh != "" {
				rows = append(rows, [2]string{"refresh", "renewable (" + cryptox.FingerprintToken(refresh)[:12] + ")"})
			}
			if err := a.Ping(cmd.Context()); err != nil {
				rows = append(rows, [2]string{"health", err.Error()})
			}

			keyValueTable(rt.out, rows)
			return nil
		},
	}
}

func (rt *runtime) whoamiCmd() *cobra.Command {
	var remote bool
	var hasRole string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the identity in the current token",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.application(cmd.Context())
			if err != nil {
				return err
			}
			if !a.Session().Authenticated() {
				return errNotLoggedIn
			}

			c := a.Session().Principal()
			if c == nil {
				return errNotLoggedIn
			}
			rows := [][2]string{
				{"subject", c.Subject},
				{"username", c.PreferredUsername},
				{"name", c.Name},
				{"email", c.Email},
				{"issuer", c.Issuer},
			}
			if roles := c.RealmAccess.Roles; len(roles) > 0 {
				rows = append(rows, [2]string{"realm roles", strings.Join(roles, ", ")})
			}
			if client, ok := c.ResourceAccess[a.Config().KeycloakClientID]; ok && len(client.Roles) > 0 {
				rows = append(rows, [2]string{"client roles", strings.Join(client.Roles, ", ")})
			}

			if remote {
				info, err := a.Keycloak().UserInfo(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to fetch user info: %w", err)
				}
				rows = append(rows, [2]string{"userinfo", info.PreferredUsername + " <" + info.Email + ">"})
			}

			keyValueTable(rt.out, rows)

			if hasRole != "" {
				if !a.Session().HasRole(hasRole) {
					return fmt.Errorf("missing role %s", hasRole)
				}
				ok(rt.out, "has role "+hasRole)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Also ask the realm's userinfo endpoint")
	cmd.Flags().StringVar(&hasRole, "has-role", "", "Fail unless the session holds this client or realm role")
	return cmd
}

// claimRoles lists the client's roles, then the realm's, without repeats.
func claimRoles(c *jwtx.Claims, clientID string) []string {
	var roles []string
	seen := make(map[string]bool)
	add := func(rs []string) {
		for _, r := range rs {
			if !seen[r] {
				seen[r] = true
				roles = append(roles, r)
			}
		}
	}
	if client, ok := c.ResourceAccess[clientID]; ok {
		add(client.Roles)
	}
	add(c.RealmAccess.Roles)
	return roles
}

func displayName(a *app.Application) string {
	if c := a.Session().Principal(); c != nil {
		return c.DisplayName()
	}
	return "unknown user"
}
