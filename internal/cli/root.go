// Package cli is the todo command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aussiebroadwan/todo/internal/app"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2 // also used when a login is needed
)

// Options lets tests replace what main takes from the process.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer

	// Config replaces app.LoadConfig when set.
	Config *app.Config

	// AppOptions is passed through to app.New. Log output and the login URL
	// hook default to Stderr.
	AppOptions app.Options
}

type runtime struct {
	opts   Options
	out    io.Writer
	errOut io.Writer

	apiURL   string
	logLevel string

	app *app.Application
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	rt := &runtime{opts: opts, out: opts.Stdout, errOut: opts.Stderr}
	cmd := rt.rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(opts.Stdout)
	cmd.SetErr(opts.Stderr)

	err := cmd.ExecuteContext(ctx)
	if rt.app != nil {
		if cerr := rt.app.Close(); cerr != nil {
			rt.app.Logger().Warn("failed to close application", "err", cerr)
		}
	}
	if err == nil {
		return ExitOK
	}

	fail(rt.errOut, describe(err))
	return exitCode(err)
}

func (rt *runtime) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "todo",
		Short: "A to-do list backed by the todo API, signed in through Keycloak",
		Long: `todo manages your to-do list on the todo API. Sign in once with
"todo auth login"; the session is kept locally and refreshed as needed.

Examples:
  todo auth login
  todo add "Buy milk"
  todo ls --group
  todo done 3
  todo show 3
  todo tui`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&rt.apiURL, "api-url", "", "API base URL (overrides TODO_API_URL)")
	cmd.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	cmd.AddCommand(rt.authCmd())
	cmd.AddCommand(rt.lsCmd())
	cmd.AddCommand(rt.addCmd())
	cmd.AddCommand(rt.editCmd())
	cmd.AddCommand(rt.doneCmd())
	cmd.AddCommand(rt.showCmd())
	cmd.AddCommand(rt.rmCmd())
	cmd.AddCommand(rt.meCmd())
	cmd.AddCommand(rt.registerCmd())
	cmd.AddCommand(rt.tuiCmd())

	return cmd
}

// application builds the app on first use and resumes the stored session.
func (rt *runtime) application(ctx context.Context) (*app.Application, error) {
	if rt.app != nil {
		return rt.app, nil
	}

	var cfg app.Config
	if rt.opts.Config != nil {
		cfg = *rt.opts.Config
	} else {
		cfg = app.LoadConfig()
	}
	if rt.apiURL != "" {
		cfg.APIURL = rt.apiURL
	}
	if rt.logLevel != "" {
		cfg.LogLevel = rt.logLevel
	}

	appOpts := rt.opts.AppOptions
	if appOpts.LogOutput == nil {
		appOpts.LogOutput = rt.errOut
	}
	if appOpts.OnAuthURL == nil {
		appOpts.OnAuthURL = func(url string) {
			fmt.Fprintln(rt.errOut, mutedStyle.Render("Opening "+url))
		}
	}

	a, err := app.New(cfg, appOpts)
	if err != nil {
		return nil, err
	}
	a.Init(ctx)

	rt.app = a
	return a, nil
}

// withAuthRetry runs fn again once when auto login recovered the session.
func (rt *runtime) withAuthRetry(a *app.Application, fn func() error) error {
	err := fn()
	if errors.Is(err, errAuthRequired) && a.Config().AutoLogin && a.Session().Authenticated() {
		return fn()
	}
	return err
}

// args wraps a cobra validator so a bad argument count exits with ExitUsage.
func args(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := v(cmd, a); err != nil {
			return usageError{fmt.Errorf("%w\nusage: %s", err, cmd.UseLine())}
		}
		return nil
	}
}
