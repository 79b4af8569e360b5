package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/todo/internal/session"
	"github.com/aussiebroadwan/todo/internal/storage"
	"github.com/aussiebroadwan/todo/internal/todos"
	"github.com/aussiebroadwan/todo/pkg/cryptox"
	"github.com/aussiebroadwan/todo/pkg/keycloak"
	"github.com/aussiebroadwan/todo/pkg/slogx"
	"github.com/aussiebroadwan/todo/pkg/todoapi"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	tokenLeeway = 30 * time.Second
)

// Options carries what can't come from the environment.
type Options struct {
	LogOutput io.Writer

	// OnAuthURL sees the login URL so it can be printed for headless use.
	OnAuthURL   func(url string)
	OpenBrowser func(url string) error
}

// Application owns every component and wires them together. Nothing in the
// tree reaches for a global.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store    storage.Store
	keycloak *keycloak.Client
	adapter  *keycloak.Adapter
	session  *session.Holder
	api      *todoapi.Client
	todos    *todos.Store
}

func New(cfg Config, opts Options) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "todo",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  opts.LogOutput,
		}),
	}

	if err := app.openStorage(); err != nil {
		return nil, err
	}

	sealer, err := app.openSealer()
	if err != nil {
		_ = app.store.Close()
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}

	app.initSession(sealer, opts)
	app.initAPI()

	return app, nil
}

func (app *Application) initSession(sealer *cryptox.Sealer, opts Options) {
	app.keycloak = keycloak.NewClient(keycloak.Config{
		ServerURL: app.cfg.KeycloakURL,
		Realm:     app.cfg.KeycloakRealm,
		ClientID:  app.cfg.KeycloakClientID,
	})

	var verifier *keycloak.Verifier
	if app.cfg.VerifyTokens {
		verifier = keycloak.NewVerifier(app.keycloak, tokenLeeway)
	}

	app.adapter = keycloak.NewAdapter(keycloak.AdapterOptions{
		Client:       app.keycloak,
		Store:        storage.NewRecord(app.store, storage.SessionRecordKey),
		Sealer:       sealer,
		Verifier:     verifier,
		Scopes:       app.cfg.Scopes,
		RedirectPort: app.cfg.RedirectPort,
		LoginTimeout: app.cfg.LoginTimeout,
		OTPSecret:    app.cfg.OTPSecret,
		OnAuthURL:    opts.OnAuthURL,
		OpenBrowser:  opts.OpenBrowser,
		Logger:       app.logger,
	})

	app.session = session.New(app.adapter, storage.NewTokenCache(app.store), app.logger)
}

func (app *Application) initAPI() {
	app.api = todoapi.NewClient(app.cfg.APIURL, app.session)
	app.api.HTTPClient.Timeout = app.cfg.HTTPTimeout
	app.api.Logger = app.logger
	app.api.OnAuthRequired = app.onAuthRequired

	if app.cfg.APIRateLimit > 0 {
		burst := app.cfg.APIRateBurst
		if burst < 1 {
			burst = 1
		}
		app.api.Limiter = rate.NewLimiter(rate.Limit(app.cfg.APIRateLimit), burst)
	}

	app.todos = todos.NewStore(app.api, app.session, app.logger)
}

// onAuthRequired is where a browser would navigate to the login page. With
// auto login on, the CLI does the same and the caller may retry.
func (app *Application) onAuthRequired(ctx context.Context) {
	if !app.cfg.AutoLogin {
		return
	}

	slogx.FromContext(ctx).Info("session expired, starting login")
	if err := app.session.Login(ctx); err != nil {
		slogx.FromContext(ctx).Warn("automatic login failed", "err", err)
	}
}

// Init resumes the stored session, if any. It is safe to call more than once.
func (app *Application) Init(ctx context.Context) {
	app.session.Initialize(ctx)
}

func (app *Application) Config() Config              { return app.cfg }
func (app *Application) Logger() *slog.Logger        { return app.logger }
func (app *Application) Session() *session.Holder    { return app.session }
func (app *Application) Keycloak() *keycloak.Adapter { return app.adapter }
func (app *Application) API() *todoapi.Client        { return app.api }
func (app *Application) Todos() *todos.Store         { return app.todos }

// Ping checks that local storage is usable and the API answers at all.
func (app *Application) Ping(ctx context.Context) error {
	var result *multierror.Error

	if err := app.store.Ping(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("storage: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, app.cfg.APIURL+"/", nil)
	if err == nil {
		var resp *http.Response
		resp, err = app.api.HTTPClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
		}
	}
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("api: %w", err))
	}

	return result.ErrorOrNil()
}

// Close stops the expiry timer and closes storage.
func (app *Application) Close() error {
	var result *multierror.Error

	if err := app.adapter.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("keycloak: %w", err))
	}
	if err := app.store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("storage: %w", err))
	}

	return result.ErrorOrNil()
}
