package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/d361120041/health-log/apiclient"
	"github.com/d361120041/health-log/auth"
	"github.com/d361120041/health-log/config"
	"github.com/d361120041/health-log/navigation"
	"github.com/d361120041/health-log/records"
	"github.com/d361120041/health-log/reports"
	"github.com/d361120041/health-log/session"
	"github.com/d361120041/health-log/settings"
	"github.com/d361120041/health-log/tui"
)

var (
	ErrUsage         = errors.New("invalid usage")
	ErrLoginRequired = errors.New("credentials required: set HEALTHLOG_EMAIL and HEALTHLOG_PASSWORD or pass -email and -password")
	ErrAdminRequired = errors.New("this command requires an administrator account")
)

// logoutTimeout bounds the logout call made while the command exits.
const logoutTimeout = 5 * time.Second

// app wires the session, client and stores of one CLI invocation.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	display tui.Displayer
	out     io.Writer

	session  *session.Store
	router   *navigation.Router
	client   *apiclient.Client
	auth     *auth.Service
	records  *records.Store
	reports  *reports.Store
	settings *settings.Store

	loggedIn bool
}

func newApp(cfg *config.Config, logger zerolog.Logger, d tui.Displayer, out io.Writer) (*app, error) {
	store := session.NewStore(logger)
	router := navigation.New(store, logger)

	client, err := apiclient.New(cfg.BaseURL, store,
		apiclient.WithTimeout(cfg.RequestTimeout),
		apiclient.WithRefreshTimeout(cfg.RefreshTimeout),
		apiclient.WithNavigator(router),
		apiclient.WithNotifier(d),
		apiclient.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		display:  d,
		out:      out,
		session:  store,
		router:   router,
		client:   client,
		auth:     auth.NewService(client, store, logger),
		records:  records.NewStore(client, cfg.PageSize),
		reports:  reports.NewStore(client),
		settings: settings.NewStore(client),
	}, nil
}

func (a *app) execute(ctx context.Context, cmd *command, args []string) error {
	start := time.Now()

	if err := a.enter(ctx, cmd.route(args)); err != nil {
		a.display.Fatal(err)
		return err
	}

	a.display.Working(cmd.title)
	summary, err := cmd.run(ctx, a, args)
	if err != nil {
		a.display.Fatal(err)
		return err
	}
	a.display.Done(summary, time.Since(start))
	return nil
}

// enter navigates to target. When the guards send the user to Login the
// configured credentials are used and the navigation resumes at the
// redirect the guard recorded.
func (a *app) enter(ctx context.Context, target string) error {
	loc, err := a.router.Push(target)
	if err != nil {
		return err
	}
	a.display.Navigated(loc.FullPath())

	if loc.Route.Name == navigation.Login {
		if err := a.login(ctx); err != nil {
			return err
		}
		next := loc.Query.Get("redirect")
		if next == "" {
			next = target
		}
		if loc, err = a.router.Push(next); err != nil {
			return err
		}
		a.display.Navigated(loc.FullPath())
	}

	switch {
	case loc.Query.Get("error") == "unauthorized":
		return ErrAdminRequired
	case loc.Route.RequiresAuth && !a.session.IsAuthenticated():
		return ErrLoginRequired
	}
	return nil
}

func (a *app) login(ctx context.Context) error {
	if !a.cfg.HasCredentials() {
		return ErrLoginRequired
	}

	a.display.LoggingIn(a.cfg.Email)
	id, err := a.auth.Login(ctx, auth.Credentials{Email: a.cfg.Email, Password: a.cfg.Password})
	if err != nil {
		a.display.LoginFailed(err)
		return err
	}
	a.loggedIn = true

	email, role := a.cfg.Email, ""
	if id != nil {
		if id.Email != "" {
			email = id.Email
		}
		role = id.Role
	}
	a.display.LoginOK(email, role)
	return nil
}

// logout closes a session opened by login. It is safe to call twice.
func (a *app) logout(ctx context.Context) {
	if !a.loggedIn {
		return
	}
	a.loggedIn = false

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
	defer cancel()
	a.display.LoggedOut(a.auth.Logout(ctx))
}

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}
