// Package app assembles the client for one command invocation: config,
// logging, local state, the request gateway and the session store.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/wayfarer/cli/internal/api"
	"github.com/wayfarer/cli/internal/config"
	"github.com/wayfarer/cli/internal/cooldown"
	"github.com/wayfarer/cli/internal/flow"
	"github.com/wayfarer/cli/internal/format"
	"github.com/wayfarer/cli/internal/guard"
	"github.com/wayfarer/cli/internal/logging"
	"github.com/wayfarer/cli/internal/models"
	"github.com/wayfarer/cli/internal/nav"
	"github.com/wayfarer/cli/internal/prompt"
	"github.com/wayfarer/cli/internal/session"
	"github.com/wayfarer/cli/internal/store"
	"github.com/wayfarer/cli/internal/utils"
)

// Runtime is everything a command needs
type Runtime struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *sql.DB
	Markers   *store.Markers
	Jar       *store.CookieJar
	Navigator *nav.Recorder
	API       *api.Client
	Session   *session.Store
	Guard     *guard.Guard
	Notifier  *format.Notifier
	Prompt    *prompt.Prompter

	logCloser io.Closer
	closeOnce sync.Once
	closeErr  error
}

// Options tune New
type Options struct {
	// Page is the page the command represents
	Page string
	// Console tees logs to stderr
	Console bool
	// Notifier overrides the default stdout/stderr notifier
	Notifier *format.Notifier
	// Prompt overrides the default terminal prompter
	Prompt *prompt.Prompter
}

// New builds a runtime from cfg. Close must be called when done.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	logger, logCloser, err := logging.New(logging.Config{
		Path:       cfg.Log.Path,
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Console:    opts.Console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	db, err := store.Open(ctx, cfg.State.Path)
	if err != nil {
		_ = logger.Sync()
		_ = logCloser.Close()
		return nil, err
	}

	rt := &Runtime{
		Config:    cfg,
		Logger:    logger,
		logCloser: logCloser,
		DB:        db,
		Markers:   store.NewMarkers(db),
		Navigator: nav.NewRecorder(opts.Page),
		Notifier:  opts.Notifier,
		Prompt:    opts.Prompt,
	}
	if rt.Notifier == nil {
		rt.Notifier = format.DefaultNotifier()
	}
	if rt.Prompt == nil {
		rt.Prompt = prompt.Default()
	}

	if err := rt.wire(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}

	logger.Debug("runtime ready",
		zap.String("server", cfg.Server.URL),
		zap.String("page", rt.Navigator.Current()),
		zap.String("state", cfg.State.Path),
	)
	return rt, nil
}

func (r *Runtime) wire(ctx context.Context) error {
	base, err := url.Parse(r.Config.Server.URL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	jar, err := store.NewCookieJar(r.DB, r.Logger)
	if err != nil {
		return err
	}
	if err := jar.Load(ctx, base); err != nil {
		return err
	}
	r.Jar = jar

	client, err := api.NewClient(api.Options{
		BaseURL:        r.Config.Server.URL,
		Timeout:        r.Config.Server.TimeoutDuration(),
		Jar:            jar,
		CSRFCookieName: r.Config.Cookies.CSRFName,
		CSRFHeaderName: r.Config.Cookies.CSRFHeader,
		Navigator:      r.Navigator,
		Logger:         r.Logger,
	})
	if err != nil {
		return err
	}
	r.API = client

	r.Session = session.New(client, r.Navigator, r.Notifier, r.Logger)
	r.Guard = guard.New(r.Session, r.Markers, r.Navigator, r.Logger)
	return nil
}

// NewRegistration creates a registration flow wired to this runtime
func (r *Runtime) NewRegistration() *flow.Registration {
	cd := cooldown.New(r.Config.Auth.ResendCooldownDuration())
	return flow.NewRegistration(r.API, r.Session, r.Markers, cd, r.Logger)
}

// NewLogin creates a login flow wired to this runtime
func (r *Runtime) NewLogin() *flow.Login {
	return flow.NewLogin(r.Session, r.Markers, r.Config.Auth.LoginLockoutDuration(), r.Logger)
}

// NewChallenge creates the code-entry step for a second-factor challenge
func (r *Runtime) NewChallenge(challenge *models.TwoFactorChallenge, resend flow.ResendFunc) *flow.Challenge {
	cd := cooldown.New(r.Config.Auth.ResendCooldownDuration())
	return flow.NewChallenge(r.Session, challenge, cd, resend, r.Logger)
}

// NewEnrollment creates a two-factor enrollment flow
func (r *Runtime) NewEnrollment() *flow.Enrollment {
	return flow.NewEnrollment(r.API, r.Session, r.Logger)
}

// Close releases the database, flushes the logger and closes the log file.
// It is safe to call more than once.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		errs := utils.NewMultiError()
		if r.DB != nil {
			errs.Add(r.DB.Close())
		}
		if r.Logger != nil {
			// Sync fails on some terminals for stderr; the file sink is what matters.
			_ = r.Logger.Sync()
		}
		if r.logCloser != nil {
			errs.Add(r.logCloser.Close())
		}
		r.closeErr = errs.ErrorOrNil()
	})
	return r.closeErr
}

var (
	currentMu sync.Mutex
	current   *Runtime
)

// Init builds the process-wide runtime from the loaded configuration
func Init(ctx context.Context, opts Options) (*Runtime, error) {
	currentMu.Lock()
	defer currentMu.Unlock()

	if current != nil {
		return current, nil
	}
	rt, err := New(ctx, config.Get(), opts)
	if err != nil {
		return nil, err
	}
	current = rt
	return rt, nil
}

// Current returns the runtime built by Init
func Current() (*Runtime, error) {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current == nil {
		return nil, fmt.Errorf("runtime not initialized")
	}
	return current, nil
}

// Shutdown closes the process-wide runtime, if any
func Shutdown() error {
	currentMu.Lock()
	rt := current
	current = nil
	currentMu.Unlock()

	if rt == nil {
		return nil
	}
	return rt.Close()
}
