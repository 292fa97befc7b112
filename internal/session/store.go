// Package session owns the authenticated identity for one run of the client.
// It is the only place that sets or clears the identity.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wayfarer/cli/internal/logging"
	"github.com/wayfarer/cli/internal/models"
	"github.com/wayfarer/cli/internal/nav"
	"github.com/wayfarer/cli/internal/utils"
)

// ErrInFlight is returned when a login or registration is already being
// submitted; the duplicate call sends nothing.
var ErrInFlight = errors.New("a submission is already in progress")

// UnverifiedEmailError is returned by Login when the account exists but its
// email address was never confirmed
type UnverifiedEmailError struct {
	Email string
}

func (e *UnverifiedEmailError) Error() string {
	return fmt.Sprintf("email %s is not verified", e.Email)
}

// IsUnverifiedEmail reports whether err is an UnverifiedEmailError
func IsUnverifiedEmail(err error) (*UnverifiedEmailError, bool) {
	var target *UnverifiedEmailError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// AuthAPI is the slice of the gateway the store needs
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*models.LoginResponse, error)
	CompleteLogin(ctx context.Context, token, code string) (*models.Identity, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error)
	Me(ctx context.Context) (*models.Identity, error)
	Logout(ctx context.Context) error
}

// Store holds the current identity and the loading flags
type Store struct {
	api       AuthAPI
	navigator nav.Navigator
	notifier  Notifier
	logger    *zap.Logger

	mu       sync.RWMutex
	identity *models.Identity
	checked  bool

	loggingIn   atomic.Bool
	registering atomic.Bool
	check       singleflight.Group
}

// New creates a store with no identity and the initial check pending
func New(api AuthAPI, navigator nav.Navigator, notifier Notifier, logger *zap.Logger) *Store {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Store{
		api:       api,
		navigator: navigator,
		notifier:  notifier,
		logger:    logging.OrNop(logger).Named("session"),
	}
}

// Identity returns a copy of the current identity, or nil
func (s *Store) Identity() *models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	cp := *s.identity
	return &cp
}

// Authenticated reports whether an identity is held
func (s *Store) Authenticated() bool {
	return s.Identity() != nil
}

// Loading is true until the initial identity check has resolved
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.checked
}

// LoginLoading is true while a login is being submitted
func (s *Store) LoginLoading() bool {
	return s.loggingIn.Load()
}

// RegisterLoading is true while a registration is being submitted
func (s *Store) RegisterLoading() bool {
	return s.registering.Load()
}

// Login submits credentials. A nil challenge with a nil error means the
// identity is now set; a non-nil challenge means a second factor is due and
// the identity is untouched.
func (s *Store) Login(ctx context.Context, email, password string) (*models.TwoFactorChallenge, error) {
	if !s.loggingIn.CompareAndSwap(false, true) {
		return nil, ErrInFlight
	}
	defer s.loggingIn.Store(false)

	resp, err := s.api.Login(ctx, email, password)
	if err != nil {
		if unverified(err) {
			s.logger.Info("login refused, email not verified", zap.String("email", email))
			s.notifier.Warning(utils.Detail(err, "email not verified"))
			if s.navigator != nil {
				s.navigator.Navigate(nav.PathRegister, url.Values{"email": {email}})
			}
			return nil, &UnverifiedEmailError{Email: email}
		}
		s.notifier.Error(utils.Detail(err, "login failed"))
		return nil, err
	}

	if resp.TFARequired {
		s.logger.Info("second factor required", zap.String("email", email))
		if resp.Message != "" {
			s.notifier.Info(resp.Message)
		}
		return NewChallenge(resp.TFAToken, email), nil
	}

	identity := resp.User
	if identity == nil {
		identity, err = s.api.Me(ctx)
		if err != nil {
			s.notifier.Error(utils.Detail(err, "login failed"))
			return nil, fmt.Errorf("load identity after login: %w", err)
		}
	}

	s.setIdentity(identity)
	s.logger.Info("logged in", zap.Int64("user_id", identity.ID))
	s.notifier.Success("Logged in as " + identity.Email)
	return nil, nil
}

// CompleteChallenge exchanges a challenge and code for a session. The
// completion endpoint returns a partial user, so the full identity is
// re-read when possible.
func (s *Store) CompleteChallenge(ctx context.Context, challenge *models.TwoFactorChallenge, code string) (*models.Identity, error) {
	if challenge == nil {
		return nil, errors.New("no second-factor challenge is pending")
	}

	identity, err := s.api.CompleteLogin(ctx, challenge.Token, code)
	if err != nil {
		s.notifier.Error(utils.Detail(err, "verification failed"))
		return nil, err
	}
	s.setIdentity(identity)

	if full, err := s.api.Me(ctx); err == nil {
		s.setIdentity(full)
	} else {
		s.logger.Debug("identity refresh after second factor failed", zap.Error(err))
	}

	s.logger.Info("second factor accepted", zap.Int64("user_id", identity.ID))
	s.notifier.Success("Logged in as " + challenge.Email)
	return s.Identity(), nil
}

// Register starts a registration. The identity is never set here because the
// email still has to be verified.
func (s *Store) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	if !s.registering.CompareAndSwap(false, true) {
		return nil, ErrInFlight
	}
	defer s.registering.Store(false)

	resp, err := s.api.Register(ctx, req)
	if err != nil {
		s.notifier.Error(utils.Detail(err, "registration failed"))
		return nil, err
	}

	message := resp.Message
	if message == "" {
		message = "Verification code sent to " + req.Email
	}
	s.notifier.Success(message)
	s.logger.Info("registration started", zap.String("email", req.Email), zap.Bool("existing", resp.Existing))
	return resp, nil
}

// Logout ends the session server-side and forgets it locally. The checked
// latch is reset so the next CheckOnce queries again.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.api.Logout(ctx); err != nil {
		if utils.IsAuthError(err) {
			// The server no longer knows the session either.
			s.clear()
		}
		s.notifier.Error(utils.Detail(err, "logout failed"))
		return err
	}

	s.clear()
	s.logger.Info("logged out")
	s.notifier.Success("Logged out")
	return nil
}

// CheckOnce resolves the identity the first time it is called; later calls
// return the cached result until Logout. Concurrent callers share a single
// request. A failed check means nobody is logged in.
func (s *Store) CheckOnce(ctx context.Context) *models.Identity {
	s.mu.RLock()
	checked := s.checked
	s.mu.RUnlock()
	if checked {
		return s.Identity()
	}

	_, _, _ = s.check.Do("me", func() (interface{}, error) {
		s.mu.RLock()
		done := s.checked
		s.mu.RUnlock()
		if done {
			return nil, nil
		}

		identity, err := s.api.Me(ctx)
		if err != nil {
			s.logger.Debug("initial identity check found no session", zap.Error(err))
			identity = nil
		}

		s.mu.Lock()
		s.identity = identity
		s.checked = true
		s.mu.Unlock()
		return nil, nil
	})
	return s.Identity()
}

// Refresh re-reads the identity. On failure the identity is cleared and the
// error returned without a notification.
func (s *Store) Refresh(ctx context.Context) (*models.Identity, error) {
	identity, err := s.api.Me(ctx)
	if err != nil {
		s.mu.Lock()
		s.identity = nil
		s.checked = true
		s.mu.Unlock()
		return nil, err
	}
	s.setIdentity(identity)
	return s.Identity(), nil
}

func (s *Store) setIdentity(identity *models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *identity
	s.identity = &cp
	s.checked = true
}

func (s *Store) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
	s.checked = false
}

var unverifiedMarkers = []string{"não verificado", "not verified", "unverified"}

func unverified(err error) bool {
	if !utils.IsForbiddenError(err) {
		return false
	}
	detail := strings.ToLower(utils.Detail(err, ""))
	for _, marker := range unverifiedMarkers {
		if strings.Contains(detail, marker) {
			return true
		}
	}
	return false
}
