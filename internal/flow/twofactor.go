package flow

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wayfarer/cli/internal/cooldown"
	"github.com/wayfarer/cli/internal/logging"
	"github.com/wayfarer/cli/internal/models"
	"github.com/wayfarer/cli/internal/utils"
)

// DefaultChallengeLockout matches the backend's second-factor block
const DefaultChallengeLockout = 30 * time.Minute

// ChallengeCompleter exchanges a challenge for a session; the session store
// implements it
type ChallengeCompleter interface {
	CompleteChallenge(ctx context.Context, challenge *models.TwoFactorChallenge, code string) (*models.Identity, error)
}

// ResendFunc asks the backend for a fresh code and returns the challenge
// that replaces the current one
type ResendFunc func(ctx context.Context) (*models.TwoFactorChallenge, error)

// Challenge holds a pending second-factor challenge until it is completed,
// cancelled or expires
type Challenge struct {
	mu        sync.Mutex
	completer ChallengeCompleter
	challenge *models.TwoFactorChallenge
	cooldown  *cooldown.Cooldown
	resend    ResendFunc
	logger    *zap.Logger
	now       func() time.Time
}

// NewChallenge starts the code-entry step. The backend has just sent a code,
// so the resend countdown starts immediately. resend may be nil.
func NewChallenge(completer ChallengeCompleter, challenge *models.TwoFactorChallenge, cd *cooldown.Cooldown, resend ResendFunc, logger *zap.Logger) *Challenge {
	if cd == nil {
		cd = cooldown.New(cooldown.DefaultPeriod)
	}
	cd.Restart()
	return &Challenge{
		completer: completer,
		challenge: challenge,
		cooldown:  cd,
		resend:    resend,
		logger:    logging.OrNop(logger).Named("challenge"),
		now:       time.Now,
	}
}

// Pending returns the held challenge, or nil once it was consumed
func (c *Challenge) Pending() *models.TwoFactorChallenge {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.challenge
}

// Cooldown returns the resend countdown
func (c *Challenge) Cooldown() cooldown.State {
	return c.cooldown.State()
}

// CanResend reports whether a resend callback exists and the countdown is over
func (c *Challenge) CanResend() bool {
	return c.resend != nil && c.cooldown.CanResend()
}

// Complete submits the code. Success discards the challenge; a rejected code
// keeps it so the operator can retry.
func (c *Challenge) Complete(ctx context.Context, code string) (*models.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.challenge == nil {
		return nil, ErrNoChallenge
	}
	if c.challenge.Expired(c.now()) {
		c.logger.Info("challenge expired before completion", zap.String("email", c.challenge.Email))
		c.discardLocked()
		return nil, ErrChallengeExpired
	}

	code = strings.TrimSpace(code)
	if err := utils.ValidateCode(code); err != nil {
		return nil, err
	}

	identity, err := c.completer.CompleteChallenge(ctx, c.challenge, code)
	if err != nil {
		if utils.IsRateLimitError(err) {
			return nil, &RateLimitError{
				Detail:  utils.Detail(err, ""),
				RetryAt: c.now().Add(DefaultChallengeLockout),
				kind:    ErrTooManyAttempts,
			}
		}
		return nil, err
	}

	c.discardLocked()
	return identity, nil
}

// Resend requests a new code, subject to the same countdown as registration
func (c *Challenge) Resend(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resend == nil {
		return ErrResendUnavailable
	}
	if c.challenge == nil {
		return ErrNoChallenge
	}
	if !c.cooldown.CanResend() {
		return ErrCooldownActive
	}

	next, err := c.resend(ctx)
	if err != nil {
		return err
	}
	if next != nil {
		c.challenge = next
	}
	c.cooldown.Restart()
	return nil
}

// Cancel drops the challenge without contacting the backend
func (c *Challenge) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discardLocked()
}

func (c *Challenge) discardLocked() {
	c.challenge = nil
	c.cooldown.Stop()
}
