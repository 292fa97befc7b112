package flow

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wayfarer/cli/internal/logging"
	"github.com/wayfarer/cli/internal/models"
	"github.com/wayfarer/cli/internal/utils"
)

// DefaultLoginLockout matches the backend's login rate-limit window
const DefaultLoginLockout = 15 * time.Minute

// Authenticator submits credentials; the session store implements it
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*models.TwoFactorChallenge, error)
}

// KeyValueStore persists small values; store.Markers implements it
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Login drives Credentials -> (Authenticated | TwoFactorChallenge). After the
// backend rate-limits an address, further attempts for it fail locally
// until the lockout passes.
type Login struct {
	auth    Authenticator
	kv      KeyValueStore
	lockout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewLogin creates a login flow. kv may be nil, in which case lockouts only
// last for the lifetime of the flow.
func NewLogin(auth Authenticator, kv KeyValueStore, lockout time.Duration, logger *zap.Logger) *Login {
	if lockout <= 0 {
		lockout = DefaultLoginLockout
	}
	if kv == nil {
		kv = newMemoryKV()
	}
	return &Login{
		auth:    auth,
		kv:      kv,
		lockout: lockout,
		logger:  logging.OrNop(logger).Named("login"),
		now:     time.Now,
	}
}

// Submit validates and sends the credentials. A non-nil challenge means a
// second factor is due.
func (l *Login) Submit(ctx context.Context, email, password string) (*models.TwoFactorChallenge, error) {
	email = strings.TrimSpace(email)
	errs := utils.NewMultiError()
	errs.Add(utils.ValidateEmail(email))
	errs.Add(utils.ValidateRequired(password, "password"))
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	if until := l.lockedUntil(ctx, email); l.now().Before(until) {
		return nil, &RateLimitError{RetryAt: until, kind: ErrRateLimited}
	}

	challenge, err := l.auth.Login(ctx, email, password)
	if err != nil {
		if utils.IsRateLimitError(err) {
			detail := utils.Detail(err, "")
			until := l.now().Add(l.lockoutFor(detail))
			l.lock(ctx, email, until)
			return nil, &RateLimitError{Detail: detail, RetryAt: until, kind: ErrRateLimited}
		}
		return nil, err
	}

	if err := l.kv.Delete(ctx, lockoutKey(email)); err != nil {
		l.logger.Debug("failed to clear login lockout", zap.Error(err))
	}
	return challenge, nil
}

// lockoutFor picks the window for a 429 from the login endpoint. A blocked
// second factor is reported there too and lasts longer than the password
// limit.
func (l *Login) lockoutFor(detail string) time.Duration {
	if strings.Contains(strings.ToLower(detail), "2fa") && l.lockout < DefaultChallengeLockout {
		return DefaultChallengeLockout
	}
	return l.lockout
}

func (l *Login) lockedUntil(ctx context.Context, email string) time.Time {
	raw, err := l.kv.Get(ctx, lockoutKey(email))
	if err != nil || raw == nil {
		return time.Time{}
	}
	until, err := time.Parse(time.RFC3339, string(raw))
	if err != nil {
		return time.Time{}
	}
	return until
}

func (l *Login) lock(ctx context.Context, email string, until time.Time) {
	l.logger.Warn("login rate limited", zap.String("email", email), zap.Time("until", until))
	if err := l.kv.Set(ctx, lockoutKey(email), []byte(until.UTC().Format(time.RFC3339))); err != nil {
		l.logger.Warn("failed to persist login lockout", zap.Error(err))
	}
}

func lockoutKey(email string) string {
	return "login_lockout:" + strings.ToLower(email)
}

type memoryKV struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: map[string][]byte{}}
}

func (m *memoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
