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

// RegistrationState is a registration step
type RegistrationState int

const (
	StateForm RegistrationState = iota
	StateVerifying
	StateDone
)

func (s RegistrationState) String() string {
	switch s {
	case StateForm:
		return "form"
	case StateVerifying:
		return "verifying"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// RegistrationForm is what the operator fills in on the first step
type RegistrationForm struct {
	Email    string
	Name     string
	Password string
	Confirm  string
}

// Validate checks every field and reports all problems at once
func (f RegistrationForm) Validate() error {
	errs := utils.NewMultiError()
	errs.Add(utils.ValidateEmail(f.Email))
	errs.Add(utils.ValidateDisplayName(f.Name))
	errs.Add(utils.ValidatePassword(f.Password))
	if f.Password != "" {
		errs.Add(utils.ValidatePasswordConfirmation(f.Password, f.Confirm))
	}
	return errs.ErrorOrNil()
}

// RegistrationAPI is the part of the gateway used after the first step
type RegistrationAPI interface {
	VerifyEmail(ctx context.Context, email, code string) (*models.VerifyEmailResponse, error)
	ResendCode(ctx context.Context, email string) (*models.MessageResponse, error)
	RegistrationStatus(ctx context.Context, email string) (*models.RegistrationStatus, error)
}

// Registrar submits the first step; the session store implements it
type Registrar interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error)
}

// PendingStore persists the pending-registration marker
type PendingStore interface {
	SavePending(ctx context.Context, p models.PendingRegistration) error
	LoadPending(ctx context.Context) (*models.PendingRegistration, error)
	ClearPending(ctx context.Context) error
}

// Registration drives Form -> Verifying -> Done
type Registration struct {
	mu        sync.Mutex
	api       RegistrationAPI
	registrar Registrar
	pending   PendingStore
	cooldown  *cooldown.Cooldown
	logger    *zap.Logger
	now       func() time.Time

	state      RegistrationState
	email      string
	lastErr    error
	onVerified func(models.VerifiedUser)
}

// NewRegistration creates a flow on its first step
func NewRegistration(api RegistrationAPI, registrar Registrar, pending PendingStore, cd *cooldown.Cooldown, logger *zap.Logger) *Registration {
	if cd == nil {
		cd = cooldown.New(cooldown.DefaultPeriod)
	}
	return &Registration{
		api:       api,
		registrar: registrar,
		pending:   pending,
		cooldown:  cd,
		logger:    logging.OrNop(logger).Named("registration"),
		now:       time.Now,
	}
}

// OnVerified registers the callback fired once the emailed code is accepted
func (r *Registration) OnVerified(fn func(models.VerifiedUser)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onVerified = fn
}

// State returns the current step
func (r *Registration) State() RegistrationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Email returns the address being verified
func (r *Registration) Email() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.email
}

// LastError returns the most recent server-side rejection
func (r *Registration) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Cooldown returns the resend countdown
func (r *Registration) Cooldown() cooldown.State {
	return r.cooldown.State()
}

// WatchCooldown reports the countdown every second until resend is allowed
func (r *Registration) WatchCooldown(ctx context.Context, fn func(cooldown.State)) {
	r.cooldown.Watch(ctx, fn)
}

// Submit validates the form and asks the backend to send a code
func (r *Registration) Submit(ctx context.Context, form RegistrationForm) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateForm {
		return ErrInvalidState
	}
	form.Email = strings.TrimSpace(form.Email)
	form.Name = strings.TrimSpace(form.Name)
	if err := form.Validate(); err != nil {
		return err
	}

	resp, err := r.registrar.Register(ctx, models.RegisterRequest{
		Email:    form.Email,
		Password: form.Password,
		FullName: form.Name,
	})
	if err != nil {
		r.lastErr = err
		return err
	}

	email := form.Email
	if resp.Email != "" {
		email = resp.Email
	}
	r.enterVerifying(ctx, email, r.now())
	return nil
}

// Verify submits the emailed code. A rejected code leaves the flow on the
// verification step.
func (r *Registration) Verify(ctx context.Context, code string) (*models.VerifiedUser, error) {
	r.mu.Lock()
	if r.state != StateVerifying {
		r.mu.Unlock()
		return nil, ErrInvalidState
	}
	code = strings.TrimSpace(code)
	if err := utils.ValidateCode(code); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	email := r.email
	resp, err := r.api.VerifyEmail(ctx, email, code)
	if err != nil {
		r.lastErr = err
		r.mu.Unlock()
		r.logger.Info("verification code rejected", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	if err := r.pending.ClearPending(ctx); err != nil {
		r.logger.Warn("failed to clear pending registration", zap.Error(err))
	}
	r.state = StateDone
	r.lastErr = nil
	onVerified := r.onVerified
	user := resp.User
	r.mu.Unlock()

	r.cooldown.Stop()
	r.logger.Info("email verified", zap.String("email", user.Email))
	if onVerified != nil {
		onVerified(user)
	}
	return &user, nil
}

// Resend asks for a new code. It never changes the step.
func (r *Registration) Resend(ctx context.Context) (*models.MessageResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateVerifying {
		return nil, ErrInvalidState
	}
	if !r.cooldown.CanResend() {
		return nil, ErrCooldownActive
	}

	resp, err := r.api.ResendCode(ctx, r.email)
	if err != nil {
		r.lastErr = err
		return nil, err
	}

	sentAt := r.now()
	r.cooldown.RestartAt(sentAt)
	if err := r.pending.SavePending(ctx, models.PendingRegistration{Email: r.email, SubmittedAt: sentAt}); err != nil {
		r.logger.Warn("failed to update pending registration", zap.Error(err))
	}
	return resp, nil
}

// Back abandons the verification step and forgets the pending marker
func (r *Registration) Back(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateVerifying {
		return ErrInvalidState
	}
	if err := r.pending.ClearPending(ctx); err != nil {
		return err
	}
	r.cooldown.Stop()
	r.cooldown.Reset()
	r.state = StateForm
	r.lastErr = nil
	r.logger.Info("registration abandoned", zap.String("email", r.email))
	return nil
}

// Resume picks the starting step. A prefilled email, as handed over by an
// unverified login, goes straight to verification. Otherwise a pending
// marker is checked against the backend and only a still-pending
// registration resumes; anything else discards the marker.
func (r *Registration) Resume(ctx context.Context, prefilledEmail string) (RegistrationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefilledEmail = strings.TrimSpace(prefilledEmail)
	if prefilledEmail != "" {
		if err := utils.ValidateEmail(prefilledEmail); err != nil {
			return r.state, err
		}
		r.enterVerifying(ctx, prefilledEmail, r.now())
		return r.state, nil
	}

	marker, err := r.pending.LoadPending(ctx)
	if err != nil {
		return r.state, err
	}
	if marker == nil {
		r.state = StateForm
		return r.state, nil
	}

	status, err := r.api.RegistrationStatus(ctx, marker.Email)
	if err != nil || status.Status != models.RegistrationPending {
		fields := []zap.Field{zap.String("email", marker.Email)}
		if err != nil {
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.String("status", status.Status))
		}
		r.logger.Info("discarding pending registration", fields...)
		if clearErr := r.pending.ClearPending(ctx); clearErr != nil {
			return r.state, clearErr
		}
		r.state = StateForm
		return r.state, nil
	}

	r.state = StateVerifying
	r.email = marker.Email
	r.cooldown.RestartAt(marker.SubmittedAt)
	r.logger.Info("resumed pending registration", zap.String("email", marker.Email))
	return r.state, nil
}

// Close stops the countdown watcher
func (r *Registration) Close() {
	r.cooldown.Stop()
}

// enterVerifying requires r.mu
func (r *Registration) enterVerifying(ctx context.Context, email string, sentAt time.Time) {
	r.state = StateVerifying
	r.email = email
	r.lastErr = nil
	r.cooldown.RestartAt(sentAt)
	if err := r.pending.SavePending(ctx, models.PendingRegistration{Email: email, SubmittedAt: sentAt}); err != nil {
		r.logger.Warn("failed to save pending registration", zap.String("email", email), zap.Error(err))
	}
}
