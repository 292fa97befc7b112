package flow

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wayfarer/cli/internal/logging"
	"github.com/wayfarer/cli/internal/models"
	"github.com/wayfarer/cli/internal/utils"
)

// EnrollmentState is a two-factor enrollment step
type EnrollmentState int

const (
	EnrollChooseMethod EnrollmentState = iota
	EnrollVerify
	EnrollBackupCodes
	EnrollDone
)

func (s EnrollmentState) String() string {
	switch s {
	case EnrollChooseMethod:
		return "choose_method"
	case EnrollVerify:
		return "verify"
	case EnrollBackupCodes:
		return "backup_codes"
	case EnrollDone:
		return "done"
	}
	return "unknown"
}

// TwoFactorAPI is the part of the gateway enrollment and disablement use
type TwoFactorAPI interface {
	TFASetup(ctx context.Context) (*models.TFASetupResponse, error)
	TFAEnable(ctx context.Context, code string, method models.TFAMethod) error
	TFADisable(ctx context.Context, password string) error
}

// IdentityRefresher re-reads the identity after 2FA changes
type IdentityRefresher interface {
	Refresh(ctx context.Context) (*models.Identity, error)
}

// Enrollment drives ChooseMethod -> Verify -> BackupCodes -> Done. Secret
// material lives only in memory and is dropped when the flow ends.
type Enrollment struct {
	mu         sync.Mutex
	api        TwoFactorAPI
	refresher  IdentityRefresher
	logger     *zap.Logger
	state      EnrollmentState
	material   *models.TwoFactorEnrollment
	codesShown bool
}

// NewEnrollment creates an enrollment waiting for a method choice
func NewEnrollment(api TwoFactorAPI, refresher IdentityRefresher, logger *zap.Logger) *Enrollment {
	return &Enrollment{
		api:       api,
		refresher: refresher,
		logger:    logging.OrNop(logger).Named("enrollment"),
	}
}

// State returns the current step
func (e *Enrollment) State() EnrollmentState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start requests enrollment material for method. The returned copy carries
// the secret and the scannable payload; backup codes are withheld until the
// method is confirmed.
func (e *Enrollment) Start(ctx context.Context, method models.TFAMethod) (*models.TwoFactorEnrollment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != EnrollChooseMethod {
		return nil, ErrInvalidState
	}
	if !method.Valid() {
		return nil, utils.NewValidationError("method", "method must be authenticator or email")
	}

	setup, err := e.api.TFASetup(ctx)
	if err != nil {
		return nil, err
	}

	e.material = &models.TwoFactorEnrollment{
		Secret:      setup.Secret,
		QRPayload:   setup.QRCode,
		BackupCodes: append([]string(nil), setup.BackupCodes...),
		Method:      method,
	}
	e.codesShown = false
	e.state = EnrollVerify
	e.logger.Info("enrollment started", zap.String("method", string(method)))

	return &models.TwoFactorEnrollment{
		Secret:    e.material.Secret,
		QRPayload: e.material.QRPayload,
		Method:    method,
	}, nil
}

// Confirm proves possession of the method. Authenticator enrollments move on
// to the backup codes; email enrollments finish here.
func (e *Enrollment) Confirm(ctx context.Context, code string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != EnrollVerify {
		return ErrInvalidState
	}
	code = strings.TrimSpace(code)
	if err := utils.ValidateCode(code); err != nil {
		return err
	}

	if err := e.api.TFAEnable(ctx, code, e.material.Method); err != nil {
		return err
	}

	if e.material.Method == models.TFAMethodAuthenticator {
		e.state = EnrollBackupCodes
	} else {
		e.finishLocked()
	}
	e.logger.Info("two-factor enabled", zap.String("method", string(e.material.Method)))
	e.refresh(ctx)
	return nil
}

// BackupCodes returns the one-time codes. They are handed out exactly once.
func (e *Enrollment) BackupCodes() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != EnrollBackupCodes {
		return nil, ErrInvalidState
	}
	if e.codesShown {
		return nil, ErrBackupCodesShown
	}
	e.codesShown = true
	codes := e.material.BackupCodes
	e.material.BackupCodes = nil
	return codes, nil
}

// Finish ends the flow after the backup codes step
func (e *Enrollment) Finish() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case EnrollBackupCodes, EnrollDone:
		e.finishLocked()
		return nil
	}
	return ErrInvalidState
}

// Cancel drops any material. Before Confirm succeeded the flow returns to
// the method choice; afterwards 2FA is already on and the flow just ends.
func (e *Enrollment) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == EnrollBackupCodes || e.state == EnrollDone {
		e.finishLocked()
		return
	}
	e.material = nil
	e.codesShown = false
	e.state = EnrollChooseMethod
}

func (e *Enrollment) finishLocked() {
	if e.material != nil {
		e.material = &models.TwoFactorEnrollment{Method: e.material.Method}
	}
	e.state = EnrollDone
}

func (e *Enrollment) refresh(ctx context.Context) {
	if e.refresher == nil {
		return
	}
	if _, err := e.refresher.Refresh(ctx); err != nil {
		e.logger.Debug("identity refresh after enrollment failed", zap.Error(err))
	}
}

// DisableTwoFactor turns 2FA off after re-checking the account password. A
// rejection leaves 2FA enabled and is returned as is.
func DisableTwoFactor(ctx context.Context, api TwoFactorAPI, refresher IdentityRefresher, password string) error {
	if err := utils.ValidateRequired(password, "password"); err != nil {
		return err
	}
	if err := api.TFADisable(ctx, password); err != nil {
		return err
	}
	if refresher != nil {
		_, _ = refresher.Refresh(ctx)
	}
	return nil
}
