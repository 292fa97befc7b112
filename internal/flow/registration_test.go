package flow

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer/cli/internal/cooldown"
	"github.com/wayfarer/cli/internal/models"
	"github.com/wayfarer/cli/internal/store"
	"github.com/wayfarer/cli/internal/utils"
)

type fakeRegistrationAPI struct {
	mu          sync.Mutex
	validCode   string
	status      string
	statusErr   error
	resendCalls int
	verifyCalls int
}

func (f *fakeRegistrationAPI) VerifyEmail(ctx context.Context, email, code string) (*models.VerifyEmailResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if code != f.validCode {
		return nil, utils.NewAPIError(http.StatusBadRequest, "Código inválido", "")
	}
	return &models.VerifyEmailResponse{Message: "ok", User: models.VerifiedUser{ID: 9, Email: email}}, nil
}

func (f *fakeRegistrationAPI) ResendCode(ctx context.Context, email string) (*models.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resendCalls++
	return &models.MessageResponse{Message: "sent"}, nil
}

func (f *fakeRegistrationAPI) RegistrationStatus(ctx context.Context, email string) (*models.RegistrationStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &models.RegistrationStatus{Status: f.status}, nil
}

type fakeRegistrar struct {
	calls int
	err   error
	last  models.RegisterRequest
}

func (f *fakeRegistrar) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.RegisterResponse{Message: "code sent", Email: req.Email}, nil
}

func newMarkers(t *testing.T) *store.Markers {
	t.Helper()
	db, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewMarkers(db)
}

func newTestRegistration(t *testing.T) (*Registration, *fakeRegistrationAPI, *fakeRegistrar, *store.Markers) {
	t.Helper()
	api := &fakeRegistrationAPI{validCode: "123456", status: models.RegistrationPending}
	reg := &fakeRegistrar{}
	markers := newMarkers(t)
	r := NewRegistration(api, reg, markers, cooldown.New(time.Minute), nil)
	t.Cleanup(r.Close)
	return r, api, reg, markers
}

var validForm = RegistrationForm{Email: "a@b.com", Password: "Abcd123!", Confirm: "Abcd123!"}

func TestRegistration_SubmitEntersVerifying(t *testing.T) {
	r, _, reg, markers := newTestRegistration(t)
	ctx := context.Background()

	require.NoError(t, r.Submit(ctx, validForm))
	assert.Equal(t, StateVerifying, r.State())
	assert.Equal(t, "a@b.com", r.Email())
	assert.Equal(t, 1, reg.calls)

	pending, err := markers.LoadPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "a@b.com", pending.Email)

	cd := r.Cooldown()
	assert.False(t, cd.CanResend)
	assert.Equal(t, 60, cd.SecondsRemaining)
}

func TestRegistration_SubmitValidation(t *testing.T) {
	cases := map[string]RegistrationForm{
		"bad email":      {Email: "nope", Password: "Abcd123!", Confirm: "Abcd123!"},
		"short":          {Email: "a@b.com", Password: "Ab1!", Confirm: "Ab1!"},
		"no symbol":      {Email: "a@b.com", Password: "Abcd1234", Confirm: "Abcd1234"},
		"no upper":       {Email: "a@b.com", Password: "abcd123!", Confirm: "abcd123!"},
		"mismatch":       {Email: "a@b.com", Password: "Abcd123!", Confirm: "Abcd123?"},
		"empty password": {Email: "a@b.com"},
	}
	for name, form := range cases {
		t.Run(name, func(t *testing.T) {
			r, _, reg, markers := newTestRegistration(t)
			err := r.Submit(context.Background(), form)
			require.Error(t, err)
			assert.True(t, utils.IsValidationError(err))
			assert.Equal(t, StateForm, r.State())
			assert.Equal(t, 0, reg.calls)

			pending, err := markers.LoadPending(context.Background())
			require.NoError(t, err)
			assert.Nil(t, pending)
		})
	}
}

func TestRegistration_SubmitServerFailureStaysOnForm(t *testing.T) {
	r, _, reg, _ := newTestRegistration(t)
	reg.err = utils.NewAPIError(http.StatusBadRequest, "Email já cadastrado", "")

	err := r.Submit(context.Background(), validForm)
	require.Error(t, err)
	assert.Equal(t, StateForm, r.State())
	assert.Equal(t, reg.err, r.LastError())
}

func TestRegistration_VerifyRejectedStaysVerifying(t *testing.T) {
	r, _, _, markers := newTestRegistration(t)
	ctx := context.Background()
	require.NoError(t, r.Submit(ctx, validForm))

	_, err := r.Verify(ctx, "000000")
	require.Error(t, err)
	assert.Equal(t, StateVerifying, r.State())
	assert.Equal(t, "Código inválido", utils.Detail(r.LastError(), ""))

	pending, err := markers.LoadPending(ctx)
	require.NoError(t, err)
	assert.NotNil(t, pending)
}

func TestRegistration_VerifyRejectsMalformedCodeLocally(t *testing.T) {
	r, api, _, _ := newTestRegistration(t)
	require.NoError(t, r.Submit(context.Background(), validForm))

	_, err := r.Verify(context.Background(), "12ab56")
	assert.True(t, utils.IsValidationError(err))
	assert.Equal(t, 0, api.verifyCalls)
}

func TestRegistration_VerifySuccess(t *testing.T) {
	r, _, _, markers := newTestRegistration(t)
	ctx := context.Background()

	var got models.VerifiedUser
	r.OnVerified(func(u models.VerifiedUser) { got = u })

	require.NoError(t, r.Submit(ctx, validForm))
	user, err := r.Verify(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, int64(9), user.ID)
	assert.Equal(t, "a@b.com", got.Email)
	assert.Equal(t, StateDone, r.State())

	pending, err := markers.LoadPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestRegistration_ResendRespectsCooldown(t *testing.T) {
	r, api, _, _ := newTestRegistration(t)
	ctx := context.Background()
	require.NoError(t, r.Submit(ctx, validForm))

	_, err := r.Resend(ctx)
	assert.ErrorIs(t, err, ErrCooldownActive)
	assert.Equal(t, 0, api.resendCalls)
	assert.Equal(t, StateVerifying, r.State())
}

func TestRegistration_ResendAfterCooldown(t *testing.T) {
	r, api, _, markers := newTestRegistration(t)
	ctx := context.Background()

	past := time.Now().Add(-2 * time.Minute)
	r.now = func() time.Time { return past }
	require.NoError(t, r.Submit(ctx, validForm))
	assert.True(t, r.Cooldown().CanResend)

	r.now = time.Now
	_, err := r.Resend(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, api.resendCalls)
	assert.Equal(t, StateVerifying, r.State())
	assert.False(t, r.Cooldown().CanResend)

	pending, err := markers.LoadPending(ctx)
	require.NoError(t, err)
	assert.True(t, pending.SubmittedAt.After(past))
}

func TestRegistration_Back(t *testing.T) {
	r, _, _, markers := newTestRegistration(t)
	ctx := context.Background()
	require.NoError(t, r.Submit(ctx, validForm))

	require.NoError(t, r.Back(ctx))
	assert.Equal(t, StateForm, r.State())
	assert.True(t, r.Cooldown().CanResend)

	pending, err := markers.LoadPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestRegistration_Resume(t *testing.T) {
	ctx := context.Background()

	t.Run("no marker", func(t *testing.T) {
		r, _, _, _ := newTestRegistration(t)
		state, err := r.Resume(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, StateForm, state)
	})

	t.Run("pending marker", func(t *testing.T) {
		r, _, _, markers := newTestRegistration(t)
		sentAt := time.Now().Add(-45 * time.Second)
		require.NoError(t, markers.SavePending(ctx, models.PendingRegistration{Email: "a@b.com", SubmittedAt: sentAt}))

		state, err := r.Resume(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, StateVerifying, state)
		assert.Equal(t, "a@b.com", r.Email())
		assert.InDelta(t, 15, r.Cooldown().SecondsRemaining, 1)
	})

	t.Run("completed marker is discarded", func(t *testing.T) {
		r, api, _, markers := newTestRegistration(t)
		api.status = models.RegistrationCompleted
		require.NoError(t, markers.SavePending(ctx, models.PendingRegistration{Email: "a@b.com", SubmittedAt: time.Now()}))

		state, err := r.Resume(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, StateForm, state)
		pending, err := markers.LoadPending(ctx)
		require.NoError(t, err)
		assert.Nil(t, pending)
	})

	t.Run("status failure discards marker", func(t *testing.T) {
		r, api, _, markers := newTestRegistration(t)
		api.statusErr = utils.NewTransportError(utils.KindNetwork, http.MethodGet, "/auth/register/status/a@b.com", assert.AnError)
		require.NoError(t, markers.SavePending(ctx, models.PendingRegistration{Email: "a@b.com", SubmittedAt: time.Now()}))

		state, err := r.Resume(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, StateForm, state)
	})

	t.Run("prefilled email skips form", func(t *testing.T) {
		r, _, reg, markers := newTestRegistration(t)
		state, err := r.Resume(ctx, "c@d.com")
		require.NoError(t, err)
		assert.Equal(t, StateVerifying, state)
		assert.Equal(t, "c@d.com", r.Email())
		assert.Equal(t, 0, reg.calls)

		pending, err := markers.LoadPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, "c@d.com", pending.Email)
	})
}

func TestRegistration_OperationsOutOfStep(t *testing.T) {
	r, _, _, _ := newTestRegistration(t)
	ctx := context.Background()

	_, err := r.Verify(ctx, "123456")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = r.Resend(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, r.Back(ctx), ErrInvalidState)

	require.NoError(t, r.Submit(ctx, validForm))
	assert.ErrorIs(t, r.Submit(ctx, validForm), ErrInvalidState)
}
