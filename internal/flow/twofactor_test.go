package flow

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer/cli/internal/cooldown"
	"github.com/wayfarer/cli/internal/models"
	"github.com/wayfarer/cli/internal/utils"
)

type fakeCompleter struct {
	calls int
	code  string
	err   error
}

func (f *fakeCompleter) CompleteChallenge(ctx context.Context, challenge *models.TwoFactorChallenge, code string) (*models.Identity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if code != f.code {
		return nil, utils.NewAPIError(http.StatusBadRequest, "Código inválido. Tentativas restantes: 4", "")
	}
	return &models.Identity{ID: 1, Email: challenge.Email}, nil
}

func TestChallenge_CompleteSuccessDiscards(t *testing.T) {
	completer := &fakeCompleter{code: "123456"}
	c := NewChallenge(completer, &models.TwoFactorChallenge{Token: "t", Email: "a@b.com"}, nil, nil, nil)
	defer c.Cancel()

	_, err := c.Complete(context.Background(), "654321")
	require.Error(t, err)
	assert.NotNil(t, c.Pending())

	identity, err := c.Complete(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", identity.Email)
	assert.Nil(t, c.Pending())

	_, err = c.Complete(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestChallenge_ExpiredIsDiscardedWithoutRequest(t *testing.T) {
	completer := &fakeCompleter{code: "123456"}
	expiry := time.Now().Add(-time.Second)
	c := NewChallenge(completer, &models.TwoFactorChallenge{Token: "t", ExpiresAt: expiry}, nil, nil, nil)

	_, err := c.Complete(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrChallengeExpired)
	assert.Equal(t, 0, completer.calls)
	assert.Nil(t, c.Pending())
}

func TestChallenge_TooManyAttempts(t *testing.T) {
	completer := &fakeCompleter{err: utils.NewAPIError(http.StatusTooManyRequests, "Muitas tentativas. Bloqueado por 30 minutos.", "")}
	c := NewChallenge(completer, &models.TwoFactorChallenge{Token: "t"}, nil, nil, nil)
	defer c.Cancel()

	_, err := c.Complete(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.False(t, errors.Is(err, ErrRateLimited))
	assert.NotNil(t, c.Pending())
}

func TestChallenge_Resend(t *testing.T) {
	completer := &fakeCompleter{code: "123456"}

	t.Run("unavailable without callback", func(t *testing.T) {
		c := NewChallenge(completer, &models.TwoFactorChallenge{Token: "t"}, nil, nil, nil)
		defer c.Cancel()
		assert.ErrorIs(t, c.Resend(context.Background()), ErrResendUnavailable)
	})

	t.Run("cooldown applies", func(t *testing.T) {
		calls := 0
		resend := func(ctx context.Context) (*models.TwoFactorChallenge, error) {
			calls++
			return &models.TwoFactorChallenge{Token: "t2"}, nil
		}
		c := NewChallenge(completer, &models.TwoFactorChallenge{Token: "t1"}, cooldown.New(time.Minute), resend, nil)
		defer c.Cancel()

		assert.ErrorIs(t, c.Resend(context.Background()), ErrCooldownActive)
		assert.Equal(t, 0, calls)
		assert.False(t, c.CanResend())

		c.cooldown.Reset()
		require.NoError(t, c.Resend(context.Background()))
		assert.Equal(t, 1, calls)
		assert.Equal(t, "t2", c.Pending().Token)
		assert.False(t, c.Cooldown().CanResend)
	})
}

type fakeTwoFactorAPI struct {
	secret      string
	enabled     bool
	enableCalls int
	password    string
}

func (f *fakeTwoFactorAPI) TFASetup(ctx context.Context) (*models.TFASetupResponse, error) {
	return &models.TFASetupResponse{
		Secret:      f.secret,
		QRCode:      "otpauth://totp/Wayfarer:a@b.com?secret=" + f.secret + "&issuer=Wayfarer",
		BackupCodes: []string{"AAAA1111", "BBBB2222"},
	}, nil
}

func (f *fakeTwoFactorAPI) TFAEnable(ctx context.Context, code string, method models.TFAMethod) error {
	f.enableCalls++
	if method == models.TFAMethodAuthenticator && !totp.Validate(code, f.secret) {
		return utils.NewAPIError(http.StatusBadRequest, "Código inválido", "")
	}
	f.enabled = true
	return nil
}

func (f *fakeTwoFactorAPI) TFADisable(ctx context.Context, password string) error {
	if password != f.password {
		return utils.NewAPIError(http.StatusBadRequest, "Senha incorreta", "")
	}
	f.enabled = false
	return nil
}

type countingRefresher struct{ calls int }

func (c *countingRefresher) Refresh(ctx context.Context) (*models.Identity, error) {
	c.calls++
	return &models.Identity{}, nil
}

func TestEnrollment_AuthenticatorShowsBackupCodesOnce(t *testing.T) {
	api := &fakeTwoFactorAPI{secret: "JBSWY3DPEHPK3PXP"}
	refresher := &countingRefresher{}
	e := NewEnrollment(api, refresher, nil)
	ctx := context.Background()

	material, err := e.Start(ctx, models.TFAMethodAuthenticator)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", material.Secret)
	assert.Empty(t, material.BackupCodes)
	assert.Equal(t, EnrollVerify, e.State())

	_, err = e.BackupCodes()
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Error(t, e.Confirm(ctx, "000000"))
	assert.Equal(t, EnrollVerify, e.State())

	code, err := totp.GenerateCode(api.secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, e.Confirm(ctx, code))
	assert.Equal(t, EnrollBackupCodes, e.State())
	assert.Equal(t, 1, refresher.calls)

	codes, err := e.BackupCodes()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAA1111", "BBBB2222"}, codes)

	_, err = e.BackupCodes()
	assert.ErrorIs(t, err, ErrBackupCodesShown)

	require.NoError(t, e.Finish())
	assert.Equal(t, EnrollDone, e.State())
	_, err = e.BackupCodes()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEnrollment_EmailFinishesAfterConfirm(t *testing.T) {
	api := &fakeTwoFactorAPI{secret: "JBSWY3DPEHPK3PXP"}
	e := NewEnrollment(api, nil, nil)
	ctx := context.Background()

	_, err := e.Start(ctx, models.TFAMethodEmail)
	require.NoError(t, err)
	require.NoError(t, e.Confirm(ctx, "123456"))
	assert.Equal(t, EnrollDone, e.State())
	assert.True(t, api.enabled)
}

func TestEnrollment_RejectsUnknownMethod(t *testing.T) {
	e := NewEnrollment(&fakeTwoFactorAPI{}, nil, nil)
	_, err := e.Start(context.Background(), models.TFAMethod("sms"))
	assert.True(t, utils.IsValidationError(err))
	assert.Equal(t, EnrollChooseMethod, e.State())
}

func TestEnrollment_CancelBeforeConfirm(t *testing.T) {
	api := &fakeTwoFactorAPI{secret: "JBSWY3DPEHPK3PXP"}
	e := NewEnrollment(api, nil, nil)

	_, err := e.Start(context.Background(), models.TFAMethodAuthenticator)
	require.NoError(t, err)
	e.Cancel()
	assert.Equal(t, EnrollChooseMethod, e.State())
	assert.False(t, api.enabled)
}

func TestDisableTwoFactor(t *testing.T) {
	api := &fakeTwoFactorAPI{password: "Abcd123!", enabled: true}
	ctx := context.Background()

	err := DisableTwoFactor(ctx, api, nil, "")
	assert.True(t, utils.IsValidationError(err))

	err = DisableTwoFactor(ctx, api, nil, "wrong")
	assert.Equal(t, "Senha incorreta", utils.Detail(err, ""))
	assert.True(t, api.enabled)

	require.NoError(t, DisableTwoFactor(ctx, api, &countingRefresher{}, "Abcd123!"))
	assert.False(t, api.enabled)
}

func TestBackupCodesExport(t *testing.T) {
	codes := []string{"AAAA1111", "BBBB2222"}

	var copied string
	orig := writeClipboard
	writeClipboard = func(text string) error {
		copied = text
		return nil
	}
	t.Cleanup(func() { writeClipboard = orig })

	require.NoError(t, CopyBackupCodes(codes))
	assert.Equal(t, "AAAA1111\nBBBB2222", copied)

	dir := t.TempDir()
	path, err := WriteBackupCodes(dir, "a@b.com", codes)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "backup-codes-a@b.com.txt"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "AAAA1111\nBBBB2222\n", string(data))
}

func TestWriteQRCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qr.png")
	require.NoError(t, WriteQRCode(path, "otpauth://totp/Wayfarer:a@b.com?secret=JBSWY3DPEHPK3PXP&issuer=Wayfarer", 128))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])

	assert.Error(t, WriteQRCode(path, "https://example.com", 0))
}
