package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/wayfarer/cli/internal/models"
)

// ErrNoIdentity is returned when an identity endpoint answers without a user
var ErrNoIdentity = errors.New("response did not contain a user")

// Register starts a registration; the backend emails a verification code
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	var resp models.RegisterResponse
	if err := c.Do(ctx, http.MethodPost, "/auth/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyEmail confirms a registration with the emailed code
func (c *Client) VerifyEmail(ctx context.Context, email, code string) (*models.VerifyEmailResponse, error) {
	var resp models.VerifyEmailResponse
	req := models.VerifyEmailRequest{Email: email, Code: code}
	if err := c.Do(ctx, http.MethodPost, "/auth/register/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResendCode asks for a fresh registration code
func (c *Client) ResendCode(ctx context.Context, email string) (*models.MessageResponse, error) {
	var resp models.MessageResponse
	if err := c.Do(ctx, http.MethodPost, "/auth/register/resend", models.ResendCodeRequest{Email: email}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegistrationStatus reports how far a registration for email got
func (c *Client) RegistrationStatus(ctx context.Context, email string) (*models.RegistrationStatus, error) {
	var resp models.RegistrationStatus
	if err := c.Do(ctx, http.MethodGet, "/auth/register/status/"+url.PathEscape(email), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login submits credentials form-encoded. The response either carries the
// user or demands a second factor.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var resp models.LoginResponse
	if err := c.Do(ctx, http.MethodPost, "/auth/login", form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CompleteLogin exchanges a challenge token and code for a session
func (c *Client) CompleteLogin(ctx context.Context, token, code string) (*models.Identity, error) {
	var env models.IdentityEnvelope
	req := models.CompleteLoginRequest{TFAToken: token, Code: code}
	if err := c.Do(ctx, http.MethodPost, "/auth/login/complete", req, &env); err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, ErrNoIdentity
	}
	return env.User, nil
}

// Me returns the identity behind the current session cookie
func (c *Client) Me(ctx context.Context) (*models.Identity, error) {
	var env models.IdentityEnvelope
	if err := c.Do(ctx, http.MethodGet, "/auth/me", nil, &env); err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, ErrNoIdentity
	}
	return env.User, nil
}

// Logout invalidates the session server-side
func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// TFASetup requests enrollment material
func (c *Client) TFASetup(ctx context.Context) (*models.TFASetupResponse, error) {
	var resp models.TFASetupResponse
	if err := c.Do(ctx, http.MethodPost, "/auth/tfa/setup", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TFAEnable proves possession of the chosen method and turns 2FA on
func (c *Client) TFAEnable(ctx context.Context, code string, method models.TFAMethod) error {
	return c.Do(ctx, http.MethodPost, "/auth/tfa/enable", models.TFAEnableRequest{Code: code, Method: method}, nil)
}

// TFADisable turns 2FA off after re-checking the account password
func (c *Client) TFADisable(ctx context.Context, password string) error {
	return c.Do(ctx, http.MethodPost, "/auth/tfa/disable", models.TFADisableRequest{Password: password}, nil)
}

// BackupCodes fetches the account's backup codes
func (c *Client) BackupCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := c.Do(ctx, http.MethodGet, "/auth/tfa/backup-codes", nil, &codes); err != nil {
		return nil, err
	}
	return codes, nil
}
