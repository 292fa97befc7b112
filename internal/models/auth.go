package models

import (
	"encoding/json"
	"time"
)

// Identity is the authenticated user as reported by the backend
type Identity struct {
	ID            int64      `json:"id" yaml:"id"`
	Email         string     `json:"email" yaml:"email"`
	DisplayName   string     `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	Active        bool       `json:"is_active" yaml:"is_active"`
	Superuser     bool       `json:"is_superuser" yaml:"is_superuser"`
	TFAEnabled    bool       `json:"tfa_enabled" yaml:"tfa_enabled"`
	EmailVerified bool       `json:"email_verified" yaml:"email_verified"`
	CreatedAt     Timestamp  `json:"created_at" yaml:"created_at"`
	LastLoginAt   *Timestamp `json:"last_login,omitempty" yaml:"last_login,omitempty"`
}

// UnmarshalJSON tolerates a null full_name
func (i *Identity) UnmarshalJSON(data []byte) error {
	type plain Identity
	aux := struct {
		*plain
		DisplayName *string `json:"full_name"`
	}{plain: (*plain)(i)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.DisplayName != nil {
		i.DisplayName = *aux.DisplayName
	}
	return nil
}

// IdentityEnvelope decodes either {"user": {...}} or a bare user object.
// /auth/me has been observed returning both shapes.
type IdentityEnvelope struct {
	User *Identity
}

// UnmarshalJSON implements json.Unmarshaler
func (e *IdentityEnvelope) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		User *Identity `json:"user"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	if wrapped.User != nil {
		e.User = wrapped.User
		return nil
	}

	var bare Identity
	if err := json.Unmarshal(data, &bare); err != nil {
		return err
	}
	if bare.Email != "" {
		e.User = &bare
	}
	return nil
}

// VerifiedUser is returned once an emailed registration code is accepted
type VerifiedUser struct {
	ID          int64  `json:"id" yaml:"id"`
	Email       string `json:"email" yaml:"email"`
	DisplayName string `json:"full_name,omitempty" yaml:"full_name,omitempty"`
}

// RegisterRequest starts a registration
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// RegisterResponse acknowledges that a verification code was sent
type RegisterResponse struct {
	Message  string `json:"message" yaml:"message"`
	Email    string `json:"email" yaml:"email"`
	Existing bool   `json:"existing,omitempty" yaml:"existing,omitempty"`
}

// VerifyEmailRequest confirms a registration with the emailed code
type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyEmailResponse carries the freshly created account
type VerifyEmailResponse struct {
	Message string       `json:"message" yaml:"message"`
	User    VerifiedUser `json:"user" yaml:"user"`
}

// ResendCodeRequest asks for a new registration code
type ResendCodeRequest struct {
	Email string `json:"email"`
}

// Registration statuses reported by /auth/register/status
const (
	RegistrationCompleted = "completed"
	RegistrationPending   = "pending"
	RegistrationNotFound  = "not_found"
)

// RegistrationStatus describes how far a registration for an email got
type RegistrationStatus struct {
	Status    string `json:"status" yaml:"status"`
	Message   string `json:"message" yaml:"message"`
	CanResend bool   `json:"can_resend,omitempty" yaml:"can_resend,omitempty"`
}

// PendingRegistration records that a code was requested but not confirmed
type PendingRegistration struct {
	Email       string    `json:"email" yaml:"email"`
	SubmittedAt time.Time `json:"submitted_at" yaml:"submitted_at"`
}

// LoginResponse is either a session (User set) or a second-factor demand
type LoginResponse struct {
	TFARequired bool      `json:"tfa_required"`
	TFAToken    string    `json:"tfa_token,omitempty"`
	Message     string    `json:"message,omitempty"`
	User        *Identity `json:"user,omitempty"`
}

// TwoFactorChallenge is held between password login and code entry
type TwoFactorChallenge struct {
	Token     string
	Email     string
	ExpiresAt time.Time
}

// Expired reports whether the challenge token is known to be past its expiry
func (c TwoFactorChallenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// CompleteLoginRequest exchanges a challenge token and code for a session
type CompleteLoginRequest struct {
	TFAToken string `json:"tfa_token"`
	Code     string `json:"code"`
}

// TFAMethod is the second-factor delivery channel
type TFAMethod string

const (
	TFAMethodAuthenticator TFAMethod = "authenticator"
	TFAMethodEmail         TFAMethod = "email"
)

// Valid reports whether m is a known method
func (m TFAMethod) Valid() bool {
	return m == TFAMethodAuthenticator || m == TFAMethodEmail
}

// TFASetupResponse is the enrollment material issued by /auth/tfa/setup
type TFASetupResponse struct {
	Secret      string   `json:"secret"`
	QRCode      string   `json:"qr_code"`
	BackupCodes []string `json:"backup_codes"`
}

// TFAEnableRequest proves possession of the chosen method
type TFAEnableRequest struct {
	Code   string    `json:"code"`
	Method TFAMethod `json:"method"`
}

// TFADisableRequest re-authenticates before turning 2FA off
type TFADisableRequest struct {
	Password string `json:"password"`
}

// TwoFactorEnrollment is the client-held enrollment material
type TwoFactorEnrollment struct {
	Secret      string
	QRPayload   string
	BackupCodes []string
	Method      TFAMethod
}
