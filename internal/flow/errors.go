// Package flow implements the multi-step account forms: registration with
// email verification, login, the second-factor challenge and two-factor
// enrollment. Each flow is a small state machine safe for concurrent use.
package flow

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidState is returned when an operation does not apply to the
	// flow's current step
	ErrInvalidState = errors.New("operation not allowed in the current step")

	// ErrCooldownActive is returned when a resend is requested before the
	// countdown reached zero
	ErrCooldownActive = errors.New("please wait before requesting a new code")

	// ErrRateLimited marks login attempts refused for too many failures
	ErrRateLimited = errors.New("too many login attempts")

	// ErrTooManyAttempts marks second-factor codes refused for too many failures
	ErrTooManyAttempts = errors.New("too many verification attempts")

	ErrNoChallenge       = errors.New("no second-factor challenge is pending")
	ErrChallengeExpired  = errors.New("the verification challenge expired, log in again")
	ErrResendUnavailable = errors.New("resending a code is not available here")
	ErrBackupCodesShown  = errors.New("backup codes are only shown once")
)

// RateLimitError carries the server's explanation and when a retry makes sense
type RateLimitError struct {
	Detail  string
	RetryAt time.Time
	kind    error
}

func (e *RateLimitError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("%v, try again after %s", e.kind, e.RetryAt.Local().Format("15:04"))
}

// Is matches ErrRateLimited or ErrTooManyAttempts depending on the origin
func (e *RateLimitError) Is(target error) bool {
	return target == e.kind
}

// Wait returns how long until a retry makes sense
func (e *RateLimitError) Wait(now time.Time) time.Duration {
	if d := e.RetryAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
