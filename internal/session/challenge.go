package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wayfarer/cli/internal/models"
)

// NewChallenge builds the second-factor challenge for email. When token is a
// JWT its exp claim becomes the challenge expiry; the signature is not
// checked because only the backend can verify it.
func NewChallenge(token, email string) *models.TwoFactorChallenge {
	challenge := &models.TwoFactorChallenge{Token: token, Email: email}
	if exp, ok := tokenExpiry(token); ok {
		challenge.ExpiresAt = exp
	}
	return challenge
}

func tokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
