package utils

import (
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinPasswordLength is the shortest password the registration form accepts
const MinPasswordLength = 8

// PasswordSymbols are the characters that satisfy the symbol requirement
const PasswordSymbols = `!@#$%^&*(),.?":{}|<>`

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return NewValidationError("email", "email is required")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return NewValidationError("email", "invalid email format")
	}

	return nil
}

// PasswordRequirements lists the policy rules password does not meet yet.
// An empty result means the password is acceptable.
func PasswordRequirements(password string) []string {
	var missing []string
	if utf8.RuneCountInString(password) < MinPasswordLength {
		missing = append(missing, "at least 8 characters")
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r) && r < unicode.MaxASCII:
			upper = true
		case unicode.IsLower(r) && r < unicode.MaxASCII:
			lower = true
		case unicode.IsDigit(r) && r < unicode.MaxASCII:
			digit = true
		case strings.ContainsRune(PasswordSymbols, r):
			symbol = true
		}
	}

	if !upper {
		missing = append(missing, "an uppercase letter")
	}
	if !lower {
		missing = append(missing, "a lowercase letter")
	}
	if !digit {
		missing = append(missing, "a digit")
	}
	if !symbol {
		missing = append(missing, "a special character")
	}
	return missing
}

// ValidatePassword validates a password against the registration policy
func ValidatePassword(password string) error {
	if password == "" {
		return NewValidationError("password", "password is required")
	}

	if missing := PasswordRequirements(password); len(missing) > 0 {
		return NewValidationError("password", "password must contain "+strings.Join(missing, ", "))
	}

	return nil
}

// ValidatePasswordConfirmation checks that both password entries match
func ValidatePasswordConfirmation(password, confirmation string) error {
	if password != confirmation {
		return NewValidationError("confirm_password", "passwords do not match")
	}
	return nil
}

// ValidateCode validates a 6-digit verification code
func ValidateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return NewValidationError("code", "code is required")
	}
	if !codePattern.MatchString(code) {
		return NewValidationError("code", "code must be 6 digits")
	}
	return nil
}

// ValidateRequired validates that a string is not empty
func ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError(fieldName, fieldName+" is required")
	}
	return nil
}

// ValidateDisplayName validates the optional display name
func ValidateDisplayName(name string) error {
	if name == "" {
		return nil
	}

	if utf8.RuneCountInString(name) > 255 {
		return NewValidationError("full_name", "full name must be less than 255 characters")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return NewValidationError("full_name", "full name contains invalid characters")
		}
	}

	return nil
}

// ValidateURL validates a server base URL
func ValidateURL(raw string) error {
	if err := ValidateRequired(raw, "url"); err != nil {
		return err
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return NewValidationError("url", "invalid URL format")
	}

	return nil
}
