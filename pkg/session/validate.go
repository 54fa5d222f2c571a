package session

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

const MinPasswordLength = 6

var validate = validator.New()

// NormalizeEmail trims and lower-cases an address the way it is stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateCredentials checks the sign-in form before anything is sent to the store.
func ValidateCredentials(email, password string) error {
	if err := validate.Var(NormalizeEmail(email), "required,email"); err != nil {
		return ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return ErrShortPassword
	}
	return nil
}

// ValidateSignUp is ValidateCredentials plus a required display name.
func ValidateSignUp(email, password, name string) error {
	if err := ValidateCredentials(email, password); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return ErrMissingName
	}
	return nil
}
