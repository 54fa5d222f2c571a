package session

import "errors"

var (
	ErrInvalidEmail       = errors.New("session: invalid email address")
	ErrShortPassword      = errors.New("session: password too short")
	ErrMissingName        = errors.New("session: name required")
	ErrAlreadyRegistered  = errors.New("session: email already registered")
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	// ErrInvalidToken covers malformed, expired, revoked and unknown tokens alike.
	ErrInvalidToken = errors.New("session: invalid or expired token")
)
