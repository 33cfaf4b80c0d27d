package app

import "errors"

var (
	// ErrInvalidCredentials covers unknown emails and password mismatches
	// alike so login failures do not reveal which part was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrCodeRequired is returned when a client's first login is attempted
	// without a matching one-time verification code.
	ErrCodeRequired = errors.New("verification code required for first login")

	// ErrAccessDenied is returned when a client touches a compte it does
	// not own.
	ErrAccessDenied = errors.New("access to this compte is denied")

	// ErrInvalidToken is returned for malformed, expired or revoked tokens.
	ErrInvalidToken = errors.New("invalid token")
)
