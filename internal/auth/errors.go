package auth

import "errors"

var (
	// ErrUnauthorized represents missing or invalid service tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden signals a valid token lacking the required scope.
	ErrForbidden = errors.New("forbidden")
	// ErrDisabled is returned when tokens are requested without a configured secret.
	ErrDisabled = errors.New("token authentication disabled")
)
