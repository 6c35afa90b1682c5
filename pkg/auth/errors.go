package auth

import "errors"

var (
	// ErrTokenNotFound is returned when the requested token record does not exist.
	ErrTokenNotFound = errors.New("token not found")

	// ErrAlreadyInactive is returned when revoking a token that is already revoked.
	ErrAlreadyInactive = errors.New("token already inactive")

	// ErrInvalidClass is returned when a token is created with an unknown class.
	ErrInvalidClass = errors.New("invalid token class")
)
