package common

import "errors"

// Callers should use errors.Is to match these values; lower layers wrap them
// with additional context.
var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrConstraintViolation is a uniqueness or referential-integrity failure
	// the service layer did not already translate.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrStorageUnavailable marks a transient storage failure (unreachable,
	// timed out, busy). Callers may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// ErrUnknownOwner is returned when a token is issued for an account that
	// does not exist.
	ErrUnknownOwner = errors.New("unknown owner")

	// ErrInvalidToken is the single negative outcome of token validation.
	ErrInvalidToken = errors.New("invalid token")
)
