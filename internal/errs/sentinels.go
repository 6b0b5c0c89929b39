// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate (e.g. enrollment or public key already present).
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates malformed or incomplete input.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMFAFailed indicates a rejected second-factor assertion; the pending
	// authorization stays open for another attempt.
	ErrMFAFailed = errors.New("mfa failed")

	// ErrExpired indicates the pending authorization outlived its window.
	ErrExpired = errors.New("expired")

	// ErrRateLimited indicates temporary lockout of authorization attempts.
	ErrRateLimited = errors.New("rate limited")
)
