// Package common defines shared constants and sentinel errors used across
// the token vending machine layers. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrorNotFound = errors.New("not found")

	// Request validation (missing or malformed parameter, bad username/password format).
	ErrorValidation = errors.New("validation error")

	// Authentication failures. Callers never learn which check failed.
	ErrorStaleTimestamp = errors.New("timestamp outside validity window")
	ErrorUnauthorized   = errors.New("unauthorized")

	// Registration rejected (username taken or write could not be verified).
	ErrorConflict = errors.New("conflict")

	// Infrastructure failures (store unreachable, issuer returned nothing).
	ErrorInternal = errors.New("internal error")

	// Admin token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
