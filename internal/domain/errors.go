package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is zero or malformed.
	ErrInvalidID = errors.New("invalid ID")
)
