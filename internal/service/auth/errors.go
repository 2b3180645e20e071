package auth

import "errors"

// Token verification errors.
var (
	// ErrInvalidToken indicates the token format is invalid or its signature
	// does not match.
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired.
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates the nbf claim is in the future.
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrMissingToken indicates a token was expected but not provided.
	ErrMissingToken = errors.New("authentication token is missing")

	// ErrInvalidSubject indicates the token does not name a valid user.
	ErrInvalidSubject = errors.New("authentication token has no valid subject")
)
