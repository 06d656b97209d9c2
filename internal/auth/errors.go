package auth

import "errors"

var (
	// ErrInvalidToken indicates a token failed signature or claim validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrMalformedToken indicates a token whose payload segment cannot be decoded.
	ErrMalformedToken = errors.New("auth: malformed token")
	// ErrInvalidCredentials indicates a username/password mismatch.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)
