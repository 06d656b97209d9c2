package blood

import "errors"

var (
	// ErrValidation marks malformed local input, caught before any network call.
	ErrValidation = errors.New("validation failed")
	// ErrAuthentication marks bad credentials or an expired/rejected token.
	ErrAuthentication = errors.New("authentication failed")
	// ErrNotFound marks an absent profile or resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidOffer marks an incompatible or duplicate offer.
	ErrInvalidOffer = errors.New("invalid offer")
	// ErrNetwork marks a transport or gateway failure of any other kind.
	ErrNetwork = errors.New("network failure")
)
