package coordinator

import (
	"errors"
	"strings"

	"bloodlink.org/internal/blood"
)

// Message renders err as the single line a dashboard shows.
func Message(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, blood.ErrValidation):
		return "Invalid input: " + detail(err, blood.ErrValidation)
	case errors.Is(err, blood.ErrInvalidOffer):
		return "Offer not allowed: " + detail(err, blood.ErrInvalidOffer)
	case errors.Is(err, blood.ErrAuthentication):
		return "Your session is not valid. Please log in again."
	case errors.Is(err, blood.ErrNotFound):
		return "Not found: " + detail(err, blood.ErrNotFound)
	default:
		return "Something went wrong talking to the server. Please try again."
	}
}

// detail strips the sentinel prefix added by fmt.Errorf("%w: ...").
func detail(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}
