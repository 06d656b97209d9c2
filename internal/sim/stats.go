package sim

import (
	"errors"
	"fmt"
	"sync/atomic"

	"bloodlink.org/internal/blood"
)

// Counter tallies load-run outcomes by error class.
type Counter struct {
	Requests   atomic.Int64
	Offers     atomic.Int64
	Withdrawn  atomic.Int64
	Refused    atomic.Int64
	AuthFailed atomic.Int64
	Failed     atomic.Int64
}

// Observe files err under its class. A nil error counts nothing.
func (c *Counter) Observe(err error) {
	switch {
	case err == nil:
	case errors.Is(err, blood.ErrInvalidOffer), errors.Is(err, blood.ErrValidation):
		c.Refused.Add(1)
	case errors.Is(err, blood.ErrAuthentication):
		c.AuthFailed.Add(1)
	default:
		c.Failed.Add(1)
	}
}

func (c *Counter) String() string {
	return fmt.Sprintf("requests=%d offers=%d withdrawn=%d refused=%d auth_failed=%d failed=%d",
		c.Requests.Load(), c.Offers.Load(), c.Withdrawn.Load(), c.Refused.Load(), c.AuthFailed.Load(), c.Failed.Load())
}
