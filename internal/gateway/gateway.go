// Package gateway defines the sole conduit between the client core and the
// blood marketplace backend.
package gateway

import (
	"context"

	"bloodlink.org/internal/auth"
	"bloodlink.org/internal/blood"
)

// RequestFilter narrows GET requests. Zero values mean "no filter".
type RequestFilter struct {
	Status     blood.RequestStatus
	CivilianID int64
}

// OfferFilter narrows GET offers.
type OfferFilter struct {
	DonorID int64
}

// ProfileFilter narrows profile listings. A non-empty BloodGroup turns the
// listing into a donor search.
type ProfileFilter struct {
	Role       blood.Role
	BloodGroup blood.BloodGroup
}

// Gateway is the backend contract. Calls that need a principal read the
// bearer token from the context (auth.ContextWithToken).
type Gateway interface {
	ExchangeCredentials(ctx context.Context, username, password string) (auth.TokenPair, error)
	RefreshAccess(ctx context.Context, refreshToken string) (string, error)
	Register(ctx context.Context, reg blood.Registration) error

	Me(ctx context.Context) (blood.Profile, error)
	ListProfiles(ctx context.Context, f ProfileFilter) ([]blood.Profile, error)

	ListRequests(ctx context.Context, f RequestFilter) ([]blood.BloodRequest, error)
	GetRequest(ctx context.Context, id int64) (blood.BloodRequest, error)
	CreateRequest(ctx context.Context, draft blood.RequestDraft) (blood.BloodRequest, error)

	ListOffers(ctx context.Context, f OfferFilter) ([]blood.Offer, error)
	CreateOffer(ctx context.Context, requestID int64) (blood.OfferReceipt, error)
	DeleteOffer(ctx context.Context, id int64) error

	ListBloodBanks(ctx context.Context) ([]blood.BloodBank, error)
}
