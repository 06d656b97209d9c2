package blood

import (
	"strings"
	"time"
)

// Role identifies which dashboard a user operates.
type Role string

const (
	RoleDonor    Role = "Donor"
	RoleCivilian Role = "Civilian"
	RoleAdmin    Role = "Admin"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleDonor, RoleCivilian, RoleAdmin:
		return true
	}
	return false
}

// RequestStatus is the server-reported state of a blood request. Unknown
// values are kept verbatim and displayed as-is.
type RequestStatus string

const (
	StatusPending   RequestStatus = "Pending"
	StatusOffered   RequestStatus = "Offered"
	StatusFulfilled RequestStatus = "Fulfilled"
	StatusCancelled RequestStatus = "Cancelled"
)

// OfferStatus is the server-reported state of a donation offer.
type OfferStatus string

const (
	OfferPending  OfferStatus = "Pending"
	OfferAccepted OfferStatus = "Accepted"
	OfferRejected OfferStatus = "Rejected"
)

// User is the account reference embedded in profiles, requests and offers.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// FullName joins first and last name, falling back to the username.
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Profile is the donor/civilian record attached to a user account.
type Profile struct {
	ID           int64      `json:"id"`
	User         User       `json:"user"`
	Role         Role       `json:"user_type"`
	BloodGroup   BloodGroup `json:"blood_group,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Address      string     `json:"address,omitempty"`
	Availability bool       `json:"availability"`
}

// BloodRequest is a civilian's request for units of one blood group.
type BloodRequest struct {
	ID          int64         `json:"id"`
	BloodGroup  BloodGroup    `json:"blood_group"`
	Quantity    int           `json:"quantity"`
	Address     string        `json:"address"`
	Status      RequestStatus `json:"status"`
	RequestedBy User          `json:"civilian"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Offer is a donor's offer against a blood request, enriched with the full
// request record.
type Offer struct {
	ID        int64        `json:"id"`
	Request   BloodRequest `json:"request"`
	Donor     User         `json:"donor"`
	Status    OfferStatus  `json:"status"`
	CreatedAt time.Time    `json:"offered_at"`
}

// OfferReceipt is what the backend returns when an offer is created: only a
// foreign-key reference to the request.
type OfferReceipt struct {
	ID        int64       `json:"id"`
	RequestID int64       `json:"request"`
	DonorID   int64       `json:"donor"`
	Status    OfferStatus `json:"status"`
	CreatedAt time.Time   `json:"offered_at"`
}

// BloodBank carries per-group stock as reported by the backend. Keys are
// raw strings because the backend stores them in an untyped JSON column.
type BloodBank struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Location       string         `json:"location"`
	AvailableBlood map[string]int `json:"available_blood"`
}

// InventorySnapshot is the admin aggregate. It is derived, never mutated.
type InventorySnapshot struct {
	DonorCount               int                `json:"donor_count"`
	RequestCount             int                `json:"request_count"`
	AvailabilityByBloodGroup map[BloodGroup]int `json:"availability_by_blood_group"`
}

// Identity is the authenticated user as the session knows it.
type Identity struct {
	UserID     int64      `json:"id,omitempty"`
	Username   string     `json:"username"`
	Role       Role       `json:"role"`
	BloodGroup BloodGroup `json:"blood_group,omitempty"`
}

// IdentityFromProfile builds the primary-path identity.
func IdentityFromProfile(p Profile) Identity {
	return Identity{
		UserID:     p.User.ID,
		Username:   p.User.Username,
		Role:       p.Role,
		BloodGroup: p.BloodGroup,
	}
}
