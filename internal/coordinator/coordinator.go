// Package coordinator owns the per-role working sets of blood requests and
// offers and enforces the offer rules the backend does not re-check.
package coordinator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"bloodlink.org/internal/audit"
	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/gateway"
	"bloodlink.org/internal/obs"
)

// Authorizer attaches the active session's credentials to a context.
// session.Store implements it.
type Authorizer interface {
	Authorize(ctx context.Context) (context.Context, error)
}

// CivilianView is the civilian dashboard's data.
type CivilianView struct {
	Profile  blood.Profile
	Requests []blood.BloodRequest
}

// DonorView is the donor dashboard's data. EligibleRequests is the whole
// pending pool, compatible or not.
type DonorView struct {
	Profile          blood.Profile
	EligibleRequests []blood.BloodRequest
	Offers           []blood.Offer
}

// EligibleRow annotates one pending request for display. Dashboards enable
// the offer action from Actionable and nothing else.
type EligibleRow struct {
	Request    blood.BloodRequest
	Compatible bool
	Offered    bool
	Actionable bool
}

type offerKey struct {
	donorID   int64
	requestID int64
}

// Coordinator holds local collections only; every mutation goes through the
// gateway first. Gateway calls are made without holding the lock.
type Coordinator struct {
	gw    gateway.Gateway
	authz Authorizer

	mu       sync.Mutex
	civilian *CivilianView
	donor    *DonorView
	inflight map[offerKey]struct{}
}

// New builds a coordinator with empty working sets.
func New(gw gateway.Gateway, authz Authorizer) *Coordinator {
	return &Coordinator{
		gw:       gw,
		authz:    authz,
		inflight: make(map[offerKey]struct{}),
	}
}

func (c *Coordinator) authorize(ctx context.Context) (context.Context, error) {
	ctx = audit.EnsureRequestID(ctx)
	return c.authz.Authorize(ctx)
}

// IsCompatible reports whether the donor may act on the request: the blood
// group labels must match exactly. There is no cross-group compatibility.
func IsCompatible(req blood.BloodRequest, donor blood.Profile) bool {
	return req.BloodGroup.Valid() && req.BloodGroup == donor.BloodGroup
}

// LoadCivilianView fetches the caller's profile and the requests owned by
// civilianID, replacing the civilian working set.
func (c *Coordinator) LoadCivilianView(ctx context.Context, civilianID int64) (CivilianView, error) {
	view, err := c.loadCivilianView(ctx, civilianID)
	obs.ViewReloaded(string(blood.RoleCivilian), err == nil)
	return view, err
}

func (c *Coordinator) loadCivilianView(ctx context.Context, civilianID int64) (CivilianView, error) {
	ctx, err := c.authorize(ctx)
	if err != nil {
		return CivilianView{}, err
	}
	profile, err := c.gw.Me(ctx)
	if err != nil {
		return CivilianView{}, err
	}
	all, err := c.gw.ListRequests(ctx, gateway.RequestFilter{CivilianID: civilianID})
	if err != nil {
		return CivilianView{}, err
	}
	owned := make([]blood.BloodRequest, 0, len(all))
	for _, r := range all {
		if r.RequestedBy.ID == civilianID {
			owned = append(owned, r)
		}
	}

	view := &CivilianView{Profile: profile, Requests: owned}
	c.mu.Lock()
	c.civilian = view
	out := cloneCivilian(view)
	c.mu.Unlock()
	return out, nil
}

// SubmitRequest validates the draft locally, creates it remotely and appends
// the result to the civilian working set.
func (c *Coordinator) SubmitRequest(ctx context.Context, draft blood.RequestDraft) (blood.BloodRequest, error) {
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return blood.BloodRequest{}, err
	}
	ctx, err := c.authorize(ctx)
	if err != nil {
		return blood.BloodRequest{}, err
	}
	created, err := c.gw.CreateRequest(ctx, draft)
	if err != nil {
		return blood.BloodRequest{}, err
	}

	c.mu.Lock()
	if c.civilian == nil {
		c.civilian = &CivilianView{}
	}
	c.civilian.Requests = append(c.civilian.Requests, created)
	c.mu.Unlock()

	_ = audit.LogEvent(ctx, "request.submitted", map[string]any{
		"request_id":  created.ID,
		"blood_group": string(created.BloodGroup),
		"quantity":    created.Quantity,
	})
	return created, nil
}

// CivilianRequests returns a copy of the civilian's local collection.
func (c *Coordinator) CivilianRequests() []blood.BloodRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.civilian == nil {
		return nil
	}
	return slices.Clone(c.civilian.Requests)
}

// LoadDonorView fetches the donor's profile, the pending pool and the
// donor's own offers, replacing the donor working set.
func (c *Coordinator) LoadDonorView(ctx context.Context, donorID int64) (DonorView, error) {
	view, err := c.loadDonorView(ctx, donorID)
	obs.ViewReloaded(string(blood.RoleDonor), err == nil)
	return view, err
}

func (c *Coordinator) loadDonorView(ctx context.Context, donorID int64) (DonorView, error) {
	ctx, err := c.authorize(ctx)
	if err != nil {
		return DonorView{}, err
	}
	profile, err := c.gw.Me(ctx)
	if err != nil {
		return DonorView{}, err
	}
	pool, err := c.gw.ListRequests(ctx, gateway.RequestFilter{Status: blood.StatusPending})
	if err != nil {
		return DonorView{}, err
	}
	offers, err := c.gw.ListOffers(ctx, gateway.OfferFilter{DonorID: donorID})
	if err != nil {
		return DonorView{}, err
	}

	eligible := make([]blood.BloodRequest, 0, len(pool))
	for _, r := range pool {
		if strings.EqualFold(string(r.Status), string(blood.StatusPending)) {
			eligible = append(eligible, r)
		}
	}
	own := make([]blood.Offer, 0, len(offers))
	for _, o := range offers {
		if o.Donor.ID == 0 || o.Donor.ID == donorID {
			own = append(own, o)
		}
	}

	view := &DonorView{Profile: profile, EligibleRequests: eligible, Offers: own}
	c.mu.Lock()
	c.donor = view
	out := cloneDonor(view)
	c.mu.Unlock()
	return out, nil
}

// DonorSnapshot returns a copy of the donor working set.
func (c *Coordinator) DonorSnapshot() (DonorView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.donor == nil {
		return DonorView{}, false
	}
	return cloneDonor(c.donor), true
}

// HasOffered reports whether the local offer collection already holds an
// offer by donorID on requestID.
func (c *Coordinator) HasOffered(donorID, requestID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasOfferedLocked(donorID, requestID)
}

func (c *Coordinator) hasOfferedLocked(donorID, requestID int64) bool {
	if c.donor == nil {
		return false
	}
	for _, o := range c.donor.Offers {
		if o.Request.ID != requestID {
			continue
		}
		if o.Donor.ID == 0 || o.Donor.ID == donorID {
			return true
		}
	}
	return false
}

// DonorRows annotates the eligible pool for display.
func (c *Coordinator) DonorRows() []EligibleRow {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.donor == nil {
		return nil
	}
	donorID := c.donor.Profile.User.ID
	rows := make([]EligibleRow, 0, len(c.donor.EligibleRequests))
	for _, r := range c.donor.EligibleRequests {
		row := EligibleRow{
			Request:    r,
			Compatible: IsCompatible(r, c.donor.Profile),
			Offered:    c.hasOfferedLocked(donorID, r.ID),
		}
		_, busy := c.inflight[offerKey{donorID, r.ID}]
		row.Actionable = row.Compatible && !row.Offered && !busy
		rows = append(rows, row)
	}
	return rows
}

// MakeOffer offers donorID's blood on requestID. Incompatible, duplicate or
// concurrent duplicate offers fail with ErrInvalidOffer before any network
// call. On success the offer is enriched with the full request, appended to
// the local offers, and the request leaves the local eligible pool. Another
// donor's concurrent offer on the same request is only seen on reload.
func (c *Coordinator) MakeOffer(ctx context.Context, donorID, requestID int64) (blood.Offer, error) {
	key := offerKey{donorID, requestID}

	c.mu.Lock()
	if c.donor == nil || c.donor.Profile.User.ID != donorID {
		c.mu.Unlock()
		return blood.Offer{}, fmt.Errorf("%w: donor view for %d is not loaded", blood.ErrInvalidOffer, donorID)
	}
	idx := slices.IndexFunc(c.donor.EligibleRequests, func(r blood.BloodRequest) bool { return r.ID == requestID })
	if idx < 0 {
		c.mu.Unlock()
		return blood.Offer{}, fmt.Errorf("%w: request %d is not in the eligible pool", blood.ErrInvalidOffer, requestID)
	}
	local := c.donor.EligibleRequests[idx]
	donor := c.donor.Profile
	if !IsCompatible(local, donor) {
		c.mu.Unlock()
		return blood.Offer{}, fmt.Errorf("%w: request %d needs %s, donor is %s", blood.ErrInvalidOffer, requestID, local.BloodGroup, displayGroup(donor.BloodGroup))
	}
	if c.hasOfferedLocked(donorID, requestID) {
		c.mu.Unlock()
		return blood.Offer{}, fmt.Errorf("%w: offer on request %d already made", blood.ErrInvalidOffer, requestID)
	}
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return blood.Offer{}, fmt.Errorf("%w: offer on request %d already in progress", blood.ErrInvalidOffer, requestID)
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	offer, err := c.createOffer(ctx, local, donor)

	c.mu.Lock()
	delete(c.inflight, key)
	if err == nil && c.donor != nil {
		c.donor.Offers = append(c.donor.Offers, offer)
		c.donor.EligibleRequests = slices.DeleteFunc(c.donor.EligibleRequests, func(r blood.BloodRequest) bool {
			return r.ID == requestID
		})
	}
	c.mu.Unlock()
	return offer, err
}

func (c *Coordinator) createOffer(ctx context.Context, local blood.BloodRequest, donor blood.Profile) (blood.Offer, error) {
	ctx, err := c.authorize(ctx)
	if err != nil {
		return blood.Offer{}, err
	}
	receipt, err := c.gw.CreateOffer(ctx, local.ID)
	if err != nil {
		return blood.Offer{}, err
	}
	full, err := c.gw.GetRequest(ctx, local.ID)
	if err != nil {
		// The offer exists remotely; fall back to the pool copy.
		obs.Logger().WithFields(logrus.Fields{
			"request_id": audit.RequestIDFromContext(ctx),
			"offer":      receipt.ID,
			"request":    local.ID,
			"error":      err.Error(),
		}).Warn("offer enrichment failed, using local request")
		full = local
	}
	offer := blood.Offer{
		ID:        receipt.ID,
		Request:   full,
		Donor:     donor.User,
		Status:    receipt.Status,
		CreatedAt: receipt.CreatedAt,
	}
	if offer.Status == "" {
		offer.Status = blood.OfferPending
	}
	_ = audit.LogEvent(ctx, "offer.created", map[string]any{
		"offer_id":   offer.ID,
		"request_id": local.ID,
	})
	return offer, nil
}

// DeleteOffer withdraws an offer. The local collection changes only after
// the backend confirms the deletion.
func (c *Coordinator) DeleteOffer(ctx context.Context, offerID int64) error {
	ctx, err := c.authorize(ctx)
	if err != nil {
		return err
	}
	if err := c.gw.DeleteOffer(ctx, offerID); err != nil {
		return err
	}
	c.mu.Lock()
	if c.donor != nil {
		c.donor.Offers = slices.DeleteFunc(c.donor.Offers, func(o blood.Offer) bool { return o.ID == offerID })
	}
	c.mu.Unlock()
	_ = audit.LogEvent(ctx, "offer.deleted", map[string]any{"offer_id": offerID})
	return nil
}

func displayGroup(g blood.BloodGroup) string {
	if g == "" {
		return "unknown"
	}
	return string(g)
}

func cloneCivilian(v *CivilianView) CivilianView {
	return CivilianView{Profile: v.Profile, Requests: slices.Clone(v.Requests)}
}

func cloneDonor(v *DonorView) DonorView {
	return DonorView{
		Profile:          v.Profile,
		EligibleRequests: slices.Clone(v.EligibleRequests),
		Offers:           slices.Clone(v.Offers),
	}
}
