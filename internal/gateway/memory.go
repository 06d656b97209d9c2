package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"bloodlink.org/internal/auth"
	"bloodlink.org/internal/blood"
)

// ErrForbidden is returned when an authenticated principal may not touch a
// resource. The client treats it as a generic transport failure.
var ErrForbidden = fmt.Errorf("%w: forbidden", blood.ErrNetwork)

type account struct {
	user    blood.User
	hash    string
	staff   bool
	profile *blood.Profile
}

type offerRow struct {
	id        int64
	requestID int64
	donorID   int64
	status    blood.OfferStatus
	createdAt time.Time
}

// InMemory implements Gateway with in-process state. It mirrors the
// production backend closely enough to drive the sandbox server and tests:
// tokens are real JWTs, staff accounts have no profile, a request flips to
// Offered on its first offer and further offers are still accepted.
type InMemory struct {
	mu     sync.RWMutex
	issuer *auth.Issuer
	cost   int
	now    func() time.Time

	byName   map[string]*account
	byID     map[int64]*account
	requests map[int64]*blood.BloodRequest
	offers   map[int64]*offerRow
	banks    []blood.BloodBank

	nextUser, nextProfile, nextRequest, nextOffer, nextBank int64
}

// Option configures an InMemory gateway.
type Option func(*InMemory)

// WithBcryptCost sets the password hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(g *InMemory) { g.cost = cost }
}

// WithClock overrides the timestamp source for created records.
func WithClock(fn func() time.Time) Option {
	return func(g *InMemory) {
		if fn != nil {
			g.now = fn
		}
	}
}

// NewInMemory creates an empty backend that signs tokens with issuer.
func NewInMemory(issuer *auth.Issuer, opts ...Option) *InMemory {
	g := &InMemory{
		issuer:   issuer,
		now:      func() time.Time { return time.Now().UTC() },
		byName:   make(map[string]*account),
		byID:     make(map[int64]*account),
		requests: make(map[int64]*blood.BloodRequest),
		offers:   make(map[int64]*offerRow),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddUser registers a donor or civilian and returns the created account.
func (g *InMemory) AddUser(reg blood.Registration) (blood.User, error) {
	if err := reg.Validate(); err != nil {
		return blood.User{}, err
	}
	hash, err := auth.HashPassword(reg.Password, g.cost)
	if err != nil {
		return blood.User{}, fmt.Errorf("hash password: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	acc, err := g.insertLocked(reg.Username, reg.Email, reg.FirstName, reg.LastName, hash)
	if err != nil {
		return blood.User{}, err
	}
	g.nextProfile++
	acc.profile = &blood.Profile{
		ID:           g.nextProfile,
		User:         acc.user,
		Role:         reg.Kind,
		BloodGroup:   reg.BloodGroup,
		Availability: reg.Kind == blood.RoleDonor,
	}
	return acc.user, nil
}

// AddStaff creates a staff account with no profile. Such users fail the
// profile lookup and end up on the admin dashboard.
func (g *InMemory) AddStaff(username, password string) (blood.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return blood.User{}, fmt.Errorf("%w: username is required", blood.ErrValidation)
	}
	hash, err := auth.HashPassword(password, g.cost)
	if err != nil {
		return blood.User{}, fmt.Errorf("hash password: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	acc, err := g.insertLocked(username, "", "", "", hash)
	if err != nil {
		return blood.User{}, err
	}
	acc.staff = true
	return acc.user, nil
}

// AddBloodBank stores a bank with the given per-group stock.
func (g *InMemory) AddBloodBank(name, location string, stock map[string]int) blood.BloodBank {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextBank++
	bank := blood.BloodBank{ID: g.nextBank, Name: name, Location: location, AvailableBlood: copyStock(stock)}
	g.banks = append(g.banks, bank)
	return cloneBank(bank)
}

// SetRequestStatus overrides a request's status the way backend staff would.
func (g *InMemory) SetRequestStatus(id int64, status blood.RequestStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.requests[id]
	if !ok {
		return fmt.Errorf("%w: request %d", blood.ErrNotFound, id)
	}
	req.Status = status
	return nil
}

func (g *InMemory) insertLocked(username, email, first, last, hash string) (*account, error) {
	if _, exists := g.byName[username]; exists {
		return nil, fmt.Errorf("%w: username already exists", blood.ErrValidation)
	}
	g.nextUser++
	acc := &account{
		user: blood.User{ID: g.nextUser, Username: username, Email: email, FirstName: first, LastName: last},
		hash: hash,
	}
	g.byName[username] = acc
	g.byID[acc.user.ID] = acc
	return acc, nil
}

func (g *InMemory) ExchangeCredentials(ctx context.Context, username, password string) (auth.TokenPair, error) {
	g.mu.RLock()
	acc, ok := g.byName[strings.TrimSpace(username)]
	g.mu.RUnlock()
	if !ok {
		return auth.TokenPair{}, fmt.Errorf("%w: no active account found with the given credentials", blood.ErrAuthentication)
	}
	if err := auth.VerifyPassword(acc.hash, password); err != nil {
		return auth.TokenPair{}, fmt.Errorf("%w: no active account found with the given credentials", blood.ErrAuthentication)
	}
	return g.issuer.Issue(acc.user.ID, acc.user.Username)
}

func (g *InMemory) RefreshAccess(ctx context.Context, refreshToken string) (string, error) {
	access, err := g.issuer.Refresh(refreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: token is invalid or expired", blood.ErrAuthentication)
	}
	return access, nil
}

func (g *InMemory) Register(ctx context.Context, reg blood.Registration) error {
	_, err := g.AddUser(reg)
	return err
}

func (g *InMemory) principal(ctx context.Context) (*account, error) {
	token, ok := auth.TokenFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: authentication credentials were not provided", blood.ErrAuthentication)
	}
	claims, err := g.issuer.Verify(token, auth.TokenTypeAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: token is invalid or expired", blood.ErrAuthentication)
	}
	g.mu.RLock()
	acc, ok := g.byID[claims.UserID]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: user not found", blood.ErrAuthentication)
	}
	return acc, nil
}

func (g *InMemory) Me(ctx context.Context) (blood.Profile, error) {
	acc, err := g.principal(ctx)
	if err != nil {
		return blood.Profile{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if acc.profile == nil {
		return blood.Profile{}, fmt.Errorf("%w: profile not found", blood.ErrNotFound)
	}
	return *acc.profile, nil
}

// ListProfiles returns every matching profile to staff and only the caller's
// own profile to everyone else. A blood group filter is a donor search and
// is open to any authenticated user.
func (g *InMemory) ListProfiles(ctx context.Context, f ProfileFilter) ([]blood.Profile, error) {
	acc, err := g.principal(ctx)
	if err != nil {
		return nil, err
	}
	search := f.BloodGroup != ""
	if search && !f.BloodGroup.Valid() {
		return nil, fmt.Errorf("%w: blood_group is invalid", blood.ErrValidation)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := []blood.Profile{}
	for _, a := range g.byID {
		p := a.profile
		if p == nil {
			continue
		}
		if !search && !acc.staff && a != acc {
			continue
		}
		if search && (p.Role != blood.RoleDonor || p.BloodGroup != f.BloodGroup) {
			continue
		}
		if f.Role != "" && p.Role != f.Role {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *InMemory) ListRequests(ctx context.Context, f RequestFilter) ([]blood.BloodRequest, error) {
	if _, err := g.principal(ctx); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := []blood.BloodRequest{}
	for _, r := range g.requests {
		if f.Status != "" && !strings.EqualFold(string(r.Status), string(f.Status)) {
			continue
		}
		if f.CivilianID != 0 && r.RequestedBy.ID != f.CivilianID {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *InMemory) GetRequest(ctx context.Context, id int64) (blood.BloodRequest, error) {
	if _, err := g.principal(ctx); err != nil {
		return blood.BloodRequest{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.requests[id]
	if !ok {
		return blood.BloodRequest{}, fmt.Errorf("%w: request %d", blood.ErrNotFound, id)
	}
	return *r, nil
}

func (g *InMemory) CreateRequest(ctx context.Context, draft blood.RequestDraft) (blood.BloodRequest, error) {
	acc, err := g.principal(ctx)
	if err != nil {
		return blood.BloodRequest{}, err
	}
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return blood.BloodRequest{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextRequest++
	r := &blood.BloodRequest{
		ID:          g.nextRequest,
		BloodGroup:  draft.BloodGroup,
		Quantity:    draft.Quantity,
		Address:     draft.Address,
		Status:      blood.StatusPending,
		RequestedBy: acc.user,
		CreatedAt:   g.now(),
	}
	g.requests[r.ID] = r
	return *r, nil
}

// ListOffers returns all offers to staff and the caller's own offers to
// everyone else.
func (g *InMemory) ListOffers(ctx context.Context, f OfferFilter) ([]blood.Offer, error) {
	acc, err := g.principal(ctx)
	if err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := []blood.Offer{}
	for _, o := range g.offers {
		if !acc.staff && o.donorID != acc.user.ID {
			continue
		}
		if f.DonorID != 0 && o.donorID != f.DonorID {
			continue
		}
		out = append(out, g.offerLocked(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *InMemory) offerLocked(o *offerRow) blood.Offer {
	off := blood.Offer{ID: o.id, Status: o.status, CreatedAt: o.createdAt}
	if r, ok := g.requests[o.requestID]; ok {
		off.Request = *r
	} else {
		off.Request = blood.BloodRequest{ID: o.requestID}
	}
	if d, ok := g.byID[o.donorID]; ok {
		off.Donor = d.user
	}
	return off
}

// CreateOffer records an offer by the caller. The request moves from Pending
// to Offered; later offers on the same request are accepted too.
func (g *InMemory) CreateOffer(ctx context.Context, requestID int64) (blood.OfferReceipt, error) {
	acc, err := g.principal(ctx)
	if err != nil {
		return blood.OfferReceipt{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.requests[requestID]
	if !ok {
		return blood.OfferReceipt{}, fmt.Errorf("%w: request: invalid pk %d, object does not exist", blood.ErrValidation, requestID)
	}
	g.nextOffer++
	row := &offerRow{
		id:        g.nextOffer,
		requestID: requestID,
		donorID:   acc.user.ID,
		status:    blood.OfferPending,
		createdAt: g.now(),
	}
	g.offers[row.id] = row
	if r.Status == blood.StatusPending {
		r.Status = blood.StatusOffered
	}
	return blood.OfferReceipt{
		ID:        row.id,
		RequestID: row.requestID,
		DonorID:   row.donorID,
		Status:    row.status,
		CreatedAt: row.createdAt,
	}, nil
}

// DeleteOffer removes one of the caller's offers. Another donor's offer is
// invisible (not found); staff see it but may not delete it.
func (g *InMemory) DeleteOffer(ctx context.Context, id int64) error {
	acc, err := g.principal(ctx)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.offers[id]
	if !ok || (!acc.staff && o.donorID != acc.user.ID) {
		return fmt.Errorf("%w: offer %d", blood.ErrNotFound, id)
	}
	if o.donorID != acc.user.ID {
		return ErrForbidden
	}
	delete(g.offers, id)
	return nil
}

func (g *InMemory) ListBloodBanks(ctx context.Context) ([]blood.BloodBank, error) {
	if _, err := g.principal(ctx); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]blood.BloodBank, 0, len(g.banks))
	for _, b := range g.banks {
		out = append(out, cloneBank(b))
	}
	return out, nil
}

func cloneBank(b blood.BloodBank) blood.BloodBank {
	b.AvailableBlood = copyStock(b.AvailableBlood)
	return b
}

func copyStock(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// IsForbidden reports whether err came from a permission check.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }
