package coordinator

import (
	"context"

	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/gateway"
	"bloodlink.org/internal/obs"
)

// AdminView is the admin dashboard's data: the raw collections plus the
// snapshot computed from them.
type AdminView struct {
	Snapshot blood.InventorySnapshot
	Donors   []blood.Profile
	Requests []blood.BloodRequest
	Banks    []blood.BloodBank
}

// LoadAdminView fetches donors, blood banks and requests and aggregates them.
func (c *Coordinator) LoadAdminView(ctx context.Context) (AdminView, error) {
	view, err := c.loadAdminView(ctx)
	obs.ViewReloaded(string(blood.RoleAdmin), err == nil)
	return view, err
}

func (c *Coordinator) loadAdminView(ctx context.Context) (AdminView, error) {
	ctx, err := c.authorize(ctx)
	if err != nil {
		return AdminView{}, err
	}
	donors, err := c.gw.ListProfiles(ctx, gateway.ProfileFilter{Role: blood.RoleDonor})
	if err != nil {
		return AdminView{}, err
	}
	banks, err := c.gw.ListBloodBanks(ctx)
	if err != nil {
		return AdminView{}, err
	}
	requests, err := c.gw.ListRequests(ctx, gateway.RequestFilter{})
	if err != nil {
		return AdminView{}, err
	}
	return AdminView{
		Snapshot: ComputeInventorySnapshot(banks, donors, requests),
		Donors:   donors,
		Requests: requests,
		Banks:    banks,
	}, nil
}

// SearchDonors lists donor profiles with the given blood group.
func (c *Coordinator) SearchDonors(ctx context.Context, group string) ([]blood.Profile, error) {
	g, err := blood.ParseBloodGroup(group)
	if err != nil {
		return nil, err
	}
	ctx, err = c.authorize(ctx)
	if err != nil {
		return nil, err
	}
	return c.gw.ListProfiles(ctx, gateway.ProfileFilter{Role: blood.RoleDonor, BloodGroup: g})
}

// ComputeInventorySnapshot sums bank stock per blood group and counts donors
// and requests. Every group is present in the result. Stock keys outside the
// eight groups and negative quantities are ignored.
func ComputeInventorySnapshot(banks []blood.BloodBank, donors []blood.Profile, requests []blood.BloodRequest) blood.InventorySnapshot {
	avail := make(map[blood.BloodGroup]int, len(blood.BloodGroups))
	for _, g := range blood.BloodGroups {
		avail[g] = 0
	}
	for _, b := range banks {
		for key, qty := range b.AvailableBlood {
			g, err := blood.ParseBloodGroup(key)
			if err != nil || qty < 0 {
				continue
			}
			avail[g] += qty
		}
	}
	return blood.InventorySnapshot{
		DonorCount:               len(donors),
		RequestCount:             len(requests),
		AvailabilityByBloodGroup: avail,
	}
}
