package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bloodlink.org/internal/blood"
)

func TestComputeInventorySnapshot(t *testing.T) {
	t.Parallel()
	banks := []blood.BloodBank{
		{Name: "North", AvailableBlood: map[string]int{"A+": 5, "O-": 2, "ab-": 1}},
		{Name: "South", AvailableBlood: map[string]int{"A+": 3, "X": 9, "B-": -4}},
		{Name: "Empty"},
	}
	donors := []blood.Profile{{ID: 1}, {ID: 2}}
	requests := []blood.BloodRequest{{ID: 1}, {ID: 2}, {ID: 3}}

	snap := ComputeInventorySnapshot(banks, donors, requests)
	if snap.DonorCount != 2 || snap.RequestCount != 3 {
		t.Fatalf("counts = %d/%d", snap.DonorCount, snap.RequestCount)
	}
	want := map[blood.BloodGroup]int{
		blood.APos: 8, blood.ANeg: 0, blood.BPos: 0, blood.BNeg: 0,
		blood.OPos: 0, blood.ONeg: 2, blood.ABPos: 0, blood.ABNeg: 1,
	}
	if len(snap.AvailabilityByBloodGroup) != len(want) {
		t.Fatalf("groups = %v", snap.AvailabilityByBloodGroup)
	}
	for g, n := range want {
		if got := snap.AvailabilityByBloodGroup[g]; got != n {
			t.Fatalf("%s = %d, want %d", g, got, n)
		}
	}
	if banks[0].AvailableBlood["A+"] != 5 {
		t.Fatal("input mutated")
	}
}

func TestComputeInventorySnapshotEmpty(t *testing.T) {
	t.Parallel()
	snap := ComputeInventorySnapshot(nil, nil, nil)
	if snap.DonorCount != 0 || snap.RequestCount != 0 {
		t.Fatalf("snap = %+v", snap)
	}
	for _, g := range blood.BloodGroups {
		if v, ok := snap.AvailabilityByBloodGroup[g]; !ok || v != 0 {
			t.Fatalf("%s = %d, %v", g, v, ok)
		}
	}
}

func TestLoadAdminView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	civ := f.as(t, "carol")
	f.submit(t, civ, blood.ONeg)
	f.submit(t, civ, blood.APos)
	f.backend.AddBloodBank("Central", "Downtown", map[string]int{"O-": 4, "A+": 1})
	f.backend.AddBloodBank("East", "Harbor", map[string]int{"O-": 3})

	admin := f.as(t, "root")
	view, err := admin.LoadAdminView(ctx)
	if err != nil {
		t.Fatalf("LoadAdminView: %v", err)
	}
	if view.Snapshot.DonorCount != 3 || view.Snapshot.RequestCount != 2 {
		t.Fatalf("snapshot = %+v", view.Snapshot)
	}
	if got := view.Snapshot.AvailabilityByBloodGroup[blood.ONeg]; got != 7 {
		t.Fatalf("O- = %d, want 7", got)
	}
	if len(view.Banks) != 2 || len(view.Donors) != 3 {
		t.Fatalf("view = %+v", view)
	}

	found, err := admin.SearchDonors(ctx, "o-")
	if err != nil {
		t.Fatalf("SearchDonors: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("O- donors = %+v", found)
	}
	f.spy.reset()
	if _, err := admin.SearchDonors(ctx, "C+"); !errors.Is(err, blood.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if n := f.spy.total(); n != 0 {
		t.Fatalf("network calls = %d, want 0", n)
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: address is required", blood.ErrValidation), "Invalid input: address is required"},
		{fmt.Errorf("%w: offer on request 7 already made", blood.ErrInvalidOffer), "Offer not allowed: offer on request 7 already made"},
		{fmt.Errorf("%w: token is invalid or expired", blood.ErrAuthentication), "Your session is not valid. Please log in again."},
		{fmt.Errorf("%w: offer 3", blood.ErrNotFound), "Not found: offer 3"},
		{fmt.Errorf("%w: status 502", blood.ErrNetwork), "Something went wrong talking to the server. Please try again."},
		{errors.New("boom"), "Something went wrong talking to the server. Please try again."},
	}
	for _, tt := range tests {
		if got := Message(tt.err); got != tt.want {
			t.Fatalf("Message(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
