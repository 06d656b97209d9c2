package sim

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"bloodlink.org/internal/auth"
	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/gateway"
)

func TestNextDraftIsValid(t *testing.T) {
	t.Parallel()
	g := NewGenerator(CityHospitalScenario(), 42)
	for i := 0; i < 200; i++ {
		d := g.NextDraft()
		if err := d.Validate(); err != nil {
			t.Fatalf("draft %d invalid: %+v: %v", i, d, err)
		}
	}
}

func TestGeneratorIsDeterministic(t *testing.T) {
	t.Parallel()
	a := NewGenerator(CityHospitalScenario(), 7)
	b := NewGenerator(CityHospitalScenario(), 7)
	for i := 0; i < 20; i++ {
		if da, db := a.NextDraft(), b.NextDraft(); da != db {
			t.Fatalf("draft %d differs: %+v vs %+v", i, da, db)
		}
	}
}

func TestPick(t *testing.T) {
	t.Parallel()
	g := NewGenerator(CityHospitalScenario(), 1)
	for _, kind := range []blood.Role{blood.RoleDonor, blood.RoleCivilian} {
		a, ok := g.Pick(kind)
		if !ok || a.Kind != kind {
			t.Fatalf("Pick(%s) = %+v, %v", kind, a, ok)
		}
	}
	if _, ok := g.Pick(blood.RoleAdmin); ok {
		t.Fatal("no account has the Admin role")
	}
}

func TestSeed(t *testing.T) {
	t.Parallel()
	issuer, err := auth.NewIssuer([]byte("sim-secret"))
	if err != nil {
		t.Fatal(err)
	}
	gw := gateway.NewInMemory(issuer, gateway.WithBcryptCost(bcrypt.MinCost))
	s := CityHospitalScenario()
	if err := s.Seed(gw); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	ctx := context.Background()
	pair, err := gw.ExchangeCredentials(ctx, "admin", s.Password)
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	ctx = auth.ContextWithToken(ctx, pair.Access)
	donors, err := gw.ListProfiles(ctx, gateway.ProfileFilter{Role: blood.RoleDonor})
	if err != nil {
		t.Fatal(err)
	}
	if len(donors) != 5 {
		t.Fatalf("donors = %d, want 5", len(donors))
	}
	banks, err := gw.ListBloodBanks(ctx)
	if err != nil || len(banks) != 2 {
		t.Fatalf("banks = %v, %v", banks, err)
	}
	if err := s.Seed(gw); err == nil {
		t.Fatal("seeding twice should fail on duplicate usernames")
	}
}

func TestCounterObserve(t *testing.T) {
	t.Parallel()
	var c Counter
	c.Observe(nil)
	c.Observe(fmt.Errorf("%w: dup", blood.ErrInvalidOffer))
	c.Observe(fmt.Errorf("%w: blank", blood.ErrValidation))
	c.Observe(fmt.Errorf("%w: expired", blood.ErrAuthentication))
	c.Observe(fmt.Errorf("%w: 502", blood.ErrNetwork))
	c.Observe(errors.New("other"))
	if c.Refused.Load() != 2 || c.AuthFailed.Load() != 1 || c.Failed.Load() != 2 {
		t.Fatalf("counter = %s", c.String())
	}
}
