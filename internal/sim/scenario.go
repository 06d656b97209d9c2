// Package sim holds the demo population used to seed the sandbox and the
// request generator driving load runs against it.
package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/gateway"
)

type Account struct {
	Username   string
	Kind       blood.Role
	BloodGroup blood.BloodGroup
	FirstName  string
	LastName   string
}

type Bank struct {
	Name     string
	Location string
	Stock    map[string]int
}

type Scenario struct {
	Name      string
	Password  string
	Staff     []string
	Accounts  []Account
	Banks     []Bank
	Addresses []string
}

func CityHospitalScenario() Scenario {
	return Scenario{
		Name:     "CityHospital",
		Password: "donate-blood",
		Staff:    []string{"admin"},
		Accounts: []Account{
			{Username: "carol", Kind: blood.RoleCivilian, FirstName: "Carol", LastName: "Danvers"},
			{Username: "chen", Kind: blood.RoleCivilian, FirstName: "Chen", LastName: "Wei"},
			{Username: "olga", Kind: blood.RoleDonor, BloodGroup: blood.ONeg, FirstName: "Olga", LastName: "Petrova"},
			{Username: "oscar", Kind: blood.RoleDonor, BloodGroup: blood.ONeg, FirstName: "Oscar", LastName: "Diaz"},
			{Username: "adam", Kind: blood.RoleDonor, BloodGroup: blood.APos, FirstName: "Adam", LastName: "Smith"},
			{Username: "bianca", Kind: blood.RoleDonor, BloodGroup: blood.BPos, FirstName: "Bianca", LastName: "Rossi"},
			{Username: "abe", Kind: blood.RoleDonor, BloodGroup: blood.ABNeg, FirstName: "Abe", LastName: "Lincoln"},
		},
		Banks: []Bank{
			{Name: "Central Blood Bank", Location: "Downtown", Stock: map[string]int{"A+": 12, "O-": 4, "B+": 7, "AB-": 1}},
			{Name: "Harbor Clinic", Location: "Harbor District", Stock: map[string]int{"O-": 3, "O+": 9, "A-": 2}},
		},
		Addresses: []string{
			"12 Elm St",
			"City Hospital, Ward 4",
			"St. Mary's Emergency, Bay 2",
			"Harbor Clinic, Level 1",
		},
	}
}

// Seed creates the scenario's accounts and banks in g.
func (s Scenario) Seed(g *gateway.InMemory) error {
	for _, name := range s.Staff {
		if _, err := g.AddStaff(name, s.Password); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
	}
	for _, a := range s.Accounts {
		if _, err := g.AddUser(a.Registration(s.Password)); err != nil {
			return fmt.Errorf("seed %s: %w", a.Username, err)
		}
	}
	for _, b := range s.Banks {
		g.AddBloodBank(b.Name, b.Location, b.Stock)
	}
	return nil
}

// Registration is the sign-up form for a.
func (a Account) Registration(password string) blood.Registration {
	return blood.Registration{
		Kind:       a.Kind,
		Username:   a.Username,
		Email:      a.Username + "@example.org",
		Password:   password,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		BloodGroup: a.BloodGroup,
	}
}

// Generator draws random request drafts from a scenario. It is safe for
// concurrent use.
type Generator struct {
	scenario Scenario

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator(s Scenario, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{scenario: s, rnd: rand.New(rand.NewSource(seed))}
}

// NextDraft picks a group some donor in the scenario can serve, most of the
// time, so load runs produce offers as well as requests.
func (g *Generator) NextDraft() blood.RequestDraft {
	g.mu.Lock()
	defer g.mu.Unlock()

	group := blood.BloodGroups[g.rnd.Intn(len(blood.BloodGroups))]
	if donors := g.donorsLocked(); len(donors) > 0 && g.rnd.Intn(4) > 0 {
		group = donors[g.rnd.Intn(len(donors))].BloodGroup
	}
	addr := "Unknown"
	if len(g.scenario.Addresses) > 0 {
		addr = g.scenario.Addresses[g.rnd.Intn(len(g.scenario.Addresses))]
	}
	return blood.RequestDraft{BloodGroup: group, Quantity: g.rnd.Intn(3) + 1, Address: addr}
}

// Pick returns a random account of the given kind.
func (g *Generator) Pick(kind blood.Role) (Account, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var pool []Account
	for _, a := range g.scenario.Accounts {
		if a.Kind == kind {
			pool = append(pool, a)
		}
	}
	if len(pool) == 0 {
		return Account{}, false
	}
	return pool[g.rnd.Intn(len(pool))], true
}

func (g *Generator) donorsLocked() []Account {
	var out []Account
	for _, a := range g.scenario.Accounts {
		if a.Kind == blood.RoleDonor {
			out = append(out, a)
		}
	}
	return out
}

func (g *Generator) Accounts() []Account {
	return append([]Account(nil), g.scenario.Accounts...)
}

func (g *Generator) Scenario() Scenario { return g.scenario }
