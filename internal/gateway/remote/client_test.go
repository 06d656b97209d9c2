package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bloodlink.org/internal/auth"
	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/gateway"
	"bloodlink.org/internal/httpapi"
)

func TestMapStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		code int
		body string
		want error
		msg  string
	}{
		{name: "validation field map", code: 400, body: `{"quantity":["Ensure this value is greater than or equal to 1."]}`, want: blood.ErrValidation, msg: "quantity: Ensure this value is greater than or equal to 1."},
		{name: "unauthorized detail", code: 401, body: `{"detail":"Given token not valid for any token type"}`, want: blood.ErrAuthentication, msg: "Given token not valid for any token type"},
		{name: "not found", code: 404, body: `{"detail":"Not found."}`, want: blood.ErrNotFound},
		{name: "forbidden", code: 403, body: `{"detail":"nope"}`, want: blood.ErrNetwork},
		{name: "server error plain text", code: 502, body: "bad gateway", want: blood.ErrNetwork, msg: "bad gateway"},
		{name: "empty body", code: 400, body: "", want: blood.ErrValidation},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := mapStatus(tc.code, []byte(tc.body))
			if !errors.Is(got, tc.want) {
				t.Fatalf("mapStatus() = %v, want %v", got, tc.want)
			}
			if tc.msg != "" && !strings.Contains(got.Error(), tc.msg) {
				t.Fatalf("mapStatus() message = %q, want it to carry %q", got.Error(), tc.msg)
			}
		})
	}
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	if _, err := New("/api/"); err == nil {
		t.Fatal("expected error for relative base url")
	}
	c, err := New("http://localhost:8000/api")
	if err != nil {
		t.Fatal(err)
	}
	if c.base.Path != "/api/" {
		t.Fatalf("base path = %q, want trailing slash", c.base.Path)
	}
}

type sandbox struct {
	gw     *gateway.InMemory
	client *Client
}

func newSandbox(t *testing.T) sandbox {
	t.Helper()
	issuer, err := auth.NewIssuer([]byte("sandbox-secret"))
	if err != nil {
		t.Fatal(err)
	}
	gw := gateway.NewInMemory(issuer, gateway.WithBcryptCost(bcrypt.MinCost))
	srv := httptest.NewServer(httpapi.New(gw, httpapi.WithRateLimit(0, 0)).Handler())
	t.Cleanup(srv.Close)

	client, err := New(srv.URL+"/api/", WithHTTPClient(srv.Client()), WithTimeout(5*time.Second), WithRateLimit(100, 100))
	if err != nil {
		t.Fatal(err)
	}
	return sandbox{gw: gw, client: client}
}

func (s sandbox) login(t *testing.T, username string) context.Context {
	t.Helper()
	pair, err := s.client.ExchangeCredentials(context.Background(), username, "password123")
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return auth.ContextWithToken(context.Background(), pair.Access)
}

func TestClientAgainstSandbox(t *testing.T) {
	s := newSandbox(t)
	ctx := context.Background()

	err := s.client.Register(ctx, blood.Registration{
		Kind: blood.RoleCivilian, Username: "carl", Email: "carl@example.org", Password: "password123",
		FirstName: "Carl", LastName: "Sagan",
	})
	if err != nil {
		t.Fatalf("register civilian: %v", err)
	}
	err = s.client.Register(ctx, blood.Registration{
		Kind: blood.RoleDonor, Username: "dana", Email: "dana@example.org", Password: "password123",
		FirstName: "Dana", LastName: "Scully", BloodGroup: blood.BPos,
	})
	if err != nil {
		t.Fatalf("register donor: %v", err)
	}

	if _, err := s.client.ExchangeCredentials(ctx, "carl", "wrong"); !errors.Is(err, blood.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}

	civCtx := s.login(t, "carl")
	me, err := s.client.Me(civCtx)
	if err != nil {
		t.Fatal(err)
	}
	if me.Role != blood.RoleCivilian {
		t.Fatalf("unexpected role %q", me.Role)
	}

	created, err := s.client.CreateRequest(civCtx, blood.RequestDraft{BloodGroup: blood.BPos, Quantity: 3, Address: "5 Elm"})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == 0 || created.Status != blood.StatusPending {
		t.Fatalf("unexpected request %+v", created)
	}

	donorCtx := s.login(t, "dana")
	pending, err := s.client.ListRequests(donorCtx, gateway.RequestFilter{Status: blood.StatusPending})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending request, got %d", len(pending))
	}

	receipt, err := s.client.CreateOffer(donorCtx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.RequestID != created.ID {
		t.Fatalf("receipt request = %d, want %d", receipt.RequestID, created.ID)
	}
	full, err := s.client.GetRequest(donorCtx, receipt.RequestID)
	if err != nil {
		t.Fatal(err)
	}
	if full.Address != "5 Elm" || full.Status != blood.StatusOffered {
		t.Fatalf("unexpected full request %+v", full)
	}
	if _, err := s.client.GetRequest(donorCtx, 4242); !errors.Is(err, blood.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	offers, err := s.client.ListOffers(donorCtx, gateway.OfferFilter{DonorID: receipt.DonorID})
	if err != nil || len(offers) != 1 {
		t.Fatalf("list offers: %v %v", offers, err)
	}
	if err := s.client.DeleteOffer(donorCtx, receipt.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.client.DeleteOffer(donorCtx, receipt.ID); !errors.Is(err, blood.ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}

	if _, err := s.client.CreateRequest(civCtx, blood.RequestDraft{BloodGroup: "Z+", Quantity: 1, Address: "x"}); !errors.Is(err, blood.ErrValidation) {
		t.Fatalf("expected ErrValidation from server, got %v", err)
	}
	if _, err := s.client.ListRequests(ctx, gateway.RequestFilter{}); !errors.Is(err, blood.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication without token, got %v", err)
	}
}

func TestClientAdminListings(t *testing.T) {
	s := newSandbox(t)
	if _, err := s.gw.AddStaff("root", "password123"); err != nil {
		t.Fatal(err)
	}
	for _, reg := range []blood.Registration{
		{Kind: blood.RoleDonor, Username: "d1", Email: "d1@example.org", Password: "password123", FirstName: "D", LastName: "One", BloodGroup: blood.ANeg},
		{Kind: blood.RoleDonor, Username: "d2", Email: "d2@example.org", Password: "password123", FirstName: "D", LastName: "Two", BloodGroup: blood.OPos},
	} {
		if _, err := s.gw.AddUser(reg); err != nil {
			t.Fatal(err)
		}
	}
	s.gw.AddBloodBank("Central", "Downtown", map[string]int{"A-": 3, "O+": 7})

	ctx := s.login(t, "root")
	if _, err := s.client.Me(ctx); !errors.Is(err, blood.ErrNotFound) {
		t.Fatalf("staff profile lookup should fail, got %v", err)
	}
	donors, err := s.client.ListProfiles(ctx, gateway.ProfileFilter{Role: blood.RoleDonor})
	if err != nil || len(donors) != 2 {
		t.Fatalf("donors: %v %v", donors, err)
	}
	found, err := s.client.ListProfiles(ctx, gateway.ProfileFilter{BloodGroup: blood.OPos})
	if err != nil || len(found) != 1 || found[0].User.Username != "d2" {
		t.Fatalf("search: %v %v", found, err)
	}
	banks, err := s.client.ListBloodBanks(ctx)
	if err != nil || len(banks) != 1 || banks[0].AvailableBlood["O+"] != 7 {
		t.Fatalf("banks: %v %v", banks, err)
	}
}

func TestClientCarriesHeaders(t *testing.T) {
	var gotAuth, gotRID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRID = r.Header.Get("X-Request-ID")
		if r.URL.Path != "/api/requests/7/" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"blood_group":"AB-","quantity":1,"address":"x","status":"Fulfilled"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL + "/api/")
	if err != nil {
		t.Fatal(err)
	}
	ctx := auth.ContextWithToken(context.Background(), "tok")
	req, err := c.GetRequest(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok" || gotRID == "" {
		t.Fatalf("headers not carried: auth=%q rid=%q", gotAuth, gotRID)
	}
	if req.Status != blood.StatusFulfilled || req.BloodGroup != blood.ABNeg {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestClientTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(url + "/api/")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListBloodBanks(context.Background()); !errors.Is(err, blood.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestClientMalformedBodyIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	c, err := New(srv.URL + "/api/")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListOffers(context.Background(), gateway.OfferFilter{}); !errors.Is(err, blood.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}
