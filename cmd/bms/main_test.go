package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"bloodlink.org/internal/auth"
	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/gateway"
	"bloodlink.org/internal/httpapi"
)

const testPassword = "password123"

func startSandbox(t *testing.T) {
	t.Helper()
	issuer, err := auth.NewIssuer([]byte("cli-secret"))
	if err != nil {
		t.Fatal(err)
	}
	gw := gateway.NewInMemory(issuer, gateway.WithBcryptCost(bcrypt.MinCost))
	for _, r := range []blood.Registration{
		{Kind: blood.RoleCivilian, Username: "carol"},
		{Kind: blood.RoleDonor, Username: "olga", BloodGroup: blood.ONeg},
	} {
		r.Email, r.Password, r.FirstName, r.LastName = r.Username+"@example.org", testPassword, r.Username, "Test"
		if _, err := gw.AddUser(r); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := gw.AddStaff("admin", testPassword); err != nil {
		t.Fatal(err)
	}
	gw.AddBloodBank("Central", "Downtown", map[string]int{"O-": 4})

	srv := httptest.NewServer(httpapi.New(gw, httpapi.WithRateLimit(0, 0)).Handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("BMS_GATEWAY_BASE_URL", srv.URL+"/api/")
	t.Setenv("BMS_STORAGE_DRIVER", "file")
	t.Setenv("BMS_STORAGE_PATH", filepath.Join(dir, "session.json"))
	t.Setenv("BMS_LOG_LEVEL", "error")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, closeApp := newRootCmd()
	defer closeApp()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("bms %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestCivilianDonorAdminFlow(t *testing.T) {
	startSandbox(t)

	mustRun(t, "login", "carol", "--password", testPassword)
	out := mustRun(t, "civilian", "request", "--group", "o-", "--quantity", "2", "--address", "12 Elm St")
	if !strings.Contains(out, "Request 1 submitted") || !strings.Contains(out, "Pending") {
		t.Fatalf("request output = %q", out)
	}
	if _, err := runCLI(t, "civilian", "request", "--group", "O-", "--address", "  "); !errors.Is(err, blood.ErrValidation) {
		t.Fatalf("blank address err = %v", err)
	}
	if out := mustRun(t, "civilian", "show"); !strings.Contains(out, "12 Elm St") {
		t.Fatalf("civilian show = %q", out)
	}
	if _, err := runCLI(t, "donor", "show"); !errors.Is(err, blood.ErrValidation) {
		t.Fatalf("donor show as civilian err = %v", err)
	}

	mustRun(t, "login", "olga", "--password", testPassword)
	out = mustRun(t, "donor", "show")
	if !strings.Contains(out, "12 Elm St") || !strings.Contains(out, "offer\n") {
		t.Fatalf("donor show = %q", out)
	}
	if out := mustRun(t, "donor", "offer", "1"); !strings.Contains(out, "Offer 1 made on request 1") {
		t.Fatalf("offer output = %q", out)
	}
	if _, err := runCLI(t, "donor", "offer", "1"); !errors.Is(err, blood.ErrInvalidOffer) {
		t.Fatalf("repeat offer err = %v, want ErrInvalidOffer", err)
	}
	if out := mustRun(t, "donor", "withdraw", "1"); !strings.Contains(out, "Offer 1 withdrawn") {
		t.Fatalf("withdraw output = %q", out)
	}
	if _, err := runCLI(t, "donor", "withdraw", "1"); !errors.Is(err, blood.ErrNotFound) {
		t.Fatalf("second withdraw err = %v", err)
	}

	mustRun(t, "login", "admin", "--password", testPassword)
	if out := mustRun(t, "whoami"); !strings.Contains(out, "admin") || !strings.Contains(out, "Admin") {
		t.Fatalf("whoami = %q", out)
	}
	out = mustRun(t, "admin", "inventory")
	if !strings.Contains(out, "Donors: 1") || !strings.Contains(out, "Requests: 1") {
		t.Fatalf("inventory = %q", out)
	}

	mustRun(t, "logout")
	if _, err := runCLI(t, "whoami"); !errors.Is(err, blood.ErrAuthentication) {
		t.Fatalf("whoami after logout err = %v", err)
	}
}

func TestLoginBadPassword(t *testing.T) {
	startSandbox(t)
	if _, err := runCLI(t, "login", "olga", "--password", "wrong-password"); !errors.Is(err, blood.ErrAuthentication) {
		t.Fatalf("err = %v, want ErrAuthentication", err)
	}
}

func TestAppClosedWhenCommandFails(t *testing.T) {
	startSandbox(t)
	closed := 0
	prev := openApp
	t.Cleanup(func() { openApp = prev })
	openApp = func(ctx context.Context, configPath string, out io.Writer) (*app, error) {
		a, err := prev(ctx, configPath, out)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { closed++; return nil })
		return a, nil
	}

	if _, err := runCLI(t, "donor", "show"); !errors.Is(err, blood.ErrAuthentication) {
		t.Fatalf("donor show without session err = %v", err)
	}
	if closed != 1 {
		t.Fatalf("app closed %d times after failing command, want 1", closed)
	}
	mustRun(t, "logout")
	if closed != 2 {
		t.Fatalf("app closed %d times after logout, want 2", closed)
	}
}

func TestReadPassword(t *testing.T) {
	t.Setenv("BMS_PASSWORD", "")
	var prompt bytes.Buffer
	got, err := readPassword("", strings.NewReader("s3cret\n"), &prompt)
	if err != nil || got != "s3cret" {
		t.Fatalf("readPassword = %q, %v", got, err)
	}
	if got, _ := readPassword("flag", strings.NewReader(""), &prompt); got != "flag" {
		t.Fatalf("flag should win, got %q", got)
	}
	t.Setenv("BMS_PASSWORD", "env")
	if got, _ := readPassword("", strings.NewReader("stdin\n"), &prompt); got != "env" {
		t.Fatalf("env should win over stdin, got %q", got)
	}
}

func TestParseID(t *testing.T) {
	for _, s := range []string{"0", "-3", "abc", ""} {
		if _, err := parseID(s); !errors.Is(err, blood.ErrValidation) {
			t.Fatalf("parseID(%q) err = %v", s, err)
		}
	}
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Fatalf("parseID(42) = %d, %v", id, err)
	}
}
