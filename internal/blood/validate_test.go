package blood

import (
	"errors"
	"strings"
	"testing"
)

func TestParseBloodGroup(t *testing.T) {
	t.Parallel()
	for _, g := range BloodGroups {
		got, err := ParseBloodGroup(strings.ToLower(string(g)))
		if err != nil {
			t.Fatalf("ParseBloodGroup(%q): %v", g, err)
		}
		if got != g {
			t.Fatalf("ParseBloodGroup(%q) = %q", g, got)
		}
	}
	for _, bad := range []string{"", "C+", "A", "O", "AB", "0-"} {
		if _, err := ParseBloodGroup(bad); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseBloodGroup(%q) err = %v, want ErrValidation", bad, err)
		}
	}
}

func TestRequestDraftValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		draft   RequestDraft
		wantErr bool
		contain string
	}{
		{name: "valid", draft: RequestDraft{BloodGroup: ONeg, Quantity: 2, Address: "12 Elm St"}},
		{name: "empty address", draft: RequestDraft{BloodGroup: ONeg, Quantity: 1, Address: ""}, wantErr: true, contain: "address is required"},
		{name: "whitespace address", draft: RequestDraft{BloodGroup: ONeg, Quantity: 1, Address: " \t\n"}, wantErr: true, contain: "address is required"},
		{name: "zero quantity", draft: RequestDraft{BloodGroup: APos, Quantity: 0, Address: "x"}, wantErr: true, contain: "quantity must be at least 1"},
		{name: "negative quantity", draft: RequestDraft{BloodGroup: APos, Quantity: -3, Address: "x"}, wantErr: true, contain: "quantity"},
		{name: "bad group", draft: RequestDraft{BloodGroup: "Z+", Quantity: 1, Address: "x"}, wantErr: true, contain: "blood_group"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.draft.Validate()
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tc.contain) {
				t.Fatalf("err %q does not mention %q", err, tc.contain)
			}
		})
	}
}

func TestRegistrationValidate(t *testing.T) {
	t.Parallel()
	base := Registration{
		Kind:      RoleDonor,
		Username:  "dana",
		Email:     "dana@example.org",
		Password:  "correct-horse",
		FirstName: "Dana",
		LastName:  "Reyes",
	}

	if err := base.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("donor without blood group: err = %v", err)
	}
	donor := base
	donor.BloodGroup = ABNeg
	if err := donor.Validate(); err != nil {
		t.Fatalf("valid donor: %v", err)
	}
	civ := base
	civ.Kind = RoleCivilian
	if err := civ.Validate(); err != nil {
		t.Fatalf("valid civilian: %v", err)
	}
	admin := donor
	admin.Kind = RoleAdmin
	if err := admin.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("admin registration should be rejected, got %v", err)
	}
	badMail := donor
	badMail.Email = "not-an-email"
	if err := badMail.Validate(); err == nil || !strings.Contains(err.Error(), "email") {
		t.Fatalf("expected email error, got %v", err)
	}
}
