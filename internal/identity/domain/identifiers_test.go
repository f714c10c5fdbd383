package domain

import (
	"errors"
	"strings"
	"testing"

	"identity-session-engine/internal/autherr"
)

func TestNormalizeEmail(t *testing.T) {
	testCases := []struct {
		in, want string
		wantErr  bool
	}{
		{"  Alice@Example.COM ", "alice@example.com", false},
		{"bob@mail.example.pe", "bob@mail.example.pe", false},
		{"", "", true},
		{"no-at-sign", "", true},
		{"two@@example.com", "", true},
		{"space in@example.com", "", true},
		{"nodot@example", "", true},
		{"@example.com", "", true},
		{strings.Repeat("a", 250) + "@x.com", "", true},
	}
	for _, tc := range testCases {
		got, err := NormalizeEmail(tc.in)
		if tc.wantErr {
			if !errors.Is(err, autherr.ErrMalformedInput) {
				t.Errorf("NormalizeEmail(%q): want ErrMalformedInput, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("NormalizeEmail(%q) = (%q, %v), want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	testCases := []struct {
		in, region, want string
		wantErr          bool
	}{
		{"987654321", "PE", "+51987654321", false},
		{"+51 987 654 321", "PE", "+51987654321", false},
		{"+1 650-253-0000", "PE", "+16502530000", false},
		{"(650) 253-0000", "us", "+16502530000", false},
		{"", "PE", "", true},
		{"abc", "PE", "", true},
		{"123", "PE", "", true},
	}
	for _, tc := range testCases {
		got, err := NormalizePhone(tc.in, tc.region)
		if tc.wantErr {
			if !errors.Is(err, autherr.ErrMalformedInput) {
				t.Errorf("NormalizePhone(%q): want ErrMalformedInput, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("NormalizePhone(%q, %q) = (%q, %v), want %q", tc.in, tc.region, got, err, tc.want)
		}
	}
}

func TestNormalizeNationalID(t *testing.T) {
	if got, err := NormalizeNationalID(" 12345678 "); err != nil || got != "12345678" {
		t.Errorf("NormalizeNationalID = (%q, %v)", got, err)
	}
	for _, bad := range []string{"", "1234567", "123456789", "1234567a", "+1234567", "1234.567", "١٢٣٤٥٦٧٨"} {
		if _, err := NormalizeNationalID(bad); !errors.Is(err, autherr.ErrMalformedInput) {
			t.Errorf("NormalizeNationalID(%q): want ErrMalformedInput, got %v", bad, err)
		}
	}
}

func TestNormalizeFullName(t *testing.T) {
	if got, err := NormalizeFullName("  José   Núñez  "); err != nil || got != "José Núñez" {
		t.Errorf("NormalizeFullName = (%q, %v)", got, err)
	}
	for _, bad := range []string{"", "   ", "R2D2", "Ann-Marie", strings.Repeat("a", 101)} {
		if _, err := NormalizeFullName(bad); !errors.Is(err, autherr.ErrMalformedInput) {
			t.Errorf("NormalizeFullName(%q): want ErrMalformedInput, got %v", bad, err)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	testCases := []struct {
		name, in string
		ok       bool
	}{
		{"valid", "Secret123!", true},
		{"underscore counts as symbol", "Secret123_", true},
		{"too short", "Se1!", false},
		{"no upper", "secret123!", false},
		{"no lower", "SECRET123!", false},
		{"no digit", "Secret!!!!", false},
		{"no symbol", "Secret1234", false},
		{"too long", "Aa1!" + strings.Repeat("x", 70), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePassword(tc.in)
			if tc.ok && err != nil {
				t.Errorf("ValidatePassword: %v", err)
			}
			if !tc.ok {
				var ve *autherr.ValidationError
				if !errors.As(err, &ve) || ve.Field != "password" {
					t.Errorf("want password ValidationError, got %v", err)
				}
			}
		})
	}
}

func TestParseLoginIdentifier(t *testing.T) {
	id, err := ParseLoginIdentifier(" Alice@Example.com", "PE")
	if err != nil {
		t.Fatalf("ParseLoginIdentifier email: %v", err)
	}
	if id.Kind != IdentifierEmail || id.Value != "alice@example.com" {
		t.Errorf("email identifier = %+v", id)
	}

	id, err = ParseLoginIdentifier("987654321", "PE")
	if err != nil {
		t.Fatalf("ParseLoginIdentifier phone: %v", err)
	}
	if id.Kind != IdentifierPhone || id.Value != "+51987654321" {
		t.Errorf("phone identifier = %+v", id)
	}

	// Anything with "@" is treated as an email, even if it is not a valid one.
	if _, err := ParseLoginIdentifier("987@654", "PE"); !errors.Is(err, autherr.ErrMalformedInput) {
		t.Errorf("invalid email with @: want ErrMalformedInput, got %v", err)
	}
	if _, err := ParseLoginIdentifier("not-a-phone", "PE"); !errors.Is(err, autherr.ErrMalformedInput) {
		t.Errorf("invalid phone: want ErrMalformedInput, got %v", err)
	}
	if IdentifierEmail.String() != "email" || IdentifierPhone.String() != "phone_number" {
		t.Error("unexpected IdentifierKind strings")
	}
}

func TestMaskEmail(t *testing.T) {
	testCases := map[string]string{
		"alice@example.com": "al***@example.com",
		"ab@example.com":    "a***@example.com",
		"a@example.com":     "a***@example.com",
		"not-an-email":      "not-an-email",
		"@example.com":      "@example.com",
	}
	for in, want := range testCases {
		if got := MaskEmail(in); got != want {
			t.Errorf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	testCases := map[string]string{
		"+51987654321": "+*******4321",
		"987654321":    "*****4321",
		"+1234":        "+1234",
		"1234":         "1234",
	}
	for in, want := range testCases {
		if got := MaskPhone(in); got != want {
			t.Errorf("MaskPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatus(t *testing.T) {
	for _, s := range []Status{StatusSuspended, StatusBanned} {
		if !s.Blocked() {
			t.Errorf("%s should be blocked", s)
		}
	}
	for _, s := range []Status{StatusNew, StatusActive} {
		if s.Blocked() {
			t.Errorf("%s should not be blocked", s)
		}
	}
	if Status("deleted").Valid() || !StatusActive.Valid() {
		t.Error("Valid mismatch")
	}
	i := &Identity{ID: "id-1", Email: "a@b.co", PasswordHash: "secret-hash", Status: StatusNew}
	if s := i.Summary(); s.ID != "id-1" || s.Status != StatusNew || s.Email != "a@b.co" {
		t.Errorf("Summary = %+v", s)
	}
}
