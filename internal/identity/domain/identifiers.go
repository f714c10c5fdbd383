package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"

	"identity-session-engine/internal/autherr"
)

const (
	maxFullNameLen = 100
	minPasswordLen = 8
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordBytes = 72
)

var validate = validator.New()

// NormalizeEmail trims and lowercases email and checks its shape.
func NormalizeEmail(email string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return "", autherr.Invalid("email", "is required")
	}
	if validate.Var(e, "max=255") != nil {
		return "", autherr.Invalid("email", "must be at most 255 characters")
	}
	if validate.Var(e, "email") != nil {
		return "", autherr.Invalid("email", "invalid format")
	}
	return e, nil
}

// NormalizePhone parses phone with region as the default country and returns it in E.164.
func NormalizePhone(phone, region string) (string, error) {
	p := strings.TrimSpace(phone)
	if p == "" {
		return "", autherr.Invalid("phone_number", "is required")
	}
	num, err := phonenumbers.Parse(p, strings.ToUpper(region))
	if err != nil {
		return "", autherr.Invalid("phone_number", "cannot be parsed")
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", autherr.Invalid("phone_number", "is not a valid number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// NormalizeNationalID accepts exactly eight digits.
func NormalizeNationalID(id string) (string, error) {
	d := strings.TrimSpace(id)
	if validate.Var(d, "len=8,number") != nil {
		return "", autherr.Invalid("national_id", "must be exactly 8 digits")
	}
	return d, nil
}

// NormalizeFullName trims name, collapses inner whitespace and allows letters and spaces only.
func NormalizeFullName(name string) (string, error) {
	n := strings.Join(strings.Fields(name), " ")
	if n == "" {
		return "", autherr.Invalid("full_name", "is required")
	}
	if utf8.RuneCountInString(n) > maxFullNameLen {
		return "", autherr.Invalid("full_name", "must be at most 100 characters")
	}
	for _, r := range n {
		if !unicode.IsLetter(r) && r != ' ' {
			return "", autherr.Invalid("full_name", "may only contain letters and spaces")
		}
	}
	return n, nil
}

// ValidatePassword enforces the registration password policy: at least 8 characters with
// an uppercase letter, a lowercase letter, a digit and a symbol.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return autherr.Invalid("password", "must be at least 8 characters")
	}
	if len(password) > maxPasswordBytes {
		return autherr.Invalid("password", "must be at most 72 bytes")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		return autherr.Invalid("password", "must contain at least one uppercase letter")
	}
	if !hasLower {
		return autherr.Invalid("password", "must contain at least one lowercase letter")
	}
	if !hasNumber {
		return autherr.Invalid("password", "must contain at least one number")
	}
	if !hasSymbol {
		return autherr.Invalid("password", "must contain at least one special character")
	}
	return nil
}

// IdentifierKind says which unique field a login identifier refers to.
type IdentifierKind int

const (
	IdentifierEmail IdentifierKind = iota + 1
	IdentifierPhone
)

func (k IdentifierKind) String() string {
	switch k {
	case IdentifierEmail:
		return "email"
	case IdentifierPhone:
		return "phone_number"
	}
	return "unknown"
}

// LoginIdentifier is a normalized login handle.
type LoginIdentifier struct {
	Kind  IdentifierKind
	Value string
}

// ParseLoginIdentifier decides whether raw is an email or a phone number and normalizes it.
// An identifier containing "@" is an email; anything else is a phone number. This is the only
// place that rule lives.
func ParseLoginIdentifier(raw, region string) (LoginIdentifier, error) {
	if strings.Contains(raw, "@") {
		e, err := NormalizeEmail(raw)
		if err != nil {
			return LoginIdentifier{}, err
		}
		return LoginIdentifier{Kind: IdentifierEmail, Value: e}, nil
	}
	p, err := NormalizePhone(raw, region)
	if err != nil {
		return LoginIdentifier{}, err
	}
	return LoginIdentifier{Kind: IdentifierPhone, Value: p}, nil
}

// MaskEmail hides most of the local part: "alice@example.com" becomes "al***@example.com".
// Local parts of one or two characters keep only the first character.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return email
	}
	runes := []rune(local)
	visible := 1
	if len(runes) > 2 {
		visible = 2
	}
	return string(runes[:visible]) + "***@" + domain
}

// MaskPhone keeps the country prefix marker and the last four digits: "+51987654321" becomes
// "+*******4321". Numbers of four digits or fewer are returned unchanged.
func MaskPhone(phone string) string {
	runes := []rune(phone)
	if len(runes) <= 4 {
		return phone
	}
	start := 0
	if runes[0] == '+' {
		start = 1
	}
	for i := start; i < len(runes)-4; i++ {
		runes[i] = '*'
	}
	return string(runes)
}
