package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Username validation constraints.
const (
	MinNameLength = 2
	MaxNameLength = 15

	MinPasswordLength = 8  // exclusive
	MaxPasswordLength = 32 // inclusive
	MinUniqueChars    = 3  // exclusive
)

var (
	// nameRegex mirrors the osu! username rules: letters, digits, a small set
	// of punctuation, with spaces or underscores as separators.
	nameRegex  = regexp.MustCompile(`^[\w \[\]-]{2,15}$`)
	emailRegex = regexp.MustCompile(`^[^@\s]{1,200}@[^@\s.]{1,30}\.[^@.\s]{1,24}$`)
)

// Policy holds the configured disallow lists consulted during validation.
// Entries in DisallowedPasswords are matched case-folded.
type Policy struct {
	DisallowedNames     []string
	DisallowedPasswords []string
}

// SafeName returns the normalized form of a display name used for uniqueness
// and lookup: lowercased, with whitespace runs folded to a single underscore.
// Idempotent: SafeName(SafeName(x)) == SafeName(x).
func SafeName(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.FieldsFunc(lowered, func(r rune) bool {
		return r == ' ' || r == '\t'
	}), "_")
}

// ValidateName checks a display name against format and policy rules. It is
// pure: the availability check against durable state is a separate store call
// made by the caller.
func (p Policy) ValidateName(name string) error {
	if len(name) < MinNameLength || len(name) > MaxNameLength {
		return &ValidationError{Field: "name", Reason: ReasonNameLength}
	}
	if !nameRegex.MatchString(name) {
		return &ValidationError{Field: "name", Reason: ReasonNameSyntax}
	}
	// One separator style is fine, mixing both is not.
	if strings.Contains(name, " ") && strings.Contains(name, "_") {
		return &ValidationError{Field: "name", Reason: ReasonNameSeparators}
	}
	safe := SafeName(name)
	for _, banned := range p.DisallowedNames {
		if safe == SafeName(banned) {
			return &ValidationError{Field: "name", Reason: ReasonNameDisallowed}
		}
	}
	return nil
}

// ValidateEmail checks email syntax only; uniqueness is a caller-side store
// round-trip.
func (p Policy) ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return &ValidationError{Field: "email", Reason: ReasonEmailSyntax}
	}
	return nil
}

// ValidatePassword checks the password policy: strictly more than 8 and at
// most 32 characters, strictly more than 3 distinct characters, and not in
// the configured disallow list (case-folded).
func (p Policy) ValidatePassword(plaintext string) error {
	// Bounds count characters, not bytes.
	if n := utf8.RuneCountInString(plaintext); n <= MinPasswordLength || n > MaxPasswordLength {
		return &ValidationError{Field: "password", Reason: ReasonPasswordLength}
	}
	unique := make(map[rune]struct{}, len(plaintext))
	for _, r := range plaintext {
		unique[r] = struct{}{}
	}
	if len(unique) <= MinUniqueChars {
		return &ValidationError{Field: "password", Reason: ReasonPasswordSimple}
	}
	folded := strings.ToLower(plaintext)
	for _, banned := range p.DisallowedPasswords {
		if folded == strings.ToLower(banned) {
			return &ValidationError{Field: "password", Reason: ReasonPasswordCommon}
		}
	}
	return nil
}

// ValidateNewPassword applies the password policy and additionally rejects
// reuse of the old plaintext (change-flow only).
func (p Policy) ValidateNewPassword(newPlaintext, oldPlaintext string) error {
	if newPlaintext == oldPlaintext {
		return &ValidationError{Field: "password", Reason: ReasonPasswordReused}
	}
	return p.ValidatePassword(newPlaintext)
}
