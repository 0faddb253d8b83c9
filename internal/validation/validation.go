// Package validation holds the input shape checks shared by the signup and
// login flows. Every check is a pure predicate.
package validation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinPasswordLength = 8
	MinNameLength     = 2
	MaxNameLength     = 50
	maxLocalPart      = 64
)

var (
	basicEmailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	strictEmailPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._+-]*[a-zA-Z0-9])?@[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?\.[a-zA-Z]{2,}$`)
	asciiLetterPattern = regexp.MustCompile(`[a-zA-Z]`)
	tldPattern         = regexp.MustCompile(`^[a-zA-Z]+$`)
	namePattern        = regexp.MustCompile(`^\p{L}[\p{L}\s'-]+$`)
)

// Email reports whether email has the local@domain.tld shape accepted at signup.
func Email(email string) bool {
	if email == "" || !basicEmailPattern.MatchString(email) {
		return false
	}

	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return false
	}
	if !asciiLetterPattern.MatchString(local) || len(local) > maxLocalPart {
		return false
	}

	dot := strings.LastIndex(domain, ".")
	if dot < 0 {
		return false
	}
	tld := domain[dot+1:]
	if len(tld) < 2 || !tldPattern.MatchString(tld) {
		return false
	}
	if domain[:dot] == "" {
		return false
	}

	return strictEmailPattern.MatchString(email)
}

// Password reports whether password is long enough. Any characters are allowed.
func Password(password string) bool {
	return utf8.RuneCountInString(password) >= MinPasswordLength
}

// Name reports whether name is an acceptable first or last name: letters,
// spaces, hyphens and apostrophes, starting with a letter.
func Name(name string) bool {
	trimmed := strings.TrimSpace(name)
	n := utf8.RuneCountInString(trimmed)
	if n < MinNameLength || n > MaxNameLength {
		return false
	}
	if !namePattern.MatchString(trimmed) {
		return false
	}
	return strings.IndexFunc(trimmed, unicode.IsLetter) >= 0
}

// PasswordsMatch reports whether a password and its confirmation are identical.
func PasswordsMatch(password, confirm string) bool {
	return password == confirm
}
