package domain

import (
	"strings"
	"time"
)

// Role names the authorization level of an account.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an account known to the authentication service.
type User struct {
	ID                       string
	Email                    string
	PasswordHash             string
	Name                     string
	Role                     Role
	EmailVerified            bool
	VerificationToken        *string
	VerificationTokenExpires *time.Time
	FailedLoginAttempts      int
	LastFailedLoginAttempt   *time.Time
	AccountLockedUntil       *time.Time
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// LockedAt reports whether the account is locked at the given instant.
func (u *User) LockedAt(now time.Time) bool {
	return u.AccountLockedUntil != nil && now.Before(*u.AccountLockedUntil)
}

// Clone returns a deep copy so stored records never share pointers with callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.VerificationToken = clonePtr(u.VerificationToken)
	c.VerificationTokenExpires = clonePtr(u.VerificationTokenExpires)
	c.LastFailedLoginAttempt = clonePtr(u.LastFailedLoginAttempt)
	c.AccountLockedUntil = clonePtr(u.AccountLockedUntil)
	return &c
}

// NormalizeEmail returns the canonical form used for storage and comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
