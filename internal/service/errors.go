package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation groups malformed input; the concrete error is a *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateEmail is returned when signing up with an address that is already registered.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountLocked is matched by every *LockedError.
	ErrAccountLocked = errors.New("account is temporarily locked")
	// ErrInvalidToken is returned when a verification token is missing or unknown.
	ErrInvalidToken = errors.New("invalid or expired verification token")
	// ErrTokenExpired is returned when a verification token is past its expiry.
	ErrTokenExpired = errors.New("verification token has expired")
)

// ValidationError describes the first rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// LockedError reports a refused login on a locked account.
type LockedError struct {
	Until time.Time
	// JustLocked is set when this attempt triggered the lockout.
	JustLocked bool
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountLocked, e.Until.Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
