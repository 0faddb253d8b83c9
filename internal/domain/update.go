package domain

import "time"

// Field is a single attribute of a partial update. The zero value leaves
// the attribute untouched.
type Field[T any] struct {
	set   bool
	value T
}

// Set returns a Field that overwrites the attribute with v. For pointer
// types Set(nil) clears the attribute.
func Set[T any](v T) Field[T] {
	return Field[T]{set: true, value: v}
}

// Get returns the value and whether it was supplied.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.set
}

// UserUpdate describes a partial modification of a User. Email, ID and
// CreatedAt are not updatable.
type UserUpdate struct {
	Name                     Field[string]
	Role                     Field[Role]
	PasswordHash             Field[string]
	EmailVerified            Field[bool]
	VerificationToken        Field[*string]
	VerificationTokenExpires Field[*time.Time]
	FailedLoginAttempts      Field[int]
	LastFailedLoginAttempt   Field[*time.Time]
	AccountLockedUntil       Field[*time.Time]
}

// Apply merges the supplied fields into u and stamps UpdatedAt with now.
// Timestamps are stored in UTC.
func (upd UserUpdate) Apply(u *User, now time.Time) {
	if v, ok := upd.Name.Get(); ok {
		u.Name = v
	}
	if v, ok := upd.Role.Get(); ok {
		u.Role = v
	}
	if v, ok := upd.PasswordHash.Get(); ok {
		u.PasswordHash = v
	}
	if v, ok := upd.EmailVerified.Get(); ok {
		u.EmailVerified = v
	}
	if v, ok := upd.VerificationToken.Get(); ok {
		u.VerificationToken = clonePtr(v)
	}
	if v, ok := upd.VerificationTokenExpires.Get(); ok {
		u.VerificationTokenExpires = utcPtr(v)
	}
	if v, ok := upd.FailedLoginAttempts.Get(); ok {
		if v < 0 {
			v = 0
		}
		u.FailedLoginAttempts = v
	}
	if v, ok := upd.LastFailedLoginAttempt.Get(); ok {
		u.LastFailedLoginAttempt = utcPtr(v)
	}
	if v, ok := upd.AccountLockedUntil.Get(); ok {
		u.AccountLockedUntil = utcPtr(v)
	}
	u.UpdatedAt = now.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
