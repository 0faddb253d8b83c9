package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"aruba-auth/internal/domain"
	"aruba-auth/internal/repository"
)

const (
	MaxLoginAttempts = 5
	LockoutDuration  = 15 * time.Minute
)

// Login checks credentials and maintains the failed-attempt counter and lockout.
//
// Exactly one hash comparison runs per call, against a dummy hash when the
// email is unknown, so response time does not reveal whether an account
// exists. A locked account is refused even with the correct password.
func (s *userService) Login(ctx context.Context, email, password string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)

	unlock := s.logins.Lock(email)
	defer unlock()

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if err != nil {
		user = nil
	}

	hash := s.dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	match, err := s.hasher.Compare(hash, password)
	if err != nil {
		s.logger.WithError(err).WithField("email", email).Warn("password comparison failed")
		match = false
	}

	now := s.now().UTC()
	if user != nil && user.LockedAt(now) {
		return nil, &LockedError{Until: *user.AccountLockedUntil}
	}

	if user == nil || !match {
		if user == nil {
			return nil, ErrInvalidCredentials
		}
		return nil, s.recordFailure(ctx, user, now)
	}

	if user.FailedLoginAttempts > 0 {
		updated, err := s.users.Update(ctx, user.ID, domain.UserUpdate{
			FailedLoginAttempts:    domain.Set(0),
			LastFailedLoginAttempt: domain.Set[*time.Time](nil),
			AccountLockedUntil:     domain.Set[*time.Time](nil),
		})
		if err != nil {
			return nil, fmt.Errorf("reset failed attempts: %w", err)
		}
		user = updated
	}

	s.logger.WithField("user_id", user.ID).Info("login succeeded")
	return sanitizeUser(user), nil
}

func (s *userService) recordFailure(ctx context.Context, user *domain.User, now time.Time) error {
	attempts := user.FailedLoginAttempts + 1

	var lockedUntil *time.Time
	if attempts >= MaxLoginAttempts {
		until := now.Add(LockoutDuration)
		lockedUntil = &until
	}

	if _, err := s.users.Update(ctx, user.ID, domain.UserUpdate{
		FailedLoginAttempts:    domain.Set(attempts),
		LastFailedLoginAttempt: domain.Set(&now),
		AccountLockedUntil:     domain.Set(lockedUntil),
	}); err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}

	log := s.logger.WithFields(logrus.Fields{"user_id": user.ID, "attempts": attempts})
	if lockedUntil != nil {
		log.Warn("account locked after repeated failed logins")
		return &LockedError{Until: *lockedUntil, JustLocked: true}
	}
	log.Info("login failed")
	return ErrInvalidCredentials
}
