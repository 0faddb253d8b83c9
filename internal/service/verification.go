package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"aruba-auth/internal/domain"
	"aruba-auth/internal/mail"
	"aruba-auth/internal/repository"
	"aruba-auth/internal/validation"
)

const (
	VerificationTokenBytes = 32
	VerificationTTL        = 24 * time.Hour
)

// VerifyResult is the outcome of a successful verification request.
type VerifyResult struct {
	User            *domain.User
	AlreadyVerified bool
}

func (s *userService) newVerificationToken() (string, time.Time, error) {
	buf := make([]byte, VerificationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate verification token: %w", err)
	}
	return hex.EncodeToString(buf), s.now().UTC().Add(VerificationTTL), nil
}

// VerifyEmail consumes a verification token. The token is cleared on
// success, so presenting it again yields ErrInvalidToken.
func (s *userService) VerifyEmail(ctx context.Context, token string) (*VerifyResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	user, err := s.users.FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("find verification token: %w", err)
	}

	if user.VerificationTokenExpires != nil && s.now().After(*user.VerificationTokenExpires) {
		return nil, ErrTokenExpired
	}

	if user.EmailVerified {
		return &VerifyResult{User: sanitizeUser(user), AlreadyVerified: true}, nil
	}

	updated, err := s.users.Update(ctx, user.ID, domain.UserUpdate{
		EmailVerified:            domain.Set(true),
		VerificationToken:        domain.Set[*string](nil),
		VerificationTokenExpires: domain.Set[*time.Time](nil),
	})
	if err != nil {
		return nil, fmt.Errorf("mark email verified: %w", err)
	}

	s.logger.WithField("user_id", user.ID).Info("email verified")
	return &VerifyResult{User: sanitizeUser(updated)}, nil
}

// ResendVerification issues a fresh token for an unverified account and
// mails it. Unknown and already verified addresses are ignored so callers
// cannot tell which emails are registered.
func (s *userService) ResendVerification(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if !validation.Email(email) {
		return &ValidationError{Field: "email", Message: "Please enter a valid email address"}
	}

	user, token, err := s.rotateVerificationToken(ctx, email)
	if err != nil || user == nil {
		return err
	}

	// sent outside the per-email lock
	if err := s.mailer.SendVerification(ctx, mail.VerificationEmail{
		Email: user.Email,
		Name:  user.Name,
		Token: token,
	}); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("verification email not resent")
	}
	return nil
}

// rotateVerificationToken stores a fresh token for an unverified account. It
// returns a nil user when there is nothing to resend.
func (s *userService) rotateVerificationToken(ctx context.Context, email string) (*domain.User, string, error) {
	unlock := s.logins.Lock(email)
	defer unlock()

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("find user: %w", err)
	}
	if user.EmailVerified {
		return nil, "", nil
	}

	token, expires, err := s.newVerificationToken()
	if err != nil {
		return nil, "", err
	}
	if _, err := s.users.Update(ctx, user.ID, domain.UserUpdate{
		VerificationToken:        domain.Set(&token),
		VerificationTokenExpires: domain.Set(&expires),
	}); err != nil {
		return nil, "", fmt.Errorf("store verification token: %w", err)
	}
	return user, token, nil
}
