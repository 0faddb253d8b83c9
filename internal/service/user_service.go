package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"aruba-auth/internal/domain"
	"aruba-auth/internal/mail"
	"aruba-auth/internal/password"
	"aruba-auth/internal/repository"
	"aruba-auth/internal/validation"
)

// UserService describes the account lifecycle: signup, login and email verification.
type UserService interface {
	Signup(ctx context.Context, in SignupInput) (*SignupResult, error)
	Login(ctx context.Context, email, password string) (*domain.User, error)
	VerifyEmail(ctx context.Context, token string) (*VerifyResult, error)
	ResendVerification(ctx context.Context, email string) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// SignupInput is the account data submitted at signup.
type SignupInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	UserType  string
}

// SignupResult carries the created account and the outcome of the
// verification email, which never fails the signup itself.
type SignupResult struct {
	User       *domain.User
	EmailSent  bool
	EmailError error
}

// Options configures a UserService.
type Options struct {
	Hasher password.Hasher
	Mailer mail.Sender
	Logger logrus.FieldLogger
	Now    func() time.Time
}

type userService struct {
	users     repository.UserRepository
	hasher    password.Hasher
	mailer    mail.Sender
	logger    logrus.FieldLogger
	now       func() time.Time
	dummyHash string
	logins    *keyedMutex
}

func NewUserService(users repository.UserRepository, opts Options) (UserService, error) {
	if opts.Hasher == nil {
		opts.Hasher = password.NewBcrypt(0)
	}
	if opts.Mailer == nil {
		opts.Mailer = mail.Disabled{}
	}
	if opts.Logger == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.PanicLevel)
		opts.Logger = logger
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	dummy, err := password.DummyHash(opts.Hasher)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &userService{
		users:     users,
		hasher:    opts.Hasher,
		mailer:    opts.Mailer,
		logger:    opts.Logger,
		now:       opts.Now,
		dummyHash: dummy,
		logins:    newKeyedMutex(),
	}, nil
}

func (s *userService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	if err := validateSignup(in); err != nil {
		return nil, err
	}

	email := domain.NormalizeEmail(in.Email)
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	token, expires, err := s.newVerificationToken()
	if err != nil {
		return nil, err
	}

	firstName := strings.TrimSpace(in.FirstName)
	user := &domain.User{
		Email:                    email,
		PasswordHash:             hash,
		Name:                     strings.TrimSpace(firstName + " " + strings.TrimSpace(in.LastName)),
		Role:                     domain.RoleUser,
		VerificationToken:        &token,
		VerificationTokenExpires: &expires,
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	log := s.logger.WithFields(logrus.Fields{"user_id": user.ID, "email": user.Email})
	if in.UserType != "" {
		log = log.WithField("user_type", in.UserType)
	}
	log.Info("user created")

	result := &SignupResult{User: sanitizeUser(user)}

	name := user.Name
	if name == "" {
		name = firstName
	}
	if err := s.mailer.SendVerification(ctx, mail.VerificationEmail{
		Email: user.Email,
		Name:  name,
		Token: token,
	}); err != nil {
		log.WithError(err).Warn("verification email not sent")
		result.EmailError = err
		return result, nil
	}

	result.EmailSent = true
	return result, nil
}

func (s *userService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i] = *sanitizeUser(&users[i])
	}
	return users, nil
}

func validateSignup(in SignupInput) error {
	switch {
	case !validation.Name(in.FirstName):
		return &ValidationError{Field: "firstName", Message: "First name must be 2-50 letters and may include spaces, hyphens or apostrophes"}
	case !validation.Name(in.LastName):
		return &ValidationError{Field: "lastName", Message: "Last name must be 2-50 letters and may include spaces, hyphens or apostrophes"}
	case !validation.Email(strings.TrimSpace(in.Email)):
		return &ValidationError{Field: "email", Message: "Please enter a valid email address"}
	case !validation.Password(in.Password):
		return &ValidationError{Field: "password", Message: "Password must be at least 8 characters"}
	}
	return nil
}

// sanitizeUser drops secrets before a record leaves the service.
func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	c := user.Clone()
	c.PasswordHash = ""
	c.VerificationToken = nil
	return c
}
