package repository

import (
	"context"
	"errors"

	"aruba-auth/internal/domain"
)

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when the normalized email is already taken.
	ErrDuplicateEmail = errors.New("user with this email already exists")
)

// UserRepository defines persistence operations for User entities.
// Implementations normalize emails before storing or comparing them and
// hand out copies, never their internal records.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (string, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*domain.User, error)
	Update(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
}
