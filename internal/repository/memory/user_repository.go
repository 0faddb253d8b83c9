// Package memory provides the in-process user directory used by default.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"aruba-auth/internal/domain"
	"aruba-auth/internal/repository"
)

// UserRepository keeps users in a table keyed by id with secondary indices
// by normalized email and by pending verification token.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
	byToken map[string]string
	now     func() time.Time
}

func NewUserRepository() *UserRepository {
	r := &UserRepository{now: time.Now}
	r.Reset()
	return r
}

// WithClock replaces the time source used for CreatedAt and UpdatedAt.
func (r *UserRepository) WithClock(now func() time.Time) *UserRepository {
	r.now = now
	return r
}

// Init is a no-op; the table exists from construction.
func (r *UserRepository) Init(context.Context) error {
	return nil
}

// Reset drops every stored user.
func (r *UserRepository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*domain.User)
	r.byEmail = make(map[string]string)
	r.byToken = make(map[string]string)
}

func (r *UserRepository) Create(_ context.Context, user *domain.User) (string, error) {
	email := domain.NormalizeEmail(user.Email)
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[email]; exists {
		return "", repository.ErrDuplicateEmail
	}

	user.ID = uuid.NewString()
	user.Email = email
	if !user.Role.Valid() {
		user.Role = domain.RoleUser
	}
	user.EmailVerified = false
	if user.FailedLoginAttempts < 0 {
		user.FailedLoginAttempts = 0
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := user.Clone()
	r.byID[stored.ID] = stored
	r.byEmail[email] = stored.ID
	if stored.VerificationToken != nil {
		r.byToken[*stored.VerificationToken] = stored.ID
	}
	return stored.ID, nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *UserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user.Clone(), nil
}

func (r *UserRepository) FindByVerificationToken(_ context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, repository.ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *UserRepository) Update(_ context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	previousToken := user.VerificationToken
	update.Apply(user, r.now())

	if previousToken != nil {
		delete(r.byToken, *previousToken)
	}
	if user.VerificationToken != nil {
		r.byToken[*user.VerificationToken] = user.ID
	}
	return user.Clone(), nil
}

func (r *UserRepository) List(context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		users = append(users, *u.Clone())
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
