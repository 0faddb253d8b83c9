package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"aruba-auth/internal/domain"
	"aruba-auth/internal/repository"
)

const userColumns = `id, email, password_hash, name, role, email_verified,
	verification_token, verification_token_expires,
	failed_login_attempts, last_failed_login_attempt, account_locked_until,
	created_at, updated_at`

type UserRepository struct {
	db     *sql.DB
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewUserRepository(db *sql.DB, logger logrus.FieldLogger) *UserRepository {
	return &UserRepository{db: db, logger: logger, now: time.Now}
}

// WithClock replaces the time source used for CreatedAt and UpdatedAt.
func (r *UserRepository) WithClock(now func() time.Time) *UserRepository {
	r.now = now
	return r
}

func (r *UserRepository) Init(ctx context.Context) error {
	if err := Migrate(ctx, r.db, r.logger); err != nil {
		return fmt.Errorf("migrate users schema: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (string, error) {
	now := r.now().UTC()
	user.ID = uuid.NewString()
	user.Email = domain.NormalizeEmail(user.Email)
	if !user.Role.Valid() {
		user.Role = domain.RoleUser
	}
	user.EmailVerified = false
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		string(user.Role),
		user.EmailVerified,
		nullString(user.VerificationToken),
		nullTime(user.VerificationTokenExpires),
		user.FailedLoginAttempts,
		nullTime(user.LastFailedLoginAttempt),
		nullTime(user.AccountLockedUntil),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return "", repository.ErrDuplicateEmail
		}
		return "", fmt.Errorf("insert user: %w", err)
	}
	return user.ID, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`,
		domain.NormalizeEmail(email),
	)
	return scanUser(row)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *UserRepository) FindByVerificationToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, repository.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE verification_token = ?`, token)
	return scanUser(row)
}

func (r *UserRepository) Update(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	user, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	update.Apply(user, r.now())

	_, err = tx.ExecContext(ctx, `
UPDATE users
SET name = ?,
	role = ?,
	password_hash = ?,
	email_verified = ?,
	verification_token = ?,
	verification_token_expires = ?,
	failed_login_attempts = ?,
	last_failed_login_attempt = ?,
	account_locked_until = ?,
	updated_at = ?
WHERE id = ?`,
		user.Name,
		string(user.Role),
		user.PasswordHash,
		user.EmailVerified,
		nullString(user.VerificationToken),
		nullTime(user.VerificationTokenExpires),
		user.FailedLoginAttempts,
		nullTime(user.LastFailedLoginAttempt),
		nullTime(user.AccountLockedUntil),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit user update: %w", err)
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user                                  domain.User
		role                                  string
		token                                 sql.NullString
		tokenExpires, lastFailed, lockedUntil sql.NullTime
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&role,
		&user.EmailVerified,
		&token,
		&tokenExpires,
		&user.FailedLoginAttempts,
		&lastFailed,
		&lockedUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.Role = domain.Role(role)
	if token.Valid {
		user.VerificationToken = &token.String
	}
	user.VerificationTokenExpires = timePtr(tokenExpires)
	user.LastFailedLoginAttempt = timePtr(lastFailed)
	user.AccountLockedUntil = timePtr(lockedUntil)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

var _ repository.UserRepository = (*UserRepository)(nil)
