package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"shopfront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound   = domain.NewNotFoundError("user not found")
	ErrEmailTaken     = domain.NewConflictError("user with this email already exists")
	ErrUsernameTaken  = domain.NewConflictError("username is already taken")
	ErrInvalidRole    = domain.NewValidationError("invalid role", map[string]string{"role": "must be one of user, admin, moderator"})
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateLoginState(ctx context.Context, id uuid.UUID, state domain.LoginState) error
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateProfile(ctx context.Context, user *domain.User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, changedAt time.Time) error
	SetRole(ctx context.Context, email string, role domain.Role) error
}

type userRepository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewUserRepository creates a new instance of UserRepository
func NewUserRepository(db *sql.DB, timeout time.Duration) UserRepository {
	return &userRepository{db: db, timeout: timeout}
}

const userColumns = `id, username, email, password_hash, role, first_name, last_name, phone, avatar,
	login_attempts, lock_until, last_login, password_changed_at, created_at, updated_at`

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.Avatar,
		&user.LoginAttempts,
		&user.LockUntil,
		&user.LastLogin,
		&user.PasswordChangedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

// Create inserts a new user; duplicate email or username yields a conflict
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO users (id, username, email, password_hash, role, first_name, last_name, phone, avatar, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.Avatar,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			if constraint == "users_username_key" {
				return ErrUsernameTaken
			}
			return ErrEmailTaken
		}
		return dbError("create user", err)
	}

	return nil
}

// FindByEmail retrieves a user by email
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, dbError("find user by email", err)
	}

	return user, nil
}

// FindByID retrieves a user by ID
func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, dbError("find user by ID", err)
	}

	return user, nil
}

// UpdateLoginState persists the lockout counters after a failed login
func (r *userRepository) UpdateLoginState(ctx context.Context, id uuid.UUID, state domain.LoginState) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `UPDATE users SET login_attempts = $2, lock_until = $3 WHERE id = $1`
	return r.execOne(ctx, "update login state", query, id, state.Attempts, state.LockUntil)
}

// RecordLogin resets the lockout counters and stamps the login time
func (r *userRepository) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `UPDATE users SET login_attempts = 0, lock_until = NULL, last_login = $2 WHERE id = $1`
	return r.execOne(ctx, "record login", query, id, at)
}

// UpdateProfile writes the user-editable profile fields
func (r *userRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE users
		SET first_name = $2, last_name = $3, phone = $4, avatar = $5, updated_at = $6
		WHERE id = $1
	`
	return r.execOne(ctx, "update profile", query,
		user.ID, user.FirstName, user.LastName, user.Phone, user.Avatar, user.UpdatedAt)
}

// UpdatePassword replaces the password hash
func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, changedAt time.Time) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `UPDATE users SET password_hash = $2, password_changed_at = $3 WHERE id = $1`
	return r.execOne(ctx, "update password", query, id, hash, changedAt)
}

// SetRole changes the role of the account with the given email
func (r *userRepository) SetRole(ctx context.Context, email string, role domain.Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	return r.execOne(ctx, "set role", `UPDATE users SET role = $2 WHERE email = $1`, email, role)
}

func (r *userRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return dbError(op, err)
	}

	return expectOne(result, ErrUserNotFound)
}
