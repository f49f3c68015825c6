package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is an explicit, stored authorization role
type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// User represents a registered account
type User struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	Username          string     `json:"username" db:"username"`
	Email             string     `json:"email" db:"email"`
	PasswordHash      string     `json:"-" db:"password_hash"`
	Role              Role       `json:"role" db:"role"`
	FirstName         string     `json:"firstName" db:"first_name"`
	LastName          string     `json:"lastName" db:"last_name"`
	Phone             string     `json:"phone,omitempty" db:"phone"`
	Avatar            string     `json:"avatar" db:"avatar"`
	LoginAttempts     int        `json:"-" db:"login_attempts"`
	LockUntil         *time.Time `json:"-" db:"lock_until"`
	LastLogin         *time.Time `json:"lastLogin,omitempty" db:"last_login"`
	PasswordChangedAt *time.Time `json:"-" db:"password_changed_at"`
	CreatedAt         time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time  `json:"updatedAt" db:"updated_at"`
}

// LoginState is the lockout bookkeeping of an account
type LoginState struct {
	Attempts  int
	LockUntil *time.Time
}

// LoginState returns the current lockout bookkeeping
func (u *User) LoginState() LoginState {
	return LoginState{Attempts: u.LoginAttempts, LockUntil: u.LockUntil}
}

// LockoutPolicy locks an account after MaxAttempts consecutive failures
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// DefaultLockoutPolicy locks for one hour after five failures
var DefaultLockoutPolicy = LockoutPolicy{MaxAttempts: 5, LockDuration: time.Hour}

// IsLocked reports whether the state holds an unexpired lock
func (p LockoutPolicy) IsLocked(s LoginState, now time.Time) bool {
	return s.LockUntil != nil && s.LockUntil.After(now)
}

// Fail returns the state after one more failed attempt.
// An expired lock is cleared and the counter restarts at 1.
func (p LockoutPolicy) Fail(s LoginState, now time.Time) LoginState {
	if s.LockUntil != nil && !s.LockUntil.After(now) {
		return LoginState{Attempts: 1}
	}

	next := LoginState{Attempts: s.Attempts + 1, LockUntil: s.LockUntil}
	if next.Attempts >= p.MaxAttempts && !p.IsLocked(s, now) {
		until := now.Add(p.LockDuration)
		next.LockUntil = &until
	}
	return next
}

// Succeed returns the state after a successful login
func (p LockoutPolicy) Succeed() LoginState {
	return LoginState{}
}

// RefreshToken represents a long-lived token used to mint access tokens
type RefreshToken struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Revoked   bool      `json:"revoked" db:"revoked"`
}
