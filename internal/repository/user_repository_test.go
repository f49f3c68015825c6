package repository

import (
	"context"
	"testing"
	"time"

	"shopfront/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Feature: shopfront, Property 24: Registration stores only bcrypt hashes
func TestProperty_RegistrationCreatesHashedPasswords(t *testing.T) {
	requireDB(t)

	repo := NewUserRepository(testDB, 0)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)
	properties.Property("passwords are hashed with bcrypt and not stored as plaintext", prop.ForAll(
		func(username string, password string) bool {
			email := username + "@example.com"
			_, _ = testDB.Exec("DELETE FROM users WHERE email = $1 OR username = $2", email, username)

			hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
			if err != nil {
				t.Logf("Failed to hash password: %v", err)
				return false
			}

			user := &domain.User{
				ID:           uuid.New(),
				Username:     username,
				Email:        email,
				PasswordHash: string(hashedPassword),
				Role:         domain.RoleUser,
				CreatedAt:    time.Now(),
				UpdatedAt:    time.Now(),
			}
			if err := repo.Create(ctx, user); err != nil {
				t.Logf("Failed to create user: %v", err)
				return false
			}

			retrieved, err := repo.FindByEmail(ctx, email)
			if err != nil {
				t.Logf("Failed to find user: %v", err)
				return false
			}

			if retrieved.PasswordHash == password {
				t.Logf("Password was stored as plaintext!")
				return false
			}

			if err := bcrypt.CompareHashAndPassword([]byte(retrieved.PasswordHash), []byte(password)); err != nil {
				t.Logf("Stored password is not a valid bcrypt hash: %v", err)
				return false
			}

			_, _ = testDB.Exec("DELETE FROM users WHERE email = $1", email)
			return true
		},
		gen.RegexMatch(`[a-z][a-z0-9_]{4,20}`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestUserRepository_CreateMapsUniqueViolations(t *testing.T) {
	requireDB(t)

	repo := NewUserRepository(testDB, 0)
	existing := seedUser(t)

	sameEmail := *existing
	sameEmail.ID = uuid.New()
	sameEmail.Username = "other_" + existing.ID.String()[:8]
	assert.ErrorIs(t, repo.Create(context.Background(), &sameEmail), ErrEmailTaken)

	sameUsername := *existing
	sameUsername.ID = uuid.New()
	sameUsername.Email = "other_" + existing.Email
	assert.ErrorIs(t, repo.Create(context.Background(), &sameUsername), ErrUsernameTaken)
}

func TestUserRepository_LoginStateRoundTrip(t *testing.T) {
	requireDB(t)

	repo := NewUserRepository(testDB, 0)
	ctx := context.Background()
	user := seedUser(t)

	until := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.UpdateLoginState(ctx, user.ID, domain.LoginState{Attempts: 5, LockUntil: &until}))

	locked, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, locked.LoginAttempts)
	require.NotNil(t, locked.LockUntil)
	assert.True(t, locked.LockUntil.Equal(until))

	require.NoError(t, repo.RecordLogin(ctx, user.ID, time.Now()))

	reset, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, reset.LoginAttempts)
	assert.Nil(t, reset.LockUntil)
	assert.NotNil(t, reset.LastLogin)
}

func TestUserRepository_SetRole(t *testing.T) {
	requireDB(t)

	repo := NewUserRepository(testDB, 0)
	ctx := context.Background()
	user := seedUser(t)

	require.NoError(t, repo.SetRole(ctx, user.Email, domain.RoleAdmin))

	updated, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, updated.Role)

	assert.ErrorIs(t, repo.SetRole(ctx, "missing@example.com", domain.RoleAdmin), ErrUserNotFound)
	assert.ErrorIs(t, repo.SetRole(ctx, user.Email, domain.Role("root")), ErrInvalidRole)
}
