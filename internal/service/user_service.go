package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopfront/internal/config"
	"shopfront/internal/domain"
	"shopfront/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 10

	// MinPasswordLength applies to registration and password changes
	MinPasswordLength = 6

	// Token expiration times used when configuration leaves them unset
	AccessTokenExpiration  = 60 * time.Minute
	RefreshTokenExpiration = 30 * 24 * time.Hour
)

var (
	ErrInvalidCredentials = domain.NewUnauthorizedError("invalid credentials")
	ErrAccountLocked      = domain.NewUnauthorizedError("account is temporarily locked due to too many failed login attempts")
	ErrInvalidToken       = domain.NewUnauthorizedError("invalid token")
	ErrTokenExpired       = domain.NewUnauthorizedError("token has expired")
	ErrWrongPassword      = domain.NewValidationError("current password is incorrect", map[string]string{"currentPassword": "does not match"})
)

// TokenRevoker denies access tokens by id until they expire
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

// RegisterInput carries the fields of a new account
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// ProfileUpdate holds the profile fields to change; nil fields are kept
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Avatar    *string
}

// Session identifies the access token a request was made with
type Session struct {
	UserID    uuid.UUID
	TokenID   string
	ExpiresAt time.Time
}

// AuthResult is returned by every operation that signs the user in
type AuthResult struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}

// UserService defines the interface for user business logic
type UserService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Logout(ctx context.Context, session Session, refreshToken string) error
	RefreshToken(ctx context.Context, refreshToken string) (newAccessToken string, expiresAt time.Time, err error)
	ValidateToken(tokenString string) (*Claims, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (*domain.User, error)
	ChangePassword(ctx context.Context, session Session, currentPassword, newPassword string) (*AuthResult, error)
}

// Claims represents the JWT claims
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

type userService struct {
	userRepo         repository.UserRepository
	refreshTokenRepo repository.RefreshTokenRepository
	revoker          TokenRevoker
	jwtSecret        string
	accessExpiry     time.Duration
	refreshExpiry    time.Duration
	lockout          domain.LockoutPolicy
	logger           *zap.Logger
	now              func() time.Time
}

// NewUserService creates a new instance of UserService
func NewUserService(
	userRepo repository.UserRepository,
	refreshTokenRepo repository.RefreshTokenRepository,
	revoker TokenRevoker,
	cfg config.JWTConfig,
	logger *zap.Logger,
) UserService {
	s := &userService{
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		revoker:          revoker,
		jwtSecret:        cfg.Secret,
		accessExpiry:     time.Duration(cfg.AccessExpiry) * time.Minute,
		refreshExpiry:    time.Duration(cfg.RefreshExpiry) * 24 * time.Hour,
		lockout:          domain.DefaultLockoutPolicy,
		logger:           logger,
		now:              time.Now,
	}
	if s.accessExpiry <= 0 {
		s.accessExpiry = AccessTokenExpiration
	}
	if s.refreshExpiry <= 0 {
		s.refreshExpiry = RefreshTokenExpiration
	}
	return s
}

// Register creates a new user account with a hashed password and signs it in
func (s *userService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if len(in.Password) < MinPasswordLength {
		return nil, domain.NewValidationError("password is too short", map[string]string{
			"password": fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		})
	}

	hashedPassword, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New(),
		Username:     strings.ToLower(strings.TrimSpace(in.Username)),
		Email:        normalizeEmail(in.Email),
		PasswordHash: hashedPassword,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID.String()))

	return s.issueTokens(ctx, user)
}

// Login authenticates a user, applying the lockout policy, and returns JWT tokens
func (s *userService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	now := s.now()
	state := user.LoginState()

	// A locked account is rejected before the password is looked at
	if s.lockout.IsLocked(state, now) {
		s.logger.Info("Login attempt on locked account", zap.String("user_id", user.ID.String()))
		return nil, ErrAccountLocked
	}

	if err := s.verifyPassword(user.PasswordHash, password); err != nil {
		next := s.lockout.Fail(state, now)
		if err := s.userRepo.UpdateLoginState(ctx, user.ID, next); err != nil {
			return nil, fmt.Errorf("failed to record failed login: %w", err)
		}
		if s.lockout.IsLocked(next, now) {
			s.logger.Warn("Account locked", zap.String("user_id", user.ID.String()), zap.Int("attempts", next.Attempts))
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.userRepo.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	user.LoginAttempts = 0
	user.LockUntil = nil
	user.LastLogin = &now

	return s.issueTokens(ctx, user)
}

// Logout revokes the access token of the session and the refresh token.
// Without a refresh token every refresh token of the user is revoked.
func (s *userService) Logout(ctx context.Context, session Session, refreshToken string) error {
	if err := s.revokeSession(ctx, session); err != nil {
		return err
	}

	if refreshToken == "" {
		if err := s.refreshTokenRepo.RevokeAllForUser(ctx, session.UserID); err != nil {
			return fmt.Errorf("failed to revoke refresh tokens: %w", err)
		}
		return nil
	}

	if err := s.refreshTokenRepo.Revoke(ctx, refreshToken); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			// Token doesn't exist or was already revoked, consider it logged out
			return nil
		}
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RefreshToken generates a new access token using a valid refresh token
func (s *userService) RefreshToken(ctx context.Context, refreshTokenString string) (string, time.Time, error) {
	refreshToken, err := s.refreshTokenRepo.FindByToken(ctx, refreshTokenString)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRefreshTokenExpired):
			return "", time.Time{}, ErrTokenExpired
		case errors.Is(err, domain.ErrUnauthorized):
			return "", time.Time{}, ErrInvalidToken
		}
		return "", time.Time{}, fmt.Errorf("failed to find refresh token: %w", err)
	}

	if s.now().After(refreshToken.ExpiresAt) {
		return "", time.Time{}, ErrTokenExpired
	}

	user, err := s.userRepo.FindByID(ctx, refreshToken.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", time.Time{}, ErrInvalidToken
		}
		return "", time.Time{}, fmt.Errorf("failed to find user: %w", err)
	}

	accessToken, expiresAt, err := s.generateAccessToken(user)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate access token: %w", err)
	}

	return accessToken, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *userService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetUserByID retrieves a user by ID
func (s *userService) GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateProfile changes the editable profile fields of a user
func (s *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if update.FirstName != nil {
		user.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		user.LastName = strings.TrimSpace(*update.LastName)
	}
	if update.Phone != nil {
		user.Phone = strings.TrimSpace(*update.Phone)
	}
	if update.Avatar != nil {
		user.Avatar = strings.TrimSpace(*update.Avatar)
	}
	user.UpdatedAt = s.now()

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// ChangePassword replaces the password, revokes the current session and
// every refresh token, and signs the user in again
func (s *userService) ChangePassword(ctx context.Context, session Session, currentPassword, newPassword string) (*AuthResult, error) {
	if len(newPassword) < MinPasswordLength {
		return nil, domain.NewValidationError("new password is too short", map[string]string{
			"newPassword": fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		})
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.verifyPassword(user.PasswordHash, currentPassword); err != nil {
		return nil, ErrWrongPassword
	}

	hashedPassword, err := s.hashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	if err := s.userRepo.UpdatePassword(ctx, user.ID, hashedPassword, now); err != nil {
		return nil, fmt.Errorf("failed to update password: %w", err)
	}
	user.PasswordHash = hashedPassword
	user.PasswordChangedAt = &now

	if err := s.revokeSession(ctx, session); err != nil {
		return nil, err
	}
	if err := s.refreshTokenRepo.RevokeAllForUser(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	s.logger.Info("Password changed", zap.String("user_id", user.ID.String()))

	return s.issueTokens(ctx, user)
}

func (s *userService) revokeSession(ctx context.Context, session Session) error {
	if session.TokenID == "" {
		return nil
	}
	if err := s.revoker.Revoke(ctx, session.TokenID, session.ExpiresAt.Sub(s.now())); err != nil {
		return domain.NewUpstreamError("failed to revoke access token", err)
	}
	return nil
}

func (s *userService) issueTokens(ctx context.Context, user *domain.User) (*AuthResult, error) {
	accessToken, expiresAt, err := s.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.generateRefreshToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// hashPassword hashes a password using bcrypt with cost factor 10
func (s *userService) hashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// verifyPassword verifies a password against a bcrypt hash
func (s *userService) verifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// generateAccessToken signs a JWT with user ID, role and a unique token id
func (s *userService) generateAccessToken(user *domain.User) (string, time.Time, error) {
	now := s.now()
	expirationTime := now.Add(s.accessExpiry)
	claims := &Claims{
		UserID: user.ID,
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expirationTime, nil
}

// generateRefreshToken generates a refresh token and stores it in the database
func (s *userService) generateRefreshToken(ctx context.Context, user *domain.User) (string, error) {
	tokenString := uuid.NewString()
	now := s.now()

	refreshToken := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     tokenString,
		ExpiresAt: now.Add(s.refreshExpiry),
		CreatedAt: now,
		Revoked:   false,
	}

	if err := s.refreshTokenRepo.Create(ctx, refreshToken); err != nil {
		return "", err
	}

	return tokenString, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
