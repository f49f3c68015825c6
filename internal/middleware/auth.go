package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const (
	UserIDKey      contextKey = "user_id"
	UserRoleKey    contextKey = "user_role"
	TokenIDKey     contextKey = "token_id"
	TokenExpiryKey contextKey = "token_expiry"
)

// RevocationChecker reports whether an access token id has been revoked
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type identity struct {
	userID  string
	role    string
	tokenID string
	expiry  time.Time
}

// authenticate parses the bearer token of r and returns a client-facing failure message
func authenticate(r *http.Request, jwtSecret string, revocations RevocationChecker, logger *zap.Logger) (*identity, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, "missing authorization header"
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, "invalid authorization header format"
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})

	if err != nil {
		logger.Debug("Token validation failed", zap.Error(err))
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, "token expired"
		}
		return nil, "invalid token"
	}

	if !token.Valid {
		return nil, "invalid token"
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, "invalid token claims"
	}

	id := &identity{}
	if id.userID, ok = claims["user_id"].(string); !ok {
		return nil, "invalid token claims"
	}
	if id.role, ok = claims["role"].(string); !ok {
		return nil, "invalid token claims"
	}
	id.tokenID, _ = claims["jti"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.expiry = exp.Time
	}

	if revocations != nil && id.tokenID != "" {
		revoked, err := revocations.IsRevoked(r.Context(), id.tokenID)
		if err != nil {
			logger.Error("Failed to check token revocation", zap.Error(err))
			return nil, "unable to verify token"
		}
		if revoked {
			return nil, "token has been revoked"
		}
	}

	return id, ""
}

func withIdentity(ctx context.Context, id *identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.userID)
	ctx = context.WithValue(ctx, UserRoleKey, id.role)
	ctx = context.WithValue(ctx, TokenIDKey, id.tokenID)
	return context.WithValue(ctx, TokenExpiryKey, id.expiry)
}

// AuthMiddleware validates JWT tokens, rejects revoked ones and extracts user claims
func AuthMiddleware(jwtSecret string, revocations RevocationChecker, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, failure := authenticate(r, jwtSecret, revocations, logger)
			if id == nil {
				logger.Debug("Authentication failed", zap.String("reason", failure))
				RespondWithError(w, http.StatusUnauthorized, failure)
				return
			}

			logger.Debug("User authenticated",
				zap.String("user_id", id.userID),
				zap.String("role", id.role),
			)

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuthMiddleware attaches the caller's identity when a valid token is
// present and lets anonymous requests through otherwise
func OptionalAuthMiddleware(jwtSecret string, revocations RevocationChecker, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				if id, _ := authenticate(r, jwtSecret, revocations, logger); id != nil {
					r = r.WithContext(withIdentity(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetUserRole extracts user role from request context
func GetUserRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(UserRoleKey).(string)
	return role, ok
}

// GetTokenID extracts the access token id (jti) from request context
func GetTokenID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(TokenIDKey).(string)
	return id, ok && id != ""
}

// GetTokenExpiry extracts the access token expiry from request context
func GetTokenExpiry(ctx context.Context) (time.Time, bool) {
	exp, ok := ctx.Value(TokenExpiryKey).(time.Time)
	return exp, ok && !exp.IsZero()
}
