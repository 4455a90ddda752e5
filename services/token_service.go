package services

import (
	"errors"
	"fmt"
	"time"

	"storefront-service/apperrors"
	"storefront-service/models"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess = "access"
	RoleAdmin       = "admin"

	DefaultSessionTTL = 12 * time.Hour
)

// AdminClaims is what a validated session token says about its holder.
type AdminClaims struct {
	UserID   uint
	Username string
	Role     string
}

// TokenService is responsible for creating and validating session JWTs.
type TokenService struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewTokenService creates a TokenService signing with secret.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("JWT secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secretKey: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs an admin access token for user.
func (s *TokenService) Issue(user models.UserSummary) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := jwt.MapClaims{
		"sub":      fmt.Sprint(user.ID),
		"username": user.Username,
		"role":     RoleAdmin,
		"typ":      tokenTypeAccess,
		"exp":      expiresAt.Unix(),
		"iat":      now.Unix(),
		"jti":      uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses tokenStr and returns its claims if it is a live access token.
func (s *TokenService) Validate(tokenStr string) (*AdminClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil || token == nil || !token.Valid {
		var vErr *jwt.ValidationError
		if errors.As(err, &vErr) && vErr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}
	if typ, ok := claims["typ"].(string); !ok || typ != tokenTypeAccess {
		return nil, apperrors.ErrInvalidToken
	}

	out := &AdminClaims{}
	out.Username, _ = claims["username"].(string)
	out.Role, _ = claims["role"].(string)
	if sub, ok := claims["sub"].(string); ok {
		var id uint
		if _, err := fmt.Sscan(sub, &id); err == nil {
			out.UserID = id
		}
	}
	return out, nil
}
