package middleware

import (
	"errors"
	"net/http"
	"strings"

	"storefront-service/apperrors"
	"storefront-service/services"

	"github.com/gin-gonic/gin"
)

const (
	UsernameContextKey = "username"
	RoleContextKey     = "role"
)

// TokenValidator is satisfied by services.TokenService.
type TokenValidator interface {
	Validate(tokenStr string) (*services.AdminClaims, error)
}

// RequireAdmin guards admin routes with a Bearer session token. When
// required is false every request passes, which is only meant for local use.
func RequireAdmin(tokens TokenValidator, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !required {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		scheme, tokenStr, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenStr) == "" {
			c.AbortWithStatusJSON(apperrors.ErrUnauthorized.Code, gin.H{"error": apperrors.ErrUnauthorized.Message})
			return
		}

		claims, err := tokens.Validate(strings.TrimSpace(tokenStr))
		if err != nil {
			msg := apperrors.ErrInvalidToken.Message
			if errors.Is(err, apperrors.ErrTokenExpired) {
				msg = apperrors.ErrTokenExpired.Message
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		if claims.Role != services.RoleAdmin {
			c.AbortWithStatusJSON(apperrors.ErrForbidden.Code, gin.H{"error": apperrors.ErrForbidden.Message})
			return
		}

		c.Set(UsernameContextKey, claims.Username)
		c.Set(RoleContextKey, claims.Role)
		c.Next()
	}
}
