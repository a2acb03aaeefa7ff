package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bloodlink/service-delivery/internal/auth"
	"github.com/bloodlink/service-delivery/internal/response"
)

const (
	userIDKey   = "user_id"
	userRoleKey = "user_role"

	// TokenQueryParam carries the token on websocket upgrades, where browsers cannot set headers.
	TokenQueryParam = "token"
)

// AuthMiddleware requires a valid access token in the Authorization header or, failing
// that, in the token query parameter.
func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query(TokenQueryParam)
		}
		if token == "" {
			response.Unauthorized(c, "missing access token")
			return
		}

		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			msg := "invalid access token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "access token expired"
			}
			response.Unauthorized(c, msg)
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(userRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not one of roles. Must run after AuthMiddleware.
func RequireRole(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetUserRole(c)
		if !ok {
			response.Unauthorized(c, "unauthorized")
			return
		}
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient role")
	}
}

// GetUserID returns the authenticated caller's id.
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetUserRole returns the authenticated caller's role.
func GetUserRole(c *gin.Context) (auth.Role, bool) {
	v, ok := c.Get(userRoleKey)
	if !ok {
		return "", false
	}
	role, ok := v.(auth.Role)
	return role, ok
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
