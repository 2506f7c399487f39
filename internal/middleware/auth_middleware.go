package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ridefusion/booking-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// UserContext represents the authenticated user's information
type UserContext struct {
	UserID uuid.UUID `json:"user_id"`
	Roles  []string  `json:"roles"`
}

// HasRole reports whether the user holds any of roles
func (u UserContext) HasRole(roles ...string) bool {
	for _, required := range roles {
		for _, held := range u.Roles {
			if held == required {
				return true
			}
		}
	}
	return false
}

// AuthMiddleware validates the bearer access token and stores the caller's
// UserContext on the request
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.WithFields(logrus.Fields{
			"path": c.Request.URL.Path,
			"ip":   c.ClientIP(),
		})

		header := c.GetHeader("Authorization")
		if header == "" {
			log.Warn("Auth failed: missing authorization header")
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "MISSING_AUTH_HEADER",
				"Authorization header is required")
			return
		}

		token, ok := bearerToken(header)
		if !ok {
			log.Warn("Auth failed: invalid authorization format")
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "INVALID_AUTH_FORMAT",
				"Invalid authorization header format. Expected: Bearer <token>")
			return
		}

		claims, err := jwtService.ValidateAccessToken(token)
		switch {
		case err == nil:
		case jwt.IsExpiredError(err):
			log.WithError(err).Info("Auth failed: token expired")
			abortAuth(c, http.StatusUnauthorized, "token_expired", "TOKEN_EXPIRED",
				"Access token has expired. Please refresh your token.")
			return
		default:
			log.WithError(err).Warn("Auth failed: invalid token")
			abortAuth(c, http.StatusUnauthorized, "invalid_token", "INVALID_TOKEN", "Invalid access token")
			return
		}

		c.Set(UserContextKey, UserContext{UserID: claims.UserID, Roles: claims.Roles})
		c.Next()
	}
}

// RequireRole lets the request through when the caller holds any of roles.
// It must run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, ok := GetUserContext(c)
		if !ok {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "MISSING_USER_CONTEXT",
				"User context not found. Auth middleware may not be applied.")
			return
		}
		if !userCtx.HasRole(roles...) {
			abortAuth(c, http.StatusForbidden, "forbidden", "INSUFFICIENT_PERMISSIONS",
				"You don't have permission to access this resource")
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}

func abortAuth(c *gin.Context, status int, errKey, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   errKey,
		"message": message,
		"code":    code,
	})
}

// GetUserContext returns the UserContext set by AuthMiddleware
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}
	userCtx, ok := value.(UserContext)
	return userCtx, ok
}
