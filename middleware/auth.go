package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rsd-darshan/merokitab/config"
	"github.com/rsd-darshan/merokitab/services"
)

// SessionCookieName is the cookie carrying the signed session token
const SessionCookieName = "session"

// RequireAuth validates the caller's session token and stores the
// caller's identity in the Gin context. The token is read from the
// session cookie or, failing that, an Authorization bearer header.
// Requests without a valid token are rejected before any other work.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractSessionToken(c)
		if token == "" {
			abortUnauthorized(c, "Authentication required")
			return
		}

		cfg := config.GetConfig()
		claims, err := services.ParseSessionToken(cfg, token)
		if err != nil {
			abortUnauthorized(c, "Invalid or expired session")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("is_admin", claims.IsAdmin)
		c.Set("session_claims", claims)

		c.Next()
	}
}

// RequireAdmin rejects authenticated callers without the admin flag.
// Must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "Admin access required",
				},
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID extracts the authenticated user's id from the Gin context
func GetUserID(c *gin.Context) (string, error) {
	userID, exists := c.Get("user_id")
	if !exists {
		return "", &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}

	userIDStr, ok := userID.(string)
	if !ok {
		return "", &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not a string"}
	}

	return userIDStr, nil
}

// IsAdmin reports whether the authenticated caller carries the admin flag
func IsAdmin(c *gin.Context) bool {
	isAdmin, exists := c.Get("is_admin")
	if !exists {
		return false
	}
	flag, ok := isAdmin.(bool)
	return ok && flag
}

// GetSessionClaims extracts the full session claims from the Gin context
func GetSessionClaims(c *gin.Context) (*services.SessionClaims, error) {
	claims, exists := c.Get("session_claims")
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Session claims not found in context"}
	}

	sessionClaims, ok := claims.(*services.SessionClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Session claims are not in the expected format"}
	}

	return sessionClaims, nil
}

func extractSessionToken(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}

func abortUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
	c.Abort()
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
