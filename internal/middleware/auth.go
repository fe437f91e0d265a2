package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// CallerContextKey is where the authenticated caller id lives in the gin
// context.
const CallerContextKey = "caller_id"

// Authorizer is the capability check consumed from the external auth
// service: may this caller touch this video. The token state machine
// (issuance, refresh, blacklist) stays on the other side of this boundary.
type Authorizer interface {
	IsAuthorized(ctx context.Context, caller, videoID string) bool
}

// AllowAll authorizes every caller. Default for single-tenant deployments
// and the tests.
type AllowAll struct{}

// IsAuthorized implements Authorizer.
func (AllowAll) IsAuthorized(context.Context, string, string) bool { return true }

// JWTCaller extracts the caller id from a bearer token's subject claim.
// The token only identifies the caller; the authorization decision itself
// belongs to the Authorizer.
func JWTCaller(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			c.Abort()
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			c.Abort()
			return
		}

		c.Set(CallerContextKey, subject)
		c.Next()
	}
}

// StaticCaller stamps every request with a fixed caller id. Used when the
// deployment fronts this core with its own auth proxy, and by the tests.
func StaticCaller(caller string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(CallerContextKey, caller)
		c.Next()
	}
}

// Caller returns the authenticated caller id from the context.
func Caller(c *gin.Context) string {
	return c.GetString(CallerContextKey)
}
