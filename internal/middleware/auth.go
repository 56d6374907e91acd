package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"harmonyclass-api/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextUserID is the gin context key holding the authenticated user id
const ContextUserID = "auth_user_id"

// SupabaseAuthMiddleware verifies Supabase access tokens (HS256, signed with
// the project's JWT secret) and stores the token subject in the context.
// With an empty secret authentication is off and every request passes.
func SupabaseAuthMiddleware(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(30*time.Second))

	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error("Missing bearer token"))
			return
		}

		userID, err := validateToken(parser, tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error("Invalid bearer token"))
			return
		}

		c.Set(ContextUserID, userID)
		c.Set("request_time", time.Now())
		c.Next()
	}
}

func bearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

func validateToken(parser *jwt.Parser, tokenString, secret string) (string, error) {
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("token validation failed")
	}

	sub, ok := claims["sub"].(string)
	if !ok || strings.TrimSpace(sub) == "" {
		return "", errors.New("subject claim missing")
	}
	return sub, nil
}

// AuthorizedFor reports whether the request may act for userID. Without
// authentication configured every request may; otherwise the token subject
// must be userID.
func AuthorizedFor(c *gin.Context, userID string) bool {
	subject, ok := AuthenticatedUser(c)
	if !ok {
		return true
	}
	return subject == userID
}

// AuthenticatedUser returns the token subject when the request was authenticated
func AuthenticatedUser(c *gin.Context) (string, bool) {
	value, exists := c.Get(ContextUserID)
	if !exists {
		return "", false
	}
	subject, _ := value.(string)
	return subject, true
}
