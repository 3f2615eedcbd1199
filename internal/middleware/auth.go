package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// AuthConfig holds authentication configuration for the security API.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// AuthMiddleware protects the operator endpoints (dashboard, unblock) with
// JWT auth. The detection pipeline itself never requires auth: it has to
// judge anonymous traffic too.
type AuthMiddleware struct {
	config  *AuthConfig
	limiter *rate.Limiter
}

func NewAuthMiddleware(config *AuthConfig) *AuthMiddleware {
	// Operator API is low volume; throttle hard to blunt brute force
	// against the token check itself.
	return &AuthMiddleware{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// JWTAuth validates JWT tokens and sets user context
func (am *AuthMiddleware) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
				"code":  "RATE_LIMIT_EXCEEDED",
			})
			c.Abort()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
				"code":  "MISSING_AUTH_HEADER",
			})
			c.Abort()
			return
		}

		bearerToken := strings.Split(authHeader, " ")
		if len(bearerToken) != 2 || bearerToken[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format",
				"code":  "INVALID_AUTH_FORMAT",
			})
			c.Abort()
			return
		}

		claims, err := parseClaims(bearerToken[1], am.config.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
				"code":  "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		if am.config.Issuer != "" {
			if iss, ok := claims["iss"].(string); ok && iss != am.config.Issuer {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid token issuer",
					"code":  "INVALID_ISSUER",
				})
				c.Abort()
				return
			}
		}

		c.Set("user_id", claims["sub"])
		c.Set("user_roles", claims["roles"])
		c.Next()
	}
}

// AdminOnly restricts access to tokens carrying the admin role.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, _ := c.Get("user_roles")
		list, ok := roles.([]interface{})
		if ok {
			for _, role := range list {
				if r, ok := role.(string); ok && r == "admin" {
					c.Next()
					return
				}
			}
		}
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Admin access required",
			"code":  "ADMIN_REQUIRED",
		})
		c.Abort()
	}
}

func parseClaims(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// IdentityFromRequest extracts the user and session IDs from a bearer
// token if one is present and valid. Used by the fingerprint builder: an
// invalid or absent token just means the request is analyzed as anonymous.
func IdentityFromRequest(c *gin.Context, secret string) (userID, sessionID string) {
	authHeader := c.GetHeader("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", ""
	}
	claims, err := parseClaims(parts[1], secret)
	if err != nil {
		return "", ""
	}
	if sub, ok := claims["sub"].(string); ok {
		userID = sub
	}
	if sid, ok := claims["sid"].(string); ok {
		sessionID = sid
	}
	return userID, sessionID
}
