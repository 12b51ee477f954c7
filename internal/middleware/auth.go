// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, and audit record capture.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → Scope → FeatureGate → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth populates the caller identity, tenant, and scopes; scope checks read from
// that context. Audit capture runs last so only authorized mutations are recorded.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orgsuite/orgsuite/internal/auth"
	"github.com/orgsuite/orgsuite/internal/db/models"
	"github.com/orgsuite/orgsuite/internal/db/repositories"
)

// AuthMiddleware validates authentication (JWT or service token)
func AuthMiddleware(userRepo *repositories.UserRepository, tokenRepo *repositories.ServiceTokenRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		token = strings.TrimSpace(token)

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Authorization token is empty",
			})
			return
		}

		// JWT validation is attempted first because it is entirely stateless — it
		// requires only a cryptographic check against the JWT secret with no
		// database round-trip. Service token validation always requires a DB query
		// (prefix lookup + bcrypt comparison), so JWT is the lower-latency path
		// for browser sessions.
		if !auth.IsServiceToken(token) {
			claims, err := auth.ValidateJWT(token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"message": "Invalid credentials",
				})
				return
			}

			user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"message": "Failed to load user",
				})
				return
			}

			if user == nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"message": "User not found",
				})
				return
			}

			c.Set("user", user)
			c.Set("user_id", user.ID)
			c.Set("organization_id", claims.OrganizationID)
			c.Set("scopes", claims.Scopes)
			c.Set("auth_method", "jwt")

			c.Next()
			return
		}

		// Service token.
		// We never store the raw secret — only its bcrypt hash. The 12-character
		// prefix is stored plaintext alongside the hash so we can do a fast indexed
		// DB query to narrow the candidate set, then run the expensive bcrypt
		// comparison only on those few rows. Without the prefix, every request
		// would require scanning the entire service_tokens table and running bcrypt
		// on each row.
		svcToken, err := authenticateServiceToken(c.Request.Context(), token, tokenRepo)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Authentication failed",
			})
			return
		}

		if svcToken == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Invalid credentials",
			})
			return
		}

		if svcToken.ExpiresAt != nil && time.Now().After(*svcToken.ExpiresAt) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Service token expired",
			})
			return
		}

		// Update last-used timestamp asynchronously. This is intentionally
		// fire-and-forget: last-used tracking is best-effort — a failed update is
		// not a correctness problem. The 5-second timeout prevents leaked
		// goroutines if the DB is temporarily unreachable.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tokenRepo.UpdateLastUsed(ctx, svcToken.ID)
		}()

		c.Set("service_token", svcToken)
		c.Set("service_token_id", svcToken.ID)
		c.Set("organization_id", svcToken.OrganizationID)
		c.Set("scopes", svcToken.Scopes)
		c.Set("auth_method", "service_token")

		c.Next()
	}
}

// RequireScope aborts with 403 unless the authenticated caller holds the scope.
// Must run after AuthMiddleware.
func RequireScope(required auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes := ScopesFromContext(c)
		if !auth.HasScope(scopes, required) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "Insufficient permissions",
			})
			return
		}
		c.Next()
	}
}

// ScopesFromContext returns the caller's scopes set by AuthMiddleware.
func ScopesFromContext(c *gin.Context) []string {
	v, ok := c.Get("scopes")
	if !ok {
		return nil
	}
	scopes, _ := v.([]string)
	return scopes
}

// OrganizationFromContext returns the tenant the caller is pinned to.
// Empty means the request was not authenticated.
func OrganizationFromContext(c *gin.Context) string {
	return c.GetString("organization_id")
}

// authenticateServiceToken attempts to authenticate a service token by prefix lookup and bcrypt validation
func authenticateServiceToken(ctx context.Context, providedToken string, tokenRepo *repositories.ServiceTokenRepository) (*models.ServiceToken, error) {
	candidates, err := tokenRepo.GetByPrefix(ctx, auth.LookupPrefix(providedToken))
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		if auth.VerifyServiceToken(providedToken, candidate.TokenHash) {
			return candidate, nil
		}
	}

	return nil, nil
}
