// featuregate.go provides Gin middleware that rejects requests for tenants
// whose feature set does not include a required feature flag.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orgsuite/orgsuite/internal/db/repositories"
)

// FeatureAuditLog gates the audit log surface. Organizations without it see
// 403 on every audit endpoint.
const FeatureAuditLog = "audit-log"

// RequireFeature aborts with 403 unless the caller's organization has the
// feature enabled. Must run after AuthMiddleware so the tenant is resolved.
func RequireFeature(orgRepo *repositories.OrganizationRepository, feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := OrganizationFromContext(c)
		if orgID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Missing organization context",
			})
			return
		}

		org, err := orgRepo.GetByID(c.Request.Context(), orgID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Failed to load organization",
			})
			return
		}

		if org == nil || !org.HasFeature(feature) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "Feature not enabled for this organization",
			})
			return
		}

		c.Set("organization", org)
		c.Next()
	}
}
