// Package tokens implements management endpoints for service tokens, the
// machine credentials collaborating subsystems use to write audit records.
// All operations are scoped to the caller's organization; the full token value
// is returned exactly once, at creation.
package tokens

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orgsuite/orgsuite/internal/auth"
	"github.com/orgsuite/orgsuite/internal/db/models"
	"github.com/orgsuite/orgsuite/internal/db/repositories"
	"github.com/orgsuite/orgsuite/internal/middleware"
)

// Handlers handles service token management endpoints
type Handlers struct {
	tokenRepo *repositories.ServiceTokenRepository
}

// NewHandlers creates a new Handlers instance
func NewHandlers(db *sql.DB) *Handlers {
	return &Handlers{
		tokenRepo: repositories.NewServiceTokenRepository(db),
	}
}

// CreateTokenRequest represents the request to create a new service token
type CreateTokenRequest struct {
	Name      string   `json:"name" binding:"required"`
	Scopes    []string `json:"scopes" binding:"required"`
	ExpiresAt *string  `json:"expires_at"` // RFC3339 format
}

// tokenView maps a token to a JSON-friendly shape without the hash.
func tokenView(tok *models.ServiceToken) gin.H {
	var expiresAt, lastUsed interface{}
	if tok.ExpiresAt != nil {
		expiresAt = tok.ExpiresAt.Format(time.RFC3339)
	}
	if tok.LastUsedAt != nil {
		lastUsed = tok.LastUsedAt.Format(time.RFC3339)
	}
	return gin.H{
		"id":           tok.ID,
		"name":         tok.Name,
		"token_prefix": tok.TokenPrefix,
		"scopes":       tok.Scopes,
		"expires_at":   expiresAt,
		"last_used_at": lastUsed,
		"created_at":   tok.CreatedAt.Format(time.RFC3339),
	}
}

// @Summary      List service tokens
// @Description  Lists the organization's service tokens. Token hashes are never returned.
// @Tags         Service Tokens
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "List of tokens"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/service-tokens [get]
// ListTokensHandler lists the organization's service tokens.
// GET /api/v1/service-tokens
func (h *Handlers) ListTokensHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := middleware.OrganizationFromContext(c)

		toks, err := h.tokenRepo.ListByOrganization(c.Request.Context(), orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "failed to list service tokens",
			})
			return
		}

		resp := make([]gin.H, 0, len(toks))
		for _, tok := range toks {
			resp = append(resp, tokenView(tok))
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "service tokens retrieved",
			"data":    gin.H{"tokens": resp},
		})
	}
}

// @Summary      Create service token
// @Description  Creates a new service token for the organization. The full token value is only returned once.
// @Tags         Service Tokens
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateTokenRequest  true  "Token creation request"
// @Success      201  {object}  map[string]interface{}  "Token created (full value returned once)"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or scopes"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/service-tokens [post]
// CreateTokenHandler creates a new service token.
// POST /api/v1/service-tokens
func (h *Handlers) CreateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := middleware.OrganizationFromContext(c)

		var req CreateTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "invalid request body",
			})
			return
		}

		if err := auth.ValidateScopes(req.Scopes); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": err.Error(),
			})
			return
		}

		var expiresAt *time.Time
		if req.ExpiresAt != nil && *req.ExpiresAt != "" {
			t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"success": false,
					"message": "expires_at must be RFC3339",
				})
				return
			}
			if t.Before(time.Now()) {
				c.JSON(http.StatusBadRequest, gin.H{
					"success": false,
					"message": "expires_at must be in the future",
				})
				return
			}
			expiresAt = &t
		}

		plaintext, hash, prefix, err := auth.GenerateServiceToken()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "failed to generate token",
			})
			return
		}

		tok := &models.ServiceToken{
			OrganizationID: orgID,
			Name:           req.Name,
			TokenHash:      hash,
			TokenPrefix:    prefix,
			Scopes:         req.Scopes,
			ExpiresAt:      expiresAt,
		}
		if err := h.tokenRepo.Create(c.Request.Context(), tok); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "failed to create service token",
			})
			return
		}

		view := tokenView(tok)
		view["token"] = plaintext // only returned here

		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"message": "service token created",
			"data":    view,
		})
	}
}

// @Summary      Get service token
// @Description  Returns a single service token's metadata. Tokens belonging to another organization are reported as not found.
// @Tags         Service Tokens
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Token ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "Token absent or outside the caller's organization"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/service-tokens/{id} [get]
// GetTokenHandler returns a single service token's metadata.
// GET /api/v1/service-tokens/:id
func (h *Handlers) GetTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := middleware.OrganizationFromContext(c)

		tok, err := h.tokenRepo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "failed to get service token",
			})
			return
		}
		// Cross-organization lookups are indistinguishable from missing tokens.
		if tok == nil || tok.OrganizationID != orgID {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "service token not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "service token retrieved",
			"data":    tokenView(tok),
		})
	}
}

// @Summary      Revoke service token
// @Description  Permanently deletes a service token. Subsystems using it lose access immediately.
// @Tags         Service Tokens
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Token ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "Token absent or outside the caller's organization"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/service-tokens/{id} [delete]
// RevokeTokenHandler revokes a service token.
// DELETE /api/v1/service-tokens/:id
func (h *Handlers) RevokeTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := middleware.OrganizationFromContext(c)

		tok, err := h.tokenRepo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "failed to get service token",
			})
			return
		}
		if tok == nil || tok.OrganizationID != orgID {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "service token not found",
			})
			return
		}

		if err := h.tokenRepo.Revoke(c.Request.Context(), tok.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "failed to revoke service token",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "service token revoked",
		})
	}
}
