// Package auditlogs implements the audit log query and reporting endpoints.
// All handlers operate within the tenant resolved by the auth middleware;
// the organization id is never read from request parameters. Responses use
// the envelope {success, message, data}.
package auditlogs

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/orgsuite/orgsuite/internal/apperr"
	"github.com/orgsuite/orgsuite/internal/audit"
	"github.com/orgsuite/orgsuite/internal/config"
	"github.com/orgsuite/orgsuite/internal/db/models"
	"github.com/orgsuite/orgsuite/internal/db/repositories"
	"github.com/orgsuite/orgsuite/internal/middleware"
	"github.com/orgsuite/orgsuite/internal/safego"
	"github.com/orgsuite/orgsuite/internal/telemetry"
)

// Handlers handles audit log API requests
type Handlers struct {
	cfg       *config.Config
	auditRepo *repositories.AuditRepository
	statsRepo *repositories.AuditStatsRepository
	shipper   audit.Shipper
}

// NewHandlers creates a new Handlers instance
func NewHandlers(cfg *config.Config, db *sql.DB, sqlxDB *sqlx.DB) *Handlers {
	return &Handlers{
		cfg:       cfg,
		auditRepo: repositories.NewAuditRepository(db),
		statsRepo: repositories.NewAuditStatsRepository(sqlxDB),
	}
}

// SetShipper attaches an external shipper so explicitly ingested records reach
// the same destinations as middleware-captured ones.
func (h *Handlers) SetShipper(s audit.Shipper) {
	h.shipper = s
}

// respond writes the standard response envelope.
func respond(c *gin.Context, status int, message string, data interface{}) {
	body := gin.H{
		"success": status < 400,
		"message": message,
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// respondError maps an error to an HTTP status via its apperr kind. Store
// errors are logged with their cause and surfaced as a generic message.
func respondError(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		respond(c, http.StatusBadRequest, err.Error(), nil)
	case apperr.KindAuthorization:
		respond(c, http.StatusForbidden, err.Error(), nil)
	case apperr.KindNotFound:
		respond(c, http.StatusNotFound, err.Error(), nil)
	default:
		slog.Error("audit endpoint failure", "error", err, "path", c.FullPath())
		respond(c, http.StatusInternalServerError, "internal error", nil)
	}
}

// parsePageParam parses a pagination query parameter, rejecting non-numeric
// input rather than silently defaulting it.
func parsePageParam(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validationf(name, "must be an integer, got %q", raw)
	}
	return n, nil
}

// @Summary      List audit logs
// @Description  Returns a filtered, paginated page of the tenant's audit records, most recent first.
// @Tags         Audit Logs
// @Security     Bearer
// @Produce      json
// @Param        page          query  int     false  "Page number (default 1)"
// @Param        limit         query  int     false  "Page size (default 20, max 200)"
// @Param        action        query  string  false  "Filter by action code"
// @Param        entity_type   query  string  false  "Filter by entity type"
// @Param        performed_by  query  string  false  "Filter by actor user ID"
// @Param        startDate     query  string  false  "Inclusive lower bound (RFC3339 or YYYY-MM-DD)"
// @Param        endDate       query  string  false  "Inclusive upper bound (RFC3339 or YYYY-MM-DD)"
// @Param        search        query  string  false  "Substring match over description and entity name"
// @Success      200  {object}  map[string]interface{}  "records and pagination"
// @Failure      400  {object}  map[string]interface{}  "Invalid filter or pagination parameter"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/audit-logs [get]
// ListHandler lists the tenant's audit records.
// GET /api/v1/audit-logs
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := middleware.OrganizationFromContext(c)

		page, err := parsePageParam(c, "page", 1)
		if err != nil {
			respondError(c, err)
			return
		}
		limit, err := parsePageParam(c, "limit", repositories.DefaultPageLimit)
		if err != nil {
			respondError(c, err)
			return
		}

		filter, err := repositories.BuildAuditFilter(orgID, repositories.FilterParams{
			Action:      c.Query("action"),
			EntityType:  c.Query("entity_type"),
			PerformedBy: c.Query("performed_by"),
			StartDate:   c.Query("startDate"),
			EndDate:     c.Query("endDate"),
			Search:      c.Query("search"),
		})
		if err != nil {
			respondError(c, err)
			return
		}

		records, pagination, err := h.auditRepo.List(c.Request.Context(), filter, page, limit)
		if err != nil {
			respondError(c, err)
			return
		}

		telemetry.AuditQueriesTotal.WithLabelValues("list").Inc()
		respond(c, http.StatusOK, "audit logs retrieved", gin.H{
			"records":    records,
			"pagination": pagination,
		})
	}
}

// @Summary      Get audit log
// @Description  Returns a single audit record by ID. Records belonging to another tenant are reported as not found.
// @Tags         Audit Logs
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Audit record ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "Record absent or outside the caller's tenant"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/audit-logs/{id} [get]
// GetHandler returns a single audit record.
// GET /api/v1/audit-logs/:id
func (h *Handlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := middleware.OrganizationFromContext(c)

		rec, err := h.auditRepo.GetByID(c.Request.Context(), orgID, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if rec == nil {
			respondError(c, apperr.NotFound("audit log not found"))
			return
		}

		telemetry.AuditQueriesTotal.WithLabelValues("get").Inc()
		respond(c, http.StatusOK, "audit log retrieved", rec)
	}
}

// @Summary      Audit log statistics
// @Description  Returns aggregate statistics for the tenant: total record count, top actions, entity breakdown, and a 7-day activity trend.
// @Tags         Audit Logs
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  repositories.AuditStats
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/audit-logs/stats [get]
// StatsHandler returns the tenant's aggregate statistics.
// GET /api/v1/audit-logs/stats
func (h *Handlers) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := middleware.OrganizationFromContext(c)

		stats, err := h.statsRepo.Stats(c.Request.Context(), orgID)
		if err != nil {
			respondError(c, err)
			return
		}

		telemetry.AuditQueriesTotal.WithLabelValues("stats").Inc()
		respond(c, http.StatusOK, "audit statistics retrieved", stats)
	}
}

// @Summary      Distinct action types
// @Description  Returns the distinct action codes present in the tenant's audit log, sorted ascending.
// @Tags         Audit Logs
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "actionTypes"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/audit-logs/action-types [get]
// ActionTypesHandler returns the distinct actions present for the tenant.
// GET /api/v1/audit-logs/action-types
func (h *Handlers) ActionTypesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := middleware.OrganizationFromContext(c)

		actions, err := h.statsRepo.ActionTypes(c.Request.Context(), orgID)
		if err != nil {
			respondError(c, err)
			return
		}

		telemetry.AuditQueriesTotal.WithLabelValues("action_types").Inc()
		respond(c, http.StatusOK, "action types retrieved", gin.H{"actionTypes": actions})
	}
}

// CreateAuditLogRequest represents an explicit audit record ingest request.
type CreateAuditLogRequest struct {
	Action      string                 `json:"action" binding:"required"`
	EntityType  string                 `json:"entityType" binding:"required"`
	EntityID    *string                `json:"entityId"`
	EntityName  *string                `json:"entityName"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// @Summary      Ingest audit record
// @Description  Writes an audit record on behalf of a collaborating subsystem. Action and entity type must come from the closed enums.
// @Tags         Audit Logs
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateAuditLogRequest  true  "Audit record"
// @Success      201  {object}  models.AuditRecord
// @Failure      400  {object}  map[string]interface{}  "Unknown action or entity type"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/audit-logs [post]
// CreateHandler ingests an audit record supplied by a collaborating subsystem.
// POST /api/v1/audit-logs
func (h *Handlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := middleware.OrganizationFromContext(c)

		var req CreateAuditLogRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.Validation("body", "invalid request body"))
			return
		}
		if !models.IsValidAction(req.Action) {
			respondError(c, apperr.Validationf("action", "unknown action %q", req.Action))
			return
		}
		if !models.IsValidEntityType(req.EntityType) {
			respondError(c, apperr.Validationf("entityType", "unknown entity type %q", req.EntityType))
			return
		}

		rec := &models.AuditRecord{
			Action:         models.AuditAction(req.Action),
			EntityType:     models.EntityType(req.EntityType),
			EntityID:       req.EntityID,
			EntityName:     req.EntityName,
			Description:    req.Description,
			OrganizationID: orgID,
			Metadata:       req.Metadata,
		}
		if userID := c.GetString("user_id"); userID != "" {
			rec.PerformedBy = &userID
		}
		if ip := c.ClientIP(); ip != "" {
			rec.IPAddress = &ip
		}
		if ua := c.Request.UserAgent(); ua != "" {
			rec.UserAgent = &ua
		}

		if err := h.auditRepo.Create(c.Request.Context(), rec); err != nil {
			respondError(c, err)
			return
		}

		// Stop the surrounding middleware from recording the HTTP call itself.
		c.Set("audit_recorded", true)
		telemetry.AuditRecordsWrittenTotal.WithLabelValues(req.Action).Inc()

		if h.shipper != nil {
			entry := &audit.LogEntry{
				Timestamp:      rec.CreatedAt,
				Action:         string(rec.Action),
				EntityType:     string(rec.EntityType),
				Description:    rec.Description,
				OrganizationID: rec.OrganizationID,
				AuthMethod:     c.GetString("auth_method"),
				Metadata:       rec.Metadata,
			}
			if rec.EntityID != nil {
				entry.EntityID = *rec.EntityID
			}
			if rec.EntityName != nil {
				entry.EntityName = *rec.EntityName
			}
			if rec.PerformedBy != nil {
				entry.PerformedBy = *rec.PerformedBy
			}
			if rec.IPAddress != nil {
				entry.IPAddress = *rec.IPAddress
			}
			shipper := h.shipper
			safego.Go(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shipper.Ship(ctx, entry); err != nil {
					telemetry.AuditShipErrorsTotal.WithLabelValues("ingest").Inc()
					slog.Error("failed to ship audit record", "error", err, "action", entry.Action)
				}
			})
		}

		respond(c, http.StatusCreated, "audit log recorded", rec)
	}
}

// PurgeRequest carries the retention window for an ad-hoc purge.
type PurgeRequest struct {
	DaysToKeep int `json:"daysToKeep" binding:"required"`
}

// @Summary      Purge old audit logs
// @Description  Permanently deletes the tenant's audit records older than daysToKeep days. Bounded by the configured retention window.
// @Tags         Audit Logs
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  PurgeRequest  true  "Retention window"
// @Success      200  {object}  map[string]interface{}  "deletedCount"
// @Failure      400  {object}  map[string]interface{}  "daysToKeep outside the configured bounds"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/audit-logs [delete]
// PurgeHandler deletes the tenant's records older than the requested window.
// DELETE /api/v1/audit-logs
func (h *Handlers) PurgeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := middleware.OrganizationFromContext(c)

		var req PurgeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.Validation("daysToKeep", "must be a positive integer"))
			return
		}

		minDays := h.cfg.Audit.Retention.MinDays
		maxDays := h.cfg.Audit.Retention.MaxDays
		if req.DaysToKeep < minDays || req.DaysToKeep > maxDays {
			respondError(c, apperr.Validationf("daysToKeep",
				"must be between %d and %d", minDays, maxDays))
			return
		}

		deleted, err := h.auditRepo.DeleteOlderThan(c.Request.Context(), orgID, req.DaysToKeep)
		if err != nil {
			respondError(c, err)
			return
		}

		telemetry.AuditRetentionDeletedTotal.Add(float64(deleted))
		slog.Info("audit logs purged",
			"organization_id", orgID,
			"days_to_keep", req.DaysToKeep,
			"deleted", deleted,
		)
		respond(c, http.StatusOK, "audit logs purged", gin.H{"deletedCount": deleted})
	}
}
