// audit.go provides Gin middleware that records authenticated write operations
// as audit records, with optional shipping to external destinations.
package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orgsuite/orgsuite/internal/audit"
	"github.com/orgsuite/orgsuite/internal/db/models"
	"github.com/orgsuite/orgsuite/internal/safego"
)

// AuditRecorder persists a single audit record. Satisfied by
// *repositories.AuditRepository.
type AuditRecorder interface {
	Create(ctx context.Context, rec *models.AuditRecord) error
}

// AuditMiddleware records authenticated write operations to the audit store only
func AuditMiddleware(auditRepo AuditRecorder) gin.HandlerFunc {
	return AuditMiddlewareWithShipper(auditRepo, nil)
}

// AuditMiddlewareWithShipper records authenticated write operations and ships
// them to external destinations. Records are written asynchronously so the
// response is never delayed by audit persistence; a failed write is logged,
// not surfaced to the caller.
func AuditMiddlewareWithShipper(auditRepo AuditRecorder, shipper audit.Shipper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == "OPTIONS" || c.Request.Method == "GET" || c.Request.Method == "HEAD" {
			return
		}

		// Only successful, authorized mutations become audit records.
		if c.Writer.Status() >= 400 {
			return
		}

		orgID := OrganizationFromContext(c)
		if orgID == "" {
			return
		}

		// The ingest endpoint writes its own records; recording the HTTP call
		// around it would double every entry.
		if c.GetBool("audit_recorded") {
			return
		}

		rec := &models.AuditRecord{
			Action:         deriveAction(c),
			EntityType:     deriveEntityType(c.Request.URL.Path),
			Description:    c.Request.Method + " " + c.Request.URL.Path,
			OrganizationID: orgID,
		}

		if userID := c.GetString("user_id"); userID != "" {
			rec.PerformedBy = &userID
		}
		ip := c.ClientIP()
		if ip != "" {
			rec.IPAddress = &ip
		}
		if ua := c.Request.UserAgent(); ua != "" {
			rec.UserAgent = &ua
		}

		authMethod := c.GetString("auth_method")
		rec.Metadata = map[string]interface{}{
			"status_code": c.Writer.Status(),
			"auth_method": authMethod,
		}

		// The gin context is recycled once the handler returns; everything the
		// goroutine needs is captured above.
		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if auditRepo != nil {
				if err := auditRepo.Create(ctx, rec); err != nil {
					slog.Error("failed to persist audit record", "error", err, "action", rec.Action)
				}
			}

			if shipper != nil {
				entry := &audit.LogEntry{
					Timestamp:      rec.CreatedAt,
					Action:         string(rec.Action),
					EntityType:     string(rec.EntityType),
					Description:    rec.Description,
					OrganizationID: rec.OrganizationID,
					AuthMethod:     authMethod,
					Metadata:       rec.Metadata,
				}
				if rec.PerformedBy != nil {
					entry.PerformedBy = *rec.PerformedBy
				}
				if rec.IPAddress != nil {
					entry.IPAddress = *rec.IPAddress
				}
				if err := shipper.Ship(ctx, entry); err != nil {
					slog.Error("failed to ship audit record", "error", err, "action", rec.Action)
				}
			}
		})
	}
}

// deriveAction maps a mutating request to an action code from the closed enum.
// Requests that touch resources outside the enum fall back to OTHER.
func deriveAction(c *gin.Context) models.AuditAction {
	entity := deriveEntityType(c.Request.URL.Path)
	if entity == models.EntityOther {
		return models.ActionOther
	}

	var suffix string
	switch c.Request.Method {
	case "POST":
		suffix = "_CREATED"
	case "PUT", "PATCH":
		suffix = "_UPDATED"
	case "DELETE":
		suffix = "_DELETED"
	default:
		return models.ActionOther
	}

	action := strings.ToUpper(string(entity)) + suffix
	if models.IsValidAction(action) {
		return models.AuditAction(action)
	}
	return models.ActionOther
}

// deriveEntityType inspects the URL path for a known entity segment.
func deriveEntityType(path string) models.EntityType {
	switch {
	case strings.Contains(path, "/organizations"):
		return models.EntityOrganization
	case strings.Contains(path, "/users"):
		return models.EntityUser
	case strings.Contains(path, "/projects"):
		return models.EntityProject
	case strings.Contains(path, "/roles"):
		return models.EntityRole
	case strings.Contains(path, "/grievances"):
		return models.EntityGrievance
	case strings.Contains(path, "/departments"):
		return models.EntityDepartment
	case strings.Contains(path, "/tasks"):
		return models.EntityTask
	case strings.Contains(path, "/boards"):
		return models.EntityBoard
	default:
		return models.EntityOther
	}
}
