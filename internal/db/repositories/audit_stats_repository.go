// AuditStatsRepository: tenant-scoped summary statistics over the audit log
// without the caller paging through raw records.

package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/orgsuite/orgsuite/internal/apperr"
)

// AuditStatsRepository computes aggregate statistics over audit records
type AuditStatsRepository struct {
	db *sqlx.DB
}

// NewAuditStatsRepository creates a new AuditStatsRepository
func NewAuditStatsRepository(database *sqlx.DB) *AuditStatsRepository {
	return &AuditStatsRepository{db: database}
}

// ActionCount is the record count for a single action code.
type ActionCount struct {
	Action string `json:"action" db:"action"`
	Count  int64  `json:"count" db:"count"`
}

// EntityCount is the record count for a single entity type.
type EntityCount struct {
	Entity string `json:"entity" db:"entity"`
	Count  int64  `json:"count" db:"count"`
}

// DayCount is the record count for a single UTC calendar day.
type DayCount struct {
	Date  string `json:"date" db:"date"` // YYYY-MM-DD
	Count int64  `json:"count" db:"count"`
}

// AuditStats is the aggregation reporter's full result.
type AuditStats struct {
	TotalLogs      int64         `json:"totalLogs"`
	ActionCounts   []ActionCount `json:"actionCounts"`
	EntityCounts   []EntityCount `json:"entityCounts"`
	RecentActivity []DayCount    `json:"recentActivity"`
}

// Stats computes the tenant-scoped statistics bundle: total record count, the
// top 10 actions by count, counts per entity type, and a per-day activity trend
// for the trailing 7 days (UTC).
//
// Equal counts tie-break by name ascending so the ordering is reproducible
// across calls. The trend is sparse: days with zero records are omitted, not
// zero-filled.
//
// Any individual aggregate failing fails the whole call — partial statistics
// are never returned.
func (r *AuditStatsRepository) Stats(ctx context.Context, orgID string) (*AuditStats, error) {
	if orgID == "" {
		return nil, apperr.Authorization("no organization resolved for caller")
	}

	stats := &AuditStats{
		ActionCounts:   []ActionCount{},
		EntityCounts:   []EntityCount{},
		RecentActivity: []DayCount{},
	}

	if err := r.db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM audit_logs WHERE organization_id = $1`, orgID,
	).Scan(&stats.TotalLogs); err != nil {
		return nil, apperr.Store(fmt.Errorf("total count: %w", err))
	}

	if err := r.db.SelectContext(ctx, &stats.ActionCounts, `
		SELECT action, COUNT(*) AS count
		FROM audit_logs
		WHERE organization_id = $1
		GROUP BY action
		ORDER BY count DESC, action ASC
		LIMIT 10
	`, orgID); err != nil {
		return nil, apperr.Store(fmt.Errorf("action counts: %w", err))
	}

	if err := r.db.SelectContext(ctx, &stats.EntityCounts, `
		SELECT entity_type AS entity, COUNT(*) AS count
		FROM audit_logs
		WHERE organization_id = $1
		GROUP BY entity_type
		ORDER BY count DESC, entity_type ASC
	`, orgID); err != nil {
		return nil, apperr.Store(fmt.Errorf("entity counts: %w", err))
	}

	windowStart := time.Now().UTC().AddDate(0, 0, -7)
	if err := r.db.SelectContext(ctx, &stats.RecentActivity, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS date, COUNT(*) AS count
		FROM audit_logs
		WHERE organization_id = $1 AND created_at >= $2
		GROUP BY date
		ORDER BY date ASC
	`, orgID, windowStart); err != nil {
		return nil, apperr.Store(fmt.Errorf("recent activity: %w", err))
	}

	return stats, nil
}

// ActionTypes returns the distinct action codes present for the tenant,
// sorted ascending.
func (r *AuditStatsRepository) ActionTypes(ctx context.Context, orgID string) ([]string, error) {
	if orgID == "" {
		return nil, apperr.Authorization("no organization resolved for caller")
	}

	actions := []string{}
	if err := r.db.SelectContext(ctx, &actions, `
		SELECT DISTINCT action
		FROM audit_logs
		WHERE organization_id = $1
		ORDER BY action ASC
	`, orgID); err != nil {
		return nil, apperr.Store(fmt.Errorf("action types: %w", err))
	}
	return actions, nil
}
