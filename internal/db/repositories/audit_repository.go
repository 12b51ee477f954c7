// AuditRepository: filtered, paginated reads of the append-only audit_logs
// table, single-record tenant-checked lookup, record creation, and the bulk
// retention sweep. Aggregate statistics live in audit_stats_repository.go.

package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/orgsuite/orgsuite/internal/apperr"
	"github.com/orgsuite/orgsuite/internal/db/models"
)

const (
	// DefaultPageLimit is used when the caller supplies no limit.
	DefaultPageLimit = 20
	// MaxPageLimit caps a single page to keep result sets bounded.
	MaxPageLimit = 200
)

// AuditRepository handles audit record database operations
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilter is a validated, tenant-scoped predicate over audit records.
// OrganizationID is always set by BuildAuditFilter and cannot be overridden by
// request input — tenant scoping is a security invariant, not a default.
type AuditFilter struct {
	OrganizationID string
	Action         *string
	EntityType     *string
	PerformedBy    *string
	StartDate      *time.Time
	EndDate        *time.Time
	Search         *string

	// MatchNone marks a filter that can never match: the caller supplied an
	// action or entity type outside the closed enum. This yields an empty
	// result rather than an error.
	MatchNone bool
}

// FilterParams carries the raw, optional query parameters of a list request.
// All fields are untrusted strings; empty means "not supplied".
type FilterParams struct {
	Action      string
	EntityType  string
	PerformedBy string
	StartDate   string
	EndDate     string
	Search      string
}

// BuildAuditFilter validates raw request parameters against orgID's tenant
// scope and produces the predicate used by List.
//
// Date semantics: startDate alone matches created_at >= startDate; endDate
// alone matches created_at <= endDate; both form an inclusive range. Dates
// parse as RFC 3339 or as a bare UTC calendar date (2006-01-02); anything else
// is a validation error.
func BuildAuditFilter(orgID string, p FilterParams) (AuditFilter, error) {
	if orgID == "" {
		return AuditFilter{}, apperr.Authorization("no organization resolved for caller")
	}

	f := AuditFilter{OrganizationID: orgID}

	if p.Action != "" {
		if models.IsValidAction(p.Action) {
			action := p.Action
			f.Action = &action
		} else {
			// Unknown action: no record can carry it, so the filter matches nothing.
			f.MatchNone = true
		}
	}

	if p.EntityType != "" {
		if models.IsValidEntityType(p.EntityType) {
			entityType := p.EntityType
			f.EntityType = &entityType
		} else {
			f.MatchNone = true
		}
	}

	if p.PerformedBy != "" {
		performedBy := p.PerformedBy
		f.PerformedBy = &performedBy
	}

	if p.StartDate != "" {
		t, err := parseDateParam(p.StartDate)
		if err != nil {
			return AuditFilter{}, apperr.Validationf("startDate", "invalid date %q", p.StartDate)
		}
		f.StartDate = &t
	}

	if p.EndDate != "" {
		t, err := parseDateParam(p.EndDate)
		if err != nil {
			return AuditFilter{}, apperr.Validationf("endDate", "invalid date %q", p.EndDate)
		}
		f.EndDate = &t
	}

	if p.Search != "" {
		search := p.Search
		f.Search = &search
	}

	return f, nil
}

// parseDateParam accepts RFC 3339 timestamps or bare UTC calendar dates.
func parseDateParam(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

// escapeLike escapes LIKE wildcards in a user-supplied search term so the term
// is matched literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// Pagination describes one page of a larger result set.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// whereClause renders the filter as a SQL predicate with positional args.
// The tenant condition always comes first.
func (f *AuditFilter) whereClause() (string, []interface{}) {
	var sb strings.Builder
	args := make([]interface{}, 0, 7)

	sb.WriteString(" WHERE a.organization_id = $1")
	args = append(args, f.OrganizationID)

	if f.Action != nil {
		args = append(args, *f.Action)
		fmt.Fprintf(&sb, " AND a.action = $%d", len(args))
	}
	if f.EntityType != nil {
		args = append(args, *f.EntityType)
		fmt.Fprintf(&sb, " AND a.entity_type = $%d", len(args))
	}
	if f.PerformedBy != nil {
		args = append(args, *f.PerformedBy)
		fmt.Fprintf(&sb, " AND a.performed_by = $%d", len(args))
	}
	if f.StartDate != nil {
		args = append(args, *f.StartDate)
		fmt.Fprintf(&sb, " AND a.created_at >= $%d", len(args))
	}
	if f.EndDate != nil {
		args = append(args, *f.EndDate)
		fmt.Fprintf(&sb, " AND a.created_at <= $%d", len(args))
	}
	if f.Search != nil {
		args = append(args, "%"+escapeLike(*f.Search)+"%")
		fmt.Fprintf(&sb, " AND (a.description ILIKE $%d OR a.entity_name ILIKE $%d)", len(args), len(args))
	}

	return sb.String(), args
}

// List executes the filter and returns one page of records, most recent first,
// each joined with the actor's display identity where performed_by is set.
// Page is coerced to >= 1; limit defaults to DefaultPageLimit and is capped at
// MaxPageLimit. The sort order is fixed and not configurable.
func (r *AuditRepository) List(ctx context.Context, filter AuditFilter, page, limit int) ([]*models.AuditRecord, Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	if filter.MatchNone {
		return []*models.AuditRecord{}, Pagination{Total: 0, Page: page, Limit: limit, TotalPages: 0}, nil
	}

	where, args := filter.whereClause()

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_logs a` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, Pagination{}, apperr.Store(fmt.Errorf("count audit records: %w", err))
	}

	query := `
		SELECT a.id, a.action, a.entity_type, a.entity_id, a.entity_name, a.description,
		       a.performed_by, a.organization_id, a.ip_address, a.user_agent, a.metadata, a.created_at,
		       u.id, u.name, u.email, u.avatar_url
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.performed_by
	` + where
	args = append(args, limit, (page-1)*limit)
	query += fmt.Sprintf(" ORDER BY a.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Pagination{}, apperr.Store(fmt.Errorf("list audit records: %w", err))
	}
	defer rows.Close()

	records := make([]*models.AuditRecord, 0)
	for rows.Next() {
		rec, err := scanAuditRecordWithActor(rows)
		if err != nil {
			return nil, Pagination{}, apperr.Store(fmt.Errorf("scan audit record: %w", err))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, Pagination{}, apperr.Store(err)
	}

	pg := Pagination{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}
	return records, pg, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuditRecordWithActor(row rowScanner) (*models.AuditRecord, error) {
	rec := &models.AuditRecord{}
	var metadataJSON []byte
	var actorID, actorName, actorEmail, actorAvatar sql.NullString

	err := row.Scan(
		&rec.ID,
		&rec.Action,
		&rec.EntityType,
		&rec.EntityID,
		&rec.EntityName,
		&rec.Description,
		&rec.PerformedBy,
		&rec.OrganizationID,
		&rec.IPAddress,
		&rec.UserAgent,
		&metadataJSON,
		&rec.CreatedAt,
		&actorID,
		&actorName,
		&actorEmail,
		&actorAvatar,
	)
	if err != nil {
		return nil, err
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, err
		}
	}

	// The actor snapshot is attached only when the join found a live user row.
	// A nil Actor means a system action or a since-deleted user; the caller
	// renders "system"/"unknown" — no placeholder identity is synthesized here.
	if actorID.Valid {
		rec.Actor = &models.ActorIdentity{
			ID:    actorID.String,
			Name:  actorName.String,
			Email: actorEmail.String,
		}
		if actorAvatar.Valid {
			avatar := actorAvatar.String
			rec.Actor.AvatarURL = &avatar
		}
	}

	return rec, nil
}

// GetByID retrieves a single record by id within orgID's tenant scope.
// A record belonging to another tenant is reported exactly like a missing
// record (nil, nil) so existence does not leak across tenants.
func (r *AuditRepository) GetByID(ctx context.Context, orgID, recordID string) (*models.AuditRecord, error) {
	query := `
		SELECT a.id, a.action, a.entity_type, a.entity_id, a.entity_name, a.description,
		       a.performed_by, a.organization_id, a.ip_address, a.user_agent, a.metadata, a.created_at,
		       u.id, u.name, u.email, u.avatar_url
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.performed_by
		WHERE a.id = $1 AND a.organization_id = $2
	`

	rec, err := scanAuditRecordWithActor(r.db.QueryRowContext(ctx, query, recordID, orgID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store(fmt.Errorf("get audit record: %w", err))
	}
	return rec, nil
}

// Create inserts a new audit record. ID and CreatedAt are assigned here;
// records are immutable afterwards — no update path exists.
func (r *AuditRepository) Create(ctx context.Context, rec *models.AuditRecord) error {
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC()

	var metadataJSON []byte
	var err error
	if rec.Metadata != nil {
		metadataJSON, err = json.Marshal(rec.Metadata)
		if err != nil {
			return apperr.Store(fmt.Errorf("marshal audit metadata: %w", err))
		}
	}

	query := `
		INSERT INTO audit_logs (id, action, entity_type, entity_id, entity_name, description,
		                        performed_by, organization_id, ip_address, user_agent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Action,
		rec.EntityType,
		rec.EntityID,
		rec.EntityName,
		rec.Description,
		rec.PerformedBy,
		rec.OrganizationID,
		rec.IPAddress,
		rec.UserAgent,
		metadataJSON,
		rec.CreatedAt,
	)
	if err != nil {
		return apperr.Store(fmt.Errorf("insert audit record: %w", err))
	}
	return nil
}

// DeleteOlderThan permanently deletes records whose created_at is older than
// daysToKeep days, returning the number of rows removed. With orgID empty the
// sweep is system-wide; otherwise it is limited to that tenant. The delete is
// a single bulk statement — no soft-delete, no archival copy.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, orgID string, daysToKeep int) (int64, error) {
	if daysToKeep < 1 {
		return 0, apperr.Validation("daysToKeep", "must be a positive integer")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -daysToKeep)

	var res sql.Result
	var err error
	if orgID == "" {
		res, err = r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	} else {
		res, err = r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1 AND organization_id = $2`, cutoff, orgID)
	}
	if err != nil {
		return 0, apperr.Store(fmt.Errorf("retention sweep: %w", err))
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Store(err)
	}
	return deleted, nil
}
