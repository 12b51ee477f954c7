package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/orgsuite/orgsuite/internal/apperr"
	"github.com/orgsuite/orgsuite/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var auditCols = []string{
	"id", "action", "entity_type", "entity_id", "entity_name", "description",
	"performed_by", "organization_id", "ip_address", "user_agent", "metadata", "created_at",
	"u_id", "u_name", "u_email", "u_avatar_url",
}

var countCols = []string{"count"}

// ---------------------------------------------------------------------------
// Row builders
// ---------------------------------------------------------------------------

func sampleAuditRow() *sqlmock.Rows {
	return sqlmock.NewRows(auditCols).
		AddRow("log-1", "USER_CREATED", "User", "user-2", "Jane Doe", "created user Jane Doe",
			"user-1", "org-1", "10.0.0.1", "curl/8.0", []byte(`{"role":"member"}`), time.Now(),
			"user-1", "Admin One", "admin@example.com", nil)
}

func systemAuditRow() *sqlmock.Rows {
	return sqlmock.NewRows(auditCols).
		AddRow("log-2", "ORGANIZATION_UPDATED", "Organization", "org-1", "Acme", "plan changed",
			nil, "org-1", nil, nil, nil, time.Now(),
			nil, nil, nil, nil)
}

func emptyAuditRows() *sqlmock.Rows {
	return sqlmock.NewRows(auditCols)
}

func countRow(n int) *sqlmock.Rows {
	return sqlmock.NewRows(countCols).AddRow(n)
}

func newAuditRepo(t *testing.T) (*AuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAuditRepository(db), mock
}

// ---------------------------------------------------------------------------
// BuildAuditFilter
// ---------------------------------------------------------------------------

func TestBuildAuditFilter_MissingOrg(t *testing.T) {
	_, err := BuildAuditFilter("", FilterParams{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if apperr.KindOf(err) != apperr.KindAuthorization {
		t.Errorf("kind = %v, want authorization", apperr.KindOf(err))
	}
}

func TestBuildAuditFilter_ValidParams(t *testing.T) {
	f, err := BuildAuditFilter("org-1", FilterParams{
		Action:      "USER_CREATED",
		EntityType:  "User",
		PerformedBy: "user-1",
		StartDate:   "2026-01-01",
		EndDate:     "2026-02-01T12:00:00Z",
		Search:      "jane",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.OrganizationID != "org-1" {
		t.Errorf("OrganizationID = %s, want org-1", f.OrganizationID)
	}
	if f.Action == nil || *f.Action != "USER_CREATED" {
		t.Error("action not carried through")
	}
	if f.StartDate == nil || !f.StartDate.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartDate = %v, want 2026-01-01 UTC", f.StartDate)
	}
	if f.MatchNone {
		t.Error("MatchNone set for valid params")
	}
}

func TestBuildAuditFilter_UnknownAction(t *testing.T) {
	f, err := BuildAuditFilter("org-1", FilterParams{Action: "SOMETHING_ELSE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.MatchNone {
		t.Error("expected MatchNone for unknown action")
	}
}

func TestBuildAuditFilter_UnknownEntityType(t *testing.T) {
	f, err := BuildAuditFilter("org-1", FilterParams{EntityType: "Spaceship"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.MatchNone {
		t.Error("expected MatchNone for unknown entity type")
	}
}

func TestBuildAuditFilter_BadDate(t *testing.T) {
	_, err := BuildAuditFilter("org-1", FilterParams{StartDate: "last tuesday"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("kind = %v, want validation", apperr.KindOf(err))
	}
	if apperr.FieldOf(err) != "startDate" {
		t.Errorf("field = %s, want startDate", apperr.FieldOf(err))
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestListAudit_Success(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs").
		WithArgs("org-1").
		WillReturnRows(countRow(41))
	mock.ExpectQuery("SELECT.*FROM audit_logs.*LEFT JOIN users").
		WithArgs("org-1", 20, 0).
		WillReturnRows(sampleAuditRow())

	records, pg, err := repo.List(context.Background(), AuditFilter{OrganizationID: "org-1"}, 1, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if records[0].Actor == nil || records[0].Actor.Name != "Admin One" {
		t.Error("actor identity not attached from join")
	}
	if records[0].Metadata["role"] != "member" {
		t.Errorf("metadata not unmarshalled: %v", records[0].Metadata)
	}
	if pg.Total != 41 || pg.TotalPages != 3 {
		t.Errorf("pagination = %+v, want total 41 totalPages 3", pg)
	}
}

func TestListAudit_SystemActorIsNil(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs").
		WillReturnRows(countRow(1))
	mock.ExpectQuery("SELECT.*FROM audit_logs").
		WillReturnRows(systemAuditRow())

	records, _, err := repo.List(context.Background(), AuditFilter{OrganizationID: "org-1"}, 1, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].Actor != nil {
		t.Error("expected nil actor for record with no performed_by")
	}
}

func TestListAudit_MatchNoneShortCircuits(t *testing.T) {
	repo, mock := newAuditRepo(t)
	// No expectations: the database must not be touched.

	records, pg, err := repo.List(context.Background(), AuditFilter{OrganizationID: "org-1", MatchNone: true}, 1, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
	if pg.Total != 0 || pg.TotalPages != 0 {
		t.Errorf("pagination = %+v, want zero totals", pg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected db access: %v", err)
	}
}

func TestListAudit_CoercesPageAndLimit(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs").
		WillReturnRows(countRow(0))
	mock.ExpectQuery("SELECT.*FROM audit_logs").
		WithArgs("org-1", MaxPageLimit, 0).
		WillReturnRows(emptyAuditRows())

	_, pg, err := repo.List(context.Background(), AuditFilter{OrganizationID: "org-1"}, -3, 9999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pg.Page != 1 {
		t.Errorf("Page = %d, want 1", pg.Page)
	}
	if pg.Limit != MaxPageLimit {
		t.Errorf("Limit = %d, want %d", pg.Limit, MaxPageLimit)
	}
}

func TestListAudit_FilterArgsOrdered(t *testing.T) {
	repo, mock := newAuditRepo(t)
	action := "USER_CREATED"
	search := "50%_off"
	filter := AuditFilter{OrganizationID: "org-1", Action: &action, Search: &search}

	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs").
		WithArgs("org-1", "USER_CREATED", `%50\%\_off%`).
		WillReturnRows(countRow(2))
	mock.ExpectQuery("SELECT.*FROM audit_logs").
		WithArgs("org-1", "USER_CREATED", `%50\%\_off%`, 20, 0).
		WillReturnRows(emptyAuditRows())

	if _, _, err := repo.List(context.Background(), filter, 1, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestListAudit_CountError(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs").
		WillReturnError(errDB)

	_, _, err := repo.List(context.Background(), AuditFilter{OrganizationID: "org-1"}, 1, 20)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if apperr.KindOf(err) != apperr.KindStore {
		t.Errorf("kind = %v, want store", apperr.KindOf(err))
	}
}

// ---------------------------------------------------------------------------
// GetByID
// ---------------------------------------------------------------------------

func TestGetAuditByID_Found(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT.*FROM audit_logs.*WHERE").
		WithArgs("log-1", "org-1").
		WillReturnRows(sampleAuditRow())

	rec, err := repo.GetByID(context.Background(), "org-1", "log-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record, got nil")
	}
	if rec.Action != "USER_CREATED" {
		t.Errorf("Action = %s, want USER_CREATED", rec.Action)
	}
}

func TestGetAuditByID_WrongTenant(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT.*FROM audit_logs.*WHERE").
		WithArgs("log-1", "org-other").
		WillReturnRows(emptyAuditRows())

	rec, err := repo.GetByID(context.Background(), "org-other", "log-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Error("expected nil record for cross-tenant lookup")
	}
}

func TestGetAuditByID_DBError(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT.*FROM audit_logs.*WHERE").
		WillReturnError(errDB)

	_, err := repo.GetByID(context.Background(), "org-1", "log-1")
	if err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreateAudit_Success(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &models.AuditRecord{
		Action:         "TASK_COMPLETED",
		EntityType:     "Task",
		Description:    "completed task",
		OrganizationID: "org-1",
		Metadata:       map[string]interface{}{"boardId": "board-1"},
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected generated ID")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestCreateAudit_DBError(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnError(errDB)

	err := repo.Create(context.Background(), &models.AuditRecord{
		Action:         "OTHER",
		EntityType:     "Other",
		OrganizationID: "org-1",
	})
	if err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// DeleteOlderThan
// ---------------------------------------------------------------------------

func TestDeleteOlderThan_TenantScoped(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("DELETE FROM audit_logs WHERE created_at.*organization_id").
		WillReturnResult(sqlmock.NewResult(0, 17))

	deleted, err := repo.DeleteOlderThan(context.Background(), "org-1", 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 17 {
		t.Errorf("deleted = %d, want 17", deleted)
	}
}

func TestDeleteOlderThan_SystemWide(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("DELETE FROM audit_logs WHERE created_at").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	deleted, err := repo.DeleteOlderThan(context.Background(), "", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
}

func TestDeleteOlderThan_RejectsNonPositiveDays(t *testing.T) {
	repo, _ := newAuditRepo(t)

	for _, days := range []int{0, -5} {
		_, err := repo.DeleteOlderThan(context.Background(), "org-1", days)
		if err == nil {
			t.Errorf("daysToKeep=%d: expected error, got nil", days)
			continue
		}
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("daysToKeep=%d: kind = %v, want validation", days, apperr.KindOf(err))
		}
	}
}

func TestDeleteOlderThan_DBError(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("DELETE FROM audit_logs").
		WillReturnError(errDB)

	_, err := repo.DeleteOlderThan(context.Background(), "org-1", 30)
	if err == nil {
		t.Error("expected error, got nil")
	}
}
