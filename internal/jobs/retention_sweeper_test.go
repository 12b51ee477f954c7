package jobs

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/orgsuite/orgsuite/internal/config"
	"github.com/orgsuite/orgsuite/internal/db/repositories"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newSweeperConfig(enabled bool, days int) *config.RetentionConfig {
	return &config.RetentionConfig{
		Enabled:       enabled,
		Days:          days,
		IntervalHours: 24,
	}
}

func newAuditRepoForSweeper(t *testing.T) (*repositories.AuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repositories.NewAuditRepository(db), mock
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewRetentionSweeper_DefaultInterval(t *testing.T) {
	cfg := newSweeperConfig(true, 90)
	cfg.IntervalHours = 0 // should default to 24

	s := NewRetentionSweeper(nil, cfg)
	if s.interval != 24*time.Hour {
		t.Errorf("interval = %v, want 24h", s.interval)
	}
}

func TestNewRetentionSweeper_CustomInterval(t *testing.T) {
	cfg := newSweeperConfig(true, 90)
	cfg.IntervalHours = 6

	s := NewRetentionSweeper(nil, cfg)
	if s.interval != 6*time.Hour {
		t.Errorf("interval = %v, want 6h", s.interval)
	}
}

// ---------------------------------------------------------------------------
// Start — early exits
// ---------------------------------------------------------------------------

func sweeperStartReturnsQuickly(t *testing.T, s *RetentionSweeper, reason string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Errorf("Start did not return quickly when %s", reason)
	}
}

func TestRetentionSweeper_Start_Disabled(t *testing.T) {
	s := NewRetentionSweeper(nil, newSweeperConfig(false, 90))
	sweeperStartReturnsQuickly(t, s, "retention is disabled")
}

func TestRetentionSweeper_Start_NonPositiveDays(t *testing.T) {
	s := NewRetentionSweeper(nil, newSweeperConfig(true, 0))
	sweeperStartReturnsQuickly(t, s, "retention days is not positive")
}

func TestRetentionSweeper_Stop_DoesNotPanic(t *testing.T) {
	s := NewRetentionSweeper(nil, newSweeperConfig(true, 90))
	s.Stop() // must not panic
}

// ---------------------------------------------------------------------------
// runSweep
// ---------------------------------------------------------------------------

func TestRetentionSweeper_RunSweep_DeletesSystemWide(t *testing.T) {
	repo, mock := newAuditRepoForSweeper(t)
	s := NewRetentionSweeper(repo, newSweeperConfig(true, 90))

	// No organization filter: the scheduled sweep spans all tenants.
	mock.ExpectExec("DELETE FROM audit_logs WHERE created_at").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 42))

	s.runSweep(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRetentionSweeper_RunSweep_DBError(t *testing.T) {
	repo, mock := newAuditRepoForSweeper(t)
	s := NewRetentionSweeper(repo, newSweeperConfig(true, 90))

	mock.ExpectExec("DELETE FROM audit_logs").
		WillReturnError(context.DeadlineExceeded)

	// Should log and return without panicking
	s.runSweep(context.Background())
}
