package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/orgsuite/orgsuite/internal/config"
	"github.com/orgsuite/orgsuite/internal/db/repositories"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newNotifierConfig(enabled bool, smtpHost string) *config.NotificationsConfig {
	return &config.NotificationsConfig{
		Enabled: enabled,
		SMTP: config.SMTPConfig{
			Host: smtpHost,
			Port: 25,
			From: "noreply@example.com",
		},
		TokenExpiryRecipient:          "ops@example.com",
		TokenExpiryWarningDays:        7,
		TokenExpiryCheckIntervalHours: 24,
	}
}

func newTokenRepoForNotifier(t *testing.T) (*repositories.ServiceTokenRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New (token): %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repositories.NewServiceTokenRepository(db), mock
}

func newOrgRepoForNotifier(t *testing.T) (*repositories.OrganizationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New (org): %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repositories.NewOrganizationRepository(db), mock
}

// ---------------------------------------------------------------------------
// NewTokenExpiryNotifier — construction and interval defaulting
// ---------------------------------------------------------------------------

func TestNewTokenExpiryNotifier_DefaultInterval(t *testing.T) {
	cfg := newNotifierConfig(true, "smtp.example.com")
	cfg.TokenExpiryCheckIntervalHours = 0 // should default to 24

	n := NewTokenExpiryNotifier(nil, nil, cfg)
	if n == nil {
		t.Fatal("NewTokenExpiryNotifier returned nil")
	}
	if n.interval != 24*time.Hour {
		t.Errorf("interval = %v, want 24h", n.interval)
	}
}

func TestNewTokenExpiryNotifier_CustomInterval(t *testing.T) {
	cfg := newNotifierConfig(true, "smtp.example.com")
	cfg.TokenExpiryCheckIntervalHours = 48

	n := NewTokenExpiryNotifier(nil, nil, cfg)
	if n.interval != 48*time.Hour {
		t.Errorf("interval = %v, want 48h", n.interval)
	}
}

// ---------------------------------------------------------------------------
// Start — early exits (no goroutine needed)
// ---------------------------------------------------------------------------

func startReturnsQuickly(t *testing.T, n *TokenExpiryNotifier, reason string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		n.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Errorf("Start did not return quickly when %s", reason)
	}
}

func TestTokenExpiryNotifier_Start_DisabledConfig(t *testing.T) {
	n := NewTokenExpiryNotifier(nil, nil, newNotifierConfig(false, "smtp.example.com"))
	startReturnsQuickly(t, n, "notifications are disabled")
}

func TestTokenExpiryNotifier_Start_BlankSMTPHost(t *testing.T) {
	n := NewTokenExpiryNotifier(nil, nil, newNotifierConfig(true, ""))
	startReturnsQuickly(t, n, "SMTP host is blank")
}

func TestTokenExpiryNotifier_Start_BlankRecipient(t *testing.T) {
	cfg := newNotifierConfig(true, "smtp.example.com")
	cfg.TokenExpiryRecipient = ""
	n := NewTokenExpiryNotifier(nil, nil, cfg)
	startReturnsQuickly(t, n, "no recipient is configured")
}

func TestTokenExpiryNotifier_Stop_DoesNotPanic(t *testing.T) {
	n := NewTokenExpiryNotifier(nil, nil, newNotifierConfig(true, "smtp.example.com"))
	n.Stop() // must not panic
}

// ---------------------------------------------------------------------------
// sendExpiryEmail — covers body composition up to smtp.SendMail call.
// Uses an unreachable SMTP address so the formatting code is executed and
// the send step fails with "connection refused" (which is expected).
// ---------------------------------------------------------------------------

func TestTokenExpiryNotifier_SendExpiryEmail_NoTLS(t *testing.T) {
	cfg := newNotifierConfig(true, "127.0.0.1")
	cfg.SMTP.Port = 1 // nothing listening on port 1
	cfg.SMTP.UseTLS = false

	n := NewTokenExpiryNotifier(nil, nil, cfg)
	expiresAt := time.Now().Add(5 * 24 * time.Hour)

	_ = n.sendExpiryEmail("Acme Corp", "hr-service", "ost_abc", expiresAt)
}

func TestTokenExpiryNotifier_SendExpiryEmail_TLS(t *testing.T) {
	cfg := newNotifierConfig(true, "127.0.0.1")
	cfg.SMTP.Port = 1
	cfg.SMTP.UseTLS = true // routes through sendMailTLS, which falls back on dial failure

	n := NewTokenExpiryNotifier(nil, nil, cfg)
	expiresAt := time.Now().Add(3 * 24 * time.Hour)

	_ = n.sendExpiryEmail("Acme Corp", "board-service", "ost_xyz", expiresAt)
}

func TestTokenExpiryNotifier_SendExpiryEmail_AlreadyExpired(t *testing.T) {
	cfg := newNotifierConfig(true, "127.0.0.1")
	cfg.SMTP.Port = 1
	cfg.SMTP.UseTLS = false

	n := NewTokenExpiryNotifier(nil, nil, cfg)
	// expiresAt in the past → daysLeft clamps to 0
	expiresAt := time.Now().Add(-48 * time.Hour)

	_ = n.sendExpiryEmail("Acme Corp", "old-service", "ost_old", expiresAt)
}

// ---------------------------------------------------------------------------
// runCheck — exercised via sqlmock
// ---------------------------------------------------------------------------

// expiringTokenCols mirrors the SELECT columns in FindExpiringTokens
var expiringTokenCols = []string{"id", "organization_id", "name", "token_prefix", "expires_at"}

var orgColsForNotifier = []string{"id", "name", "display_name", "features", "created_at", "updated_at"}

func TestTokenExpiryNotifier_RunCheck_DefaultWarningDays(t *testing.T) {
	tokenRepo, tokenMock := newTokenRepoForNotifier(t)
	cfg := newNotifierConfig(true, "smtp.example.com")
	cfg.TokenExpiryWarningDays = 0 // defaults to 7 inside runCheck

	n := NewTokenExpiryNotifier(tokenRepo, nil, cfg)

	tokenMock.ExpectQuery("SELECT.*FROM service_tokens").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(expiringTokenCols))

	n.runCheck(context.Background())

	if err := tokenMock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTokenExpiryNotifier_RunCheck_DBError(t *testing.T) {
	tokenRepo, tokenMock := newTokenRepoForNotifier(t)
	n := NewTokenExpiryNotifier(tokenRepo, nil, newNotifierConfig(true, "smtp.example.com"))

	tokenMock.ExpectQuery("SELECT.*FROM service_tokens").
		WillReturnError(errors.New("db connection lost"))

	// Should log and return without panicking
	n.runCheck(context.Background())
}

func TestTokenExpiryNotifier_RunCheck_SendFailureSkipsMark(t *testing.T) {
	tokenRepo, tokenMock := newTokenRepoForNotifier(t)
	orgRepo, orgMock := newOrgRepoForNotifier(t)

	cfg := newNotifierConfig(true, "127.0.0.1")
	cfg.SMTP.Port = 1 // send fails → MarkExpiryNotificationSent must not run
	cfg.SMTP.UseTLS = false

	n := NewTokenExpiryNotifier(tokenRepo, orgRepo, cfg)

	expiresAt := time.Now().Add(3 * 24 * time.Hour)
	tokenMock.ExpectQuery("SELECT.*FROM service_tokens").
		WillReturnRows(sqlmock.NewRows(expiringTokenCols).
			AddRow("tok-1", "org-1", "hr-service", "ost_abc", expiresAt))
	orgMock.ExpectQuery("SELECT.*FROM organizations").
		WillReturnRows(sqlmock.NewRows(orgColsForNotifier).
			AddRow("org-1", "acme", "Acme Corp", pq.StringArray{"audit-log"}, time.Now(), time.Now()))

	n.runCheck(context.Background())

	if err := tokenMock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTokenExpiryNotifier_RunCheck_OrgLookupFailureFallsBack(t *testing.T) {
	tokenRepo, tokenMock := newTokenRepoForNotifier(t)
	orgRepo, orgMock := newOrgRepoForNotifier(t)

	cfg := newNotifierConfig(true, "127.0.0.1")
	cfg.SMTP.Port = 1
	cfg.SMTP.UseTLS = false

	n := NewTokenExpiryNotifier(tokenRepo, orgRepo, cfg)

	expiresAt := time.Now().Add(3 * 24 * time.Hour)
	tokenMock.ExpectQuery("SELECT.*FROM service_tokens").
		WillReturnRows(sqlmock.NewRows(expiringTokenCols).
			AddRow("tok-1", "org-1", "hr-service", "ost_abc", expiresAt))
	// Org lookup fails → email still composed with the raw organization id
	orgMock.ExpectQuery("SELECT.*FROM organizations").
		WillReturnError(errors.New("org db error"))

	n.runCheck(context.Background()) // must not panic
}
