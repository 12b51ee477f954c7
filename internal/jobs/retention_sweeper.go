// Package jobs contains background workers that run on a schedule.
// The retention sweeper periodically deletes audit records older than the
// configured retention window; the token expiry notifier warns operators about
// service tokens approaching expiry. Jobs are designed to be idempotent —
// re-running after a crash produces the same result as a clean run.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/orgsuite/orgsuite/internal/config"
	"github.com/orgsuite/orgsuite/internal/db/repositories"
	"github.com/orgsuite/orgsuite/internal/telemetry"
)

// RetentionSweeper periodically deletes audit records past the retention window.
// It is distinct from the ad-hoc purge endpoint: the endpoint sweeps one tenant
// on request, the sweeper sweeps all tenants on a schedule.
type RetentionSweeper struct {
	auditRepo *repositories.AuditRepository
	cfg       *config.RetentionConfig
	interval  time.Duration
	stopChan  chan struct{}
}

// NewRetentionSweeper creates a new RetentionSweeper.
// intervalHours controls how often the sweep runs (default 24h).
func NewRetentionSweeper(auditRepo *repositories.AuditRepository, cfg *config.RetentionConfig) *RetentionSweeper {
	hours := cfg.IntervalHours
	if hours <= 0 {
		hours = 24
	}
	return &RetentionSweeper{
		auditRepo: auditRepo,
		cfg:       cfg,
		interval:  time.Duration(hours) * time.Hour,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the background sweep loop. It runs an initial sweep immediately,
// then repeats on the configured interval. The loop exits when ctx is cancelled
// or Stop() is called. A no-op when retention is disabled, so it is always safe
// to start.
func (s *RetentionSweeper) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Println("Retention sweeper: disabled (audit.retention.enabled=false)")
		return
	}
	if s.cfg.Days < 1 {
		log.Printf("Retention sweeper: disabled (audit.retention.days=%d is not positive)", s.cfg.Days)
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Retention sweeper started (interval: %v, keeping %d days)", s.interval, s.cfg.Days)

	// Run once immediately on startup
	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopChan:
			log.Println("Retention sweeper stopped")
			return
		case <-ctx.Done():
			log.Println("Retention sweeper context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (s *RetentionSweeper) Stop() {
	close(s.stopChan)
}

// runSweep deletes records older than the retention window across all tenants.
func (s *RetentionSweeper) runSweep(ctx context.Context) {
	deleted, err := s.auditRepo.DeleteOlderThan(ctx, "", s.cfg.Days)
	if err != nil {
		log.Printf("Retention sweeper: sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		telemetry.AuditRetentionDeletedTotal.Add(float64(deleted))
		log.Printf("Retention sweeper: deleted %d record(s) older than %d days", deleted, s.cfg.Days)
	}
}
