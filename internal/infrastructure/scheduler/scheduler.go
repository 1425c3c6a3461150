// Package scheduler runs the recurring maintenance jobs: the nightly event
// retention sweep and the daily progress integrity audit.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/versant-edu/versant-hub/internal/application/monitoring"
	"github.com/versant-edu/versant-hub/pkg/logger"
)

// Config holds scheduler settings.
type Config struct {
	// RetentionDays is how long progress events are kept.
	RetentionDays int

	// CleanupAt is the daily local-UTC time for the retention sweep, "HH:MM".
	CleanupAt string

	// IntegrityAt is the daily local-UTC time for the integrity audit, "HH:MM".
	IntegrityAt string
}

// DefaultConfig returns sensible defaults. Both jobs run off-peak.
func DefaultConfig() Config {
	return Config{
		RetentionDays: monitoring.DefaultRetentionDays,
		CleanupAt:     "03:00",
		IntegrityAt:   "04:00",
	}
}

// Scheduler manages the recurring maintenance jobs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	monitor   *monitoring.Monitor
	cfg       Config
	log       *logger.Logger
}

// New creates a scheduler around the monitor's maintenance operations.
func New(monitor *monitoring.Monitor, cfg Config, log *logger.Logger) *Scheduler {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = monitoring.DefaultRetentionDays
	}
	if cfg.CleanupAt == "" {
		cfg.CleanupAt = "03:00"
	}
	if cfg.IntegrityAt == "" {
		cfg.IntegrityAt = "04:00"
	}

	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		monitor:   monitor,
		cfg:       cfg,
		log:       log.With(logger.Component("scheduler")),
	}
}

// Start registers the jobs and starts the scheduler in a non-blocking manner.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(1).Day().At(s.cfg.CleanupAt).Do(s.runCleanup); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(1).Day().At(s.cfg.IntegrityAt).Do(s.runIntegrityAudit); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.log.Info("scheduler started",
		logger.String("cleanup_at", s.cfg.CleanupAt),
		logger.String("integrity_at", s.cfg.IntegrityAt),
		logger.Int("retention_days", s.cfg.RetentionDays))
	return nil
}

// Stop terminates all scheduled jobs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted := s.monitor.CleanupOldEvents(ctx, s.cfg.RetentionDays)
	s.log.Info("retention sweep finished", logger.Int64("deleted", deleted))
}

func (s *Scheduler) runIntegrityAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report := s.monitor.ValidateStudentProgressIntegrity(ctx)
	if report == nil {
		return
	}
	if report.Status == monitoring.StatusIssuesFound {
		s.log.Warn("integrity audit found issues",
			logger.Int("students_checked", report.StudentsChecked),
			logger.Int("issues", len(report.Issues)))
		return
	}
	s.log.Info("integrity audit clean", logger.Int("students_checked", report.StudentsChecked))
}
