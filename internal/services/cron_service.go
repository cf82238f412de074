package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// AuditPurger removes audit entries past their retention
type AuditPurger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// CommandSyncer re-registers chat commands built from the region list
type CommandSyncer interface {
	ResyncCommands(ctx context.Context) error
}

// CronConfig holds the schedules of the background jobs
type CronConfig struct {
	RegionRefreshSchedule string        // Seconds-precision cron spec
	AuditCleanupSchedule  string        // Seconds-precision cron spec
	AuditRetention        time.Duration // Entries older than this are purged
}

// CronService manages scheduled background jobs
type CronService struct {
	cron    *cron.Cron
	catalog *RegionCatalog
	purger  AuditPurger   // nil when the audit trail is disabled
	syncer  CommandSyncer // nil when Discord is disabled
	config  CronConfig
	logger  *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(catalog *RegionCatalog, purger AuditPurger, syncer CommandSyncer, config CronConfig, logger *logrus.Logger) *CronService {
	// Second minute hour day month weekday
	c := cron.New(cron.WithSeconds())

	return &CronService{
		cron:    c,
		catalog: catalog,
		purger:  purger,
		syncer:  syncer,
		config:  config,
		logger:  logger,
	}
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Job 1: Keep the region list (and the command choices built from it) fresh
	if _, err := s.cron.AddFunc(s.config.RegionRefreshSchedule, s.refreshRegionsJob); err != nil {
		return fmt.Errorf("failed to schedule region refresh job: %w", err)
	}
	s.logger.WithField("schedule", s.config.RegionRefreshSchedule).Info("Scheduled: Refresh bookable regions")

	// Job 2: Purge old audit entries
	if s.purger != nil {
		if _, err := s.cron.AddFunc(s.config.AuditCleanupSchedule, s.cleanupAuditJob); err != nil {
			return fmt.Errorf("failed to schedule audit cleanup job: %w", err)
		}
		s.logger.WithFields(logrus.Fields{
			"schedule":  s.config.AuditCleanupSchedule,
			"retention": s.config.AuditRetention.String(),
		}).Info("Scheduled: Cleanup audit trail")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) entries() int {
	return len(s.cron.Entries())
}

func (s *CronService) refreshRegionsJob() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.catalog.Refresh(ctx); err != nil {
		s.logger.WithError(err).Error("[CRON] Region refresh failed")
		return
	}

	if s.syncer != nil {
		if err := s.syncer.ResyncCommands(ctx); err != nil {
			s.logger.WithError(err).Error("[CRON] Command choices not updated")
		}
	}
	s.logger.WithField("duration", time.Since(startTime).String()).Info("[CRON] Regions refreshed")
}

func (s *CronService) cleanupAuditJob() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := s.purger.Purge(ctx, s.config.AuditRetention)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Audit cleanup failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"deleted":  deleted,
		"duration": time.Since(startTime).String(),
	}).Info("[CRON] Audit trail cleaned up")
}
