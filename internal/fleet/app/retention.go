package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/internal/fleet/engine"
	"bus-fleet/pkg/logger"
	"bus-fleet/pkg/metrics"
)

// RetentionService deletes telemetry history older than a number of months.
type RetentionService struct {
	log     logger.Logger
	history domain.HistoryRepository
	clock   engine.Clock
	months  int
	hour    int
	minute  int
}

func NewRetentionService(log logger.Logger, history domain.HistoryRepository, clock engine.Clock, months, hour, minute int) *RetentionService {
	if months < 1 {
		months = 3
	}
	return &RetentionService{
		log:     log,
		history: history,
		clock:   clock,
		months:  months,
		hour:    hour,
		minute:  minute,
	}
}

// CronSpec is the standard five-field schedule for a daily run at hour:minute.
func CronSpec(hour, minute int) string {
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

func (s *RetentionService) Spec() string {
	return CronSpec(s.hour, s.minute)
}

// Cutoff is the oldest timestamp kept at now.
func (s *RetentionService) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, -s.months, 0)
}

func (s *RetentionService) PurgeOnce(ctx context.Context) (int64, error) {
	cutoff := s.Cutoff(s.clock.Now())
	n, err := s.history.PurgeTelemetryBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("retention_purge_failed", err)
		return 0, fmt.Errorf("failed to purge telemetry: %w", err)
	}
	metrics.TelemetryPurged.Add(float64(n))
	s.log.WithFields(logger.LogFields{
		"deleted": n,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("retention_purge_done", "Old telemetry purged")
	return n, nil
}

// Run purges once a day on the fleet-zone schedule until ctx is cancelled. A
// purge still running when the next one is due is skipped.
func (s *RetentionService) Run(ctx context.Context) error {
	loc := s.clock.Now().Location()
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	id, err := c.AddFunc(s.Spec(), func() {
		_, _ = s.PurgeOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule telemetry purge %q: %w", s.Spec(), err)
	}

	c.Start()
	s.log.WithFields(logger.LogFields{
		"schedule": s.Spec(),
		"zone":     loc.String(),
	}).Info("retention_scheduled", fmt.Sprintf("Next telemetry purge at %s", c.Entry(id).Next.Format(time.RFC3339)))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
