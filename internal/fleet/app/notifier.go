package app

import (
	"context"
	"errors"
	"fmt"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/pkg/logger"
	"bus-fleet/pkg/metrics"
)

// NamedNotifier labels a sink for logs and metrics.
type NamedNotifier struct {
	Name string
	domain.Notifier
}

// Broadcaster fans one notification out to every sink. A failing sink does not
// stop delivery to the others.
type Broadcaster struct {
	log   logger.Logger
	sinks []NamedNotifier
}

func NewBroadcaster(log logger.Logger, sinks ...NamedNotifier) *Broadcaster {
	return &Broadcaster{log: log, sinks: sinks}
}

func (b *Broadcaster) Publish(ctx context.Context, n domain.VehicleNotification) error {
	var errs []error
	for _, sink := range b.sinks {
		if err := sink.Publish(ctx, n); err != nil {
			metrics.NotificationFailures.WithLabelValues(sink.Name).Inc()
			b.log.WithFields(logger.LogFields{
				"sink":       sink.Name,
				"vehicle_id": n.VehicleID,
				"type":       n.Type,
			}).Error("notification_publish_failed", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name, err))
		}
	}
	return errors.Join(errs...)
}
