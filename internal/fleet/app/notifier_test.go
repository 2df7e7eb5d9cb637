package app

import (
	"context"
	"errors"
	"testing"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/pkg/logger"
)

func TestBroadcasterDeliversToAllSinks(t *testing.T) {
	ok := &fakeNotifier{}
	broken := &fakeNotifier{err: errBoom}
	later := &fakeNotifier{}
	b := NewBroadcaster(logger.NewNop(),
		NamedNotifier{Name: "websocket", Notifier: ok},
		NamedNotifier{Name: "amqp", Notifier: broken},
		NamedNotifier{Name: "redis", Notifier: later},
	)

	err := b.Publish(context.Background(), domain.VehicleNotification{Type: domain.NotificationBusLocation, VehicleID: 1})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(ok.sent) != 1 || len(later.sent) != 1 {
		t.Errorf("healthy sinks got %d and %d notifications", len(ok.sent), len(later.sent))
	}
}

func TestBroadcasterWithoutSinks(t *testing.T) {
	if err := NewBroadcaster(logger.NewNop()).Publish(context.Background(), domain.VehicleNotification{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}
