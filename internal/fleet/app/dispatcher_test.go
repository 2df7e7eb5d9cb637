package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/pkg/logger"
)

func TestDispatcherPreservesPerVehicleOrder(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int64][]int)

	d := NewDispatcher(logger.NewNop(), 4, 8, func(_ context.Context, s domain.TelemetrySample) error {
		mu.Lock()
		defer mu.Unlock()
		seen[s.VehicleID] = append(seen[s.VehicleID], *s.PassengerCount)
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	const perVehicle = 50
	for i := 0; i < perVehicle; i++ {
		for id := int64(1); id <= 6; id++ {
			seq := i
			if err := d.Submit(ctx, domain.TelemetrySample{VehicleID: id, PassengerCount: &seq}); err != nil {
				t.Fatalf("Submit: %v", err)
			}
		}
	}
	d.Stop()

	for id := int64(1); id <= 6; id++ {
		got := seen[id]
		if len(got) != perVehicle {
			t.Fatalf("vehicle %d processed %d samples, want %d", id, len(got), perVehicle)
		}
		for i, v := range got {
			if v != i {
				t.Fatalf("vehicle %d sample %d has seq %d", id, i, v)
			}
		}
	}
}

func TestDispatcherSubmitAfterStop(t *testing.T) {
	d := NewDispatcher(logger.NewNop(), 1, 1, func(context.Context, domain.TelemetrySample) error { return nil })
	d.Start(context.Background())
	d.Stop()

	err := d.Submit(context.Background(), domain.TelemetrySample{VehicleID: 1})
	if !errors.Is(err, ErrDispatcherStopped) {
		t.Fatalf("err = %v, want ErrDispatcherStopped", err)
	}
}

func TestDispatcherSubmitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	d := NewDispatcher(logger.NewNop(), 1, 1, func(context.Context, domain.TelemetrySample) error {
		<-block
		return nil
	})
	d.Start(context.Background())
	defer func() {
		close(block)
		d.Stop()
	}()

	// One sample is held by the worker, one fills the queue.
	_ = d.Submit(context.Background(), domain.TelemetrySample{VehicleID: 1})
	_ = d.Submit(context.Background(), domain.TelemetrySample{VehicleID: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// The worker may not have picked up the first sample yet, so allow one more slot.
	var err error
	for i := 0; i < 2 && err == nil; i++ {
		err = d.Submit(ctx, domain.TelemetrySample{VehicleID: 1})
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestDispatcherShardIsStable(t *testing.T) {
	d := NewDispatcher(logger.NewNop(), 3, 1, nil)
	for id := int64(1); id < 20; id++ {
		if d.shardFor(id) != d.shardFor(id) || d.shardFor(id) != int(id%3) {
			t.Fatalf("unexpected shard for %d", id)
		}
	}
}
