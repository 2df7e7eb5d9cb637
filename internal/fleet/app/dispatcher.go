package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/pkg/logger"
)

var ErrDispatcherStopped = errors.New("telemetry dispatcher stopped")

const sampleTimeout = 10 * time.Second

// SampleHandler applies one telemetry sample.
type SampleHandler func(ctx context.Context, sample domain.TelemetrySample) error

// Dispatcher serialises samples per vehicle while processing different vehicles
// in parallel. A vehicle always maps to the same shard, and each shard has one
// worker, so samples for a vehicle are applied in the order they were submitted.
type Dispatcher struct {
	log     logger.Logger
	handle  SampleHandler
	shards  []chan domain.TelemetrySample
	wg      sync.WaitGroup
	stopped chan struct{}
	once    sync.Once
}

func NewDispatcher(log logger.Logger, workers, queueSize int, handle SampleHandler) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	shards := make([]chan domain.TelemetrySample, workers)
	for i := range shards {
		shards[i] = make(chan domain.TelemetrySample, queueSize)
	}
	return &Dispatcher{
		log:     log,
		handle:  handle,
		shards:  shards,
		stopped: make(chan struct{}),
	}
}

// Start launches one worker per shard. Workers exit when ctx is cancelled or
// Stop is called, after draining what is already queued.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.shards {
		d.wg.Add(1)
		go d.worker(ctx, i, ch)
	}
	d.log.Info("dispatcher_start", fmt.Sprintf("Started %d telemetry workers", len(d.shards)))
}

// Submit queues a sample on its vehicle's shard, blocking while the shard is full.
func (d *Dispatcher) Submit(ctx context.Context, sample domain.TelemetrySample) error {
	ch := d.shards[d.shardFor(sample.VehicleID)]
	select {
	case <-d.stopped:
		return ErrDispatcherStopped
	default:
	}
	select {
	case ch <- sample:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopped:
		return ErrDispatcherStopped
	}
}

// Stop refuses new samples and waits for the workers to finish.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.stopped) })
	d.wg.Wait()
}

func (d *Dispatcher) shardFor(vehicleID int64) int {
	return int(uint64(vehicleID) % uint64(len(d.shards)))
}

func (d *Dispatcher) worker(ctx context.Context, shard int, ch chan domain.TelemetrySample) {
	defer d.wg.Done()
	for {
		select {
		case sample := <-ch:
			d.process(ctx, shard, sample)
		case <-ctx.Done():
			d.drain(shard, ch)
			return
		case <-d.stopped:
			d.drain(shard, ch)
			return
		}
	}
}

func (d *Dispatcher) drain(shard int, ch chan domain.TelemetrySample) {
	for {
		select {
		case sample := <-ch:
			d.process(context.Background(), shard, sample)
		default:
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, shard int, sample domain.TelemetrySample) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sampleTimeout)
	defer cancel()
	if err := d.handle(ctx, sample); err != nil {
		d.log.WithFields(logger.LogFields{
			"vehicle_id": sample.VehicleID,
			"shard":      shard,
		}).Debug("dispatcher_sample_failed", err.Error())
	}
}
