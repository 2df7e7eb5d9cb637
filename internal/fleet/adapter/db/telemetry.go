package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/pkg/logger"
	"bus-fleet/pkg/metrics"
)

var telemetryCopyColumns = []string{"bus_id", "latitude", "longitude", "speed_kmh", "passenger_count", "recorded_at"}

// InsertTelemetry bulk-loads samples with COPY.
func (s *Store) InsertTelemetry(ctx context.Context, samples []domain.TelemetrySample) error {
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"telemetry"},
		telemetryCopyColumns,
		pgx.CopyFromSlice(len(samples), func(i int) ([]any, error) {
			t := samples[i]
			return []any{t.VehicleID, t.Latitude, t.Longitude, t.SpeedKMH, t.PassengerCount, t.RecordedAt}, nil
		}),
	)
	if err != nil {
		return mapErr("insert telemetry", err)
	}
	return nil
}

func (s *Store) ListTelemetry(ctx context.Context, vehicleID int64, from, to time.Time, limit int) ([]*domain.TelemetrySample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT bus_id, latitude, longitude, speed_kmh, passenger_count, recorded_at
		FROM telemetry
		WHERE bus_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY recorded_at DESC
		LIMIT $4`,
		vehicleID, from, to, limit)
	if err != nil {
		return nil, mapErr("list telemetry", err)
	}
	defer rows.Close()

	var out []*domain.TelemetrySample
	for rows.Next() {
		var t domain.TelemetrySample
		if err := rows.Scan(&t.VehicleID, &t.Latitude, &t.Longitude, &t.SpeedKMH, &t.PassengerCount, &t.RecordedAt); err != nil {
			return nil, mapErr("scan telemetry", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("iterate telemetry", err)
	}
	return out, nil
}

func (s *Store) PurgeTelemetryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM telemetry WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, mapErr("purge telemetry", err)
	}
	return tag.RowsAffected(), nil
}

type telemetryInserter interface {
	InsertTelemetry(ctx context.Context, samples []domain.TelemetrySample) error
}

var ErrWriterClosed = errors.New("telemetry writer closed")

// TelemetryWriter buffers history appends and flushes them in batches,
// either when a batch fills up or when the flush interval elapses.
type TelemetryWriter struct {
	log        logger.Logger
	store      telemetryInserter
	ch         chan domain.TelemetrySample
	batchSize  int
	interval   time.Duration
	retryDelay time.Duration

	mu     sync.RWMutex
	closed bool
}

var _ domain.TelemetryLog = (*TelemetryWriter)(nil)

func NewTelemetryWriter(log logger.Logger, store telemetryInserter, queueSize, batchSize int, interval time.Duration) *TelemetryWriter {
	if batchSize < 1 {
		batchSize = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &TelemetryWriter{
		log:        log,
		store:      store,
		ch:         make(chan domain.TelemetrySample, queueSize),
		batchSize:  batchSize,
		interval:   interval,
		retryDelay: 500 * time.Millisecond,
	}
}

// Append queues a sample, blocking while the buffer is full.
func (w *TelemetryWriter) Append(ctx context.Context, sample domain.TelemetrySample) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.ch <- sample:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to queue telemetry: %w", ctx.Err())
	}
}

// Close stops accepting samples. Run drains what is queued and returns.
func (w *TelemetryWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.ch)
}

// Run flushes batches until Close is called. The final flush uses a fresh
// context so a cancelled parent does not drop the tail of the buffer.
func (w *TelemetryWriter) Run(ctx context.Context) {
	batch := make([]domain.TelemetrySample, 0, w.batchSize)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case sample, ok := <-w.ch:
			if !ok {
				if len(batch) > 0 {
					drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					w.flush(drainCtx, batch)
					cancel()
				}
				return
			}
			batch = append(batch, sample)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (w *TelemetryWriter) flush(ctx context.Context, batch []domain.TelemetrySample) {
	err := w.store.InsertTelemetry(ctx, batch)
	if errors.Is(err, domain.ErrInvalidInput) {
		// One bad row fails the whole COPY; a vehicle deleted since ingest is the
		// usual cause. Write the rows one by one so the rest survive.
		w.flushRows(ctx, batch, err)
		return
	}
	if err != nil {
		w.log.WithFields(logger.LogFields{"batch": len(batch)}).Warn("telemetry_write_retry", err.Error())
		select {
		case <-time.After(w.retryDelay):
		case <-ctx.Done():
		}
		err = w.store.InsertTelemetry(ctx, batch)
	}
	if err != nil {
		metrics.TelemetryWriteFailures.Add(float64(len(batch)))
		w.log.WithFields(logger.LogFields{"batch": len(batch)}).Error("telemetry_write_failed", err)
		return
	}
	metrics.TelemetryWritten.Add(float64(len(batch)))
}

func (w *TelemetryWriter) flushRows(ctx context.Context, batch []domain.TelemetrySample, cause error) {
	w.log.WithFields(logger.LogFields{"batch": len(batch)}).Warn("telemetry_write_row_fallback", cause.Error())
	written := 0
	for i := range batch {
		if err := w.store.InsertTelemetry(ctx, batch[i:i+1]); err != nil {
			metrics.TelemetryWriteFailures.Inc()
			w.log.WithFields(logger.LogFields{"vehicle_id": batch[i].VehicleID}).Error("telemetry_row_dropped", err)
			continue
		}
		written++
	}
	metrics.TelemetryWritten.Add(float64(written))
}
