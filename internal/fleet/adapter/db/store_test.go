package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"bus-fleet/internal/fleet/domain"
	"bus-fleet/pkg/logger"
)

func TestMapErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, domain.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), domain.ErrNotFound},
		{"unique", &pgconn.PgError{Code: pgUniqueViolation}, domain.ErrConflict},
		{"foreign key", &pgconn.PgError{Code: pgForeignKeyViolation}, domain.ErrInvalidInput},
		{"check", &pgconn.PgError{Code: pgCheckViolation}, domain.ErrInvalidInput},
		{"bad time", &pgconn.PgError{Code: pgInvalidDatetime}, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapErr("op", tt.err); !errors.Is(got, tt.want) {
				t.Errorf("mapErr() = %v, want %v", got, tt.want)
			}
		})
	}

	other := errors.New("connection reset")
	got := mapErr("op", other)
	if !errors.Is(got, other) || errors.Is(got, domain.ErrNotFound) {
		t.Errorf("mapErr() = %v, want wrapped original", got)
	}
}

func TestAffected(t *testing.T) {
	if err := affected("delete", pgconn.NewCommandTag("DELETE 0")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("zero rows: got %v", err)
	}
	if err := affected("delete", pgconn.NewCommandTag("DELETE 1")); err != nil {
		t.Errorf("one row: got %v", err)
	}
}

func TestNullID(t *testing.T) {
	if nullID(0) != nil {
		t.Error("zero id should be NULL")
	}
	if p := nullID(7); p == nil || *p != 7 {
		t.Errorf("nullID(7) = %v", p)
	}
}

func TestPageArgs(t *testing.T) {
	limit, offset := pageArgs(domain.Page{Number: 3, Size: 20})
	if limit != 20 || offset != 40 {
		t.Errorf("pageArgs = %d, %d", limit, offset)
	}
}

type recordingInserter struct {
	mu       sync.Mutex
	batches  [][]domain.TelemetrySample
	fail     int
	calls    int
	rejected map[int64]bool
}

func (r *recordingInserter) InsertTelemetry(_ context.Context, s []domain.TelemetrySample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	for _, sample := range s {
		if r.rejected[sample.VehicleID] {
			return fmt.Errorf("failed to insert telemetry: %w", domain.ErrInvalidInput)
		}
	}
	if r.fail > 0 {
		r.fail--
		return errors.New("copy failed")
	}
	r.batches = append(r.batches, append([]domain.TelemetrySample(nil), s...))
	return nil
}

func (r *recordingInserter) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestTelemetryWriterFlushesFullBatches(t *testing.T) {
	ins := &recordingInserter{}
	w := NewTelemetryWriter(logger.NewNop(), ins, 16, 2, time.Hour)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		if err := w.Append(ctx, domain.TelemetrySample{VehicleID: int64(i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	w.Close()
	<-done

	if ins.total() != 5 {
		t.Fatalf("written = %d, want 5", ins.total())
	}
	if len(ins.batches) != 3 || len(ins.batches[0]) != 2 || len(ins.batches[2]) != 1 {
		t.Errorf("batches = %v", ins.batches)
	}
	if ins.batches[0][0].VehicleID != 1 || ins.batches[2][0].VehicleID != 5 {
		t.Errorf("order not preserved: %v", ins.batches)
	}
}

func TestTelemetryWriterFlushesOnInterval(t *testing.T) {
	ins := &recordingInserter{}
	w := NewTelemetryWriter(logger.NewNop(), ins, 4, 100, 10*time.Millisecond)
	go w.Run(context.Background())
	defer w.Close()

	if err := w.Append(context.Background(), domain.TelemetrySample{VehicleID: 1}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for ins.total() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ins.total() != 1 {
		t.Fatalf("written = %d, want 1", ins.total())
	}
}

func TestTelemetryWriterRetriesOnce(t *testing.T) {
	ins := &recordingInserter{fail: 1}
	w := NewTelemetryWriter(logger.NewNop(), ins, 4, 1, time.Hour)
	w.retryDelay = time.Millisecond
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	_ = w.Append(context.Background(), domain.TelemetrySample{VehicleID: 3})
	w.Close()
	<-done

	if ins.total() != 1 {
		t.Errorf("written = %d, want 1 after retry", ins.total())
	}
}

func TestTelemetryWriterKeepsValidRowsWhenOneIsRejected(t *testing.T) {
	ins := &recordingInserter{rejected: map[int64]bool{2: true}}
	w := NewTelemetryWriter(logger.NewNop(), ins, 8, 3, time.Hour)
	w.retryDelay = time.Millisecond
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	for _, id := range []int64{1, 2, 3} {
		if err := w.Append(context.Background(), domain.TelemetrySample{VehicleID: id}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	w.Close()
	<-done

	if ins.total() != 2 {
		t.Fatalf("written = %d, want 2", ins.total())
	}
	if ins.batches[0][0].VehicleID != 1 || ins.batches[1][0].VehicleID != 3 {
		t.Errorf("batches = %v, want vehicles 1 and 3 row by row", ins.batches)
	}
	if ins.calls != 4 {
		t.Errorf("insert calls = %d, want 1 batch + 3 rows", ins.calls)
	}
}

func TestTelemetryWriterRejectsAfterClose(t *testing.T) {
	w := NewTelemetryWriter(logger.NewNop(), &recordingInserter{}, 1, 1, time.Hour)
	w.Close()
	w.Close()
	if err := w.Append(context.Background(), domain.TelemetrySample{}); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Append after Close = %v", err)
	}
}

func TestTelemetryWriterAppendHonoursContext(t *testing.T) {
	w := NewTelemetryWriter(logger.NewNop(), &recordingInserter{}, 0, 1, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := w.Append(ctx, domain.TelemetrySample{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Append on full queue = %v", err)
	}
}
