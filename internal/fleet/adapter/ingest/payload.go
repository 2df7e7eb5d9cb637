// Package ingest decodes telemetry payloads arriving from the message
// transports into domain samples.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"bus-fleet/internal/fleet/domain"
)

var (
	ErrNotJSON        = errors.New("payload is not a JSON object")
	ErrInvalidPayload = errors.New("invalid telemetry payload")
)

// Sink accepts decoded samples. The keyed dispatcher satisfies it.
type Sink interface {
	Submit(ctx context.Context, sample domain.TelemetrySample) error
}

// TelemetryPayload is the JSON document a tracker publishes.
type TelemetryPayload struct {
	BusID          *int64     `json:"bus_id" validate:"omitempty,gt=0"`
	Latitude       *float64   `json:"latitude" validate:"required,latitude"`
	Longitude      *float64   `json:"longitude" validate:"required,longitude"`
	Speed          float64    `json:"speed" validate:"gte=0"`
	PassengerCount *int       `json:"passenger_count" validate:"omitempty,gte=0"`
	RecordedAt     *time.Time `json:"recorded_at"`
}

// Decoder turns raw message bodies into samples.
type Decoder struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewDecoder(now func() time.Time) *Decoder {
	if now == nil {
		now = time.Now
	}
	return &Decoder{validate: validator.New(), now: now}
}

// Decode parses body. fallbackID is used when the payload carries no bus_id;
// pass 0 to require one. A missing recorded_at is stamped with the receive time.
func (d *Decoder) Decode(body []byte, fallbackID int64) (domain.TelemetrySample, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return domain.TelemetrySample{}, ErrNotJSON
	}

	var p TelemetryPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.TelemetrySample{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := d.validate.Struct(p); err != nil {
		return domain.TelemetrySample{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	id := fallbackID
	if p.BusID != nil {
		id = *p.BusID
	}
	if id <= 0 {
		return domain.TelemetrySample{}, fmt.Errorf("%w: bus_id is required", ErrInvalidPayload)
	}

	at := d.now()
	if p.RecordedAt != nil && !p.RecordedAt.IsZero() {
		at = *p.RecordedAt
	}

	return domain.TelemetrySample{
		VehicleID:      id,
		Latitude:       *p.Latitude,
		Longitude:      *p.Longitude,
		SpeedKMH:       p.Speed,
		PassengerCount: p.PassengerCount,
		RecordedAt:     at,
	}, nil
}

// IDFromTopic reads a bus id from the last topic level, e.g. fleet/tracking/bus/12.
// It returns 0 when the level is not a positive integer.
func IDFromTopic(topic string) int64 {
	i := strings.LastIndexByte(topic, '/')
	id, err := strconv.ParseInt(topic[i+1:], 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// RejectReason maps a decode error to a metrics label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotJSON):
		return "not_json"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	default:
		return "other"
	}
}
