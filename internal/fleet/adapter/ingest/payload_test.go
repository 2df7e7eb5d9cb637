package ingest

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var receivedAt = time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)

func newTestDecoder() *Decoder {
	return NewDecoder(func() time.Time { return receivedAt })
}

func TestDecodeFullPayload(t *testing.T) {
	body := []byte(`{"bus_id":7,"latitude":-6.2,"longitude":106.8,"speed":32.5,"passenger_count":14,"recorded_at":"2025-03-10T00:59:30Z"}`)
	s, err := newTestDecoder().Decode(body, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.VehicleID != 7 || s.Latitude != -6.2 || s.Longitude != 106.8 || s.SpeedKMH != 32.5 {
		t.Errorf("sample = %+v", s)
	}
	if s.PassengerCount == nil || *s.PassengerCount != 14 {
		t.Errorf("passenger_count = %v", s.PassengerCount)
	}
	if !s.RecordedAt.Equal(time.Date(2025, 3, 10, 0, 59, 30, 0, time.UTC)) {
		t.Errorf("recorded_at = %v", s.RecordedAt)
	}
}

func TestDecodeDefaults(t *testing.T) {
	s, err := newTestDecoder().Decode([]byte(`  {"latitude":1,"longitude":2}`), 12)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.VehicleID != 12 {
		t.Errorf("VehicleID = %d, want topic fallback 12", s.VehicleID)
	}
	if !s.RecordedAt.Equal(receivedAt) {
		t.Errorf("RecordedAt = %v, want receive time", s.RecordedAt)
	}
	if s.PassengerCount != nil {
		t.Errorf("PassengerCount = %v, want nil", *s.PassengerCount)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		fallback int64
		want     error
	}{
		{"plain text", "hello", 1, ErrNotJSON},
		{"empty", "", 1, ErrNotJSON},
		{"array", `[1,2]`, 1, ErrNotJSON},
		{"broken json", `{"bus_id":`, 1, ErrInvalidPayload},
		{"missing latitude", `{"bus_id":1,"longitude":2}`, 0, ErrInvalidPayload},
		{"latitude out of range", `{"bus_id":1,"latitude":91,"longitude":2}`, 0, ErrInvalidPayload},
		{"longitude out of range", `{"bus_id":1,"latitude":1,"longitude":-181}`, 0, ErrInvalidPayload},
		{"negative speed", `{"bus_id":1,"latitude":1,"longitude":2,"speed":-3}`, 0, ErrInvalidPayload},
		{"negative passengers", `{"bus_id":1,"latitude":1,"longitude":2,"passenger_count":-1}`, 0, ErrInvalidPayload},
		{"no id anywhere", `{"latitude":1,"longitude":2}`, 0, ErrInvalidPayload},
		{"zero id", `{"bus_id":0,"latitude":1,"longitude":2}`, 0, ErrInvalidPayload},
	}
	d := newTestDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Decode([]byte(tt.body), tt.fallback); !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIDFromTopic(t *testing.T) {
	tests := map[string]int64{
		"fleet/tracking/bus/12": 12,
		"fleet/tracking/bus/":   0,
		"fleet/tracking/bus/x":  0,
		"fleet/tracking/bus/-4": 0,
		"42":                    42,
	}
	for topic, want := range tests {
		if got := IDFromTopic(topic); got != want {
			t.Errorf("IDFromTopic(%q) = %d, want %d", topic, got, want)
		}
	}
}

func TestRejectReason(t *testing.T) {
	if RejectReason(ErrNotJSON) != "not_json" {
		t.Error("not_json")
	}
	if RejectReason(fmt.Errorf("%w: x", ErrInvalidPayload)) != "invalid_payload" {
		t.Error("invalid_payload")
	}
	if RejectReason(errors.New("boom")) != "other" {
		t.Error("other")
	}
}
