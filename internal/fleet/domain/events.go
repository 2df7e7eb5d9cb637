package domain

import "time"

const (
	NotificationBusLocation   = "bus_location"
	NotificationStatusChanged = "status_changed"
)

// VehicleNotification is what observers receive when a bus moves or changes status.
type VehicleNotification struct {
	Type           string        `json:"-"`
	VehicleID      int64         `json:"vehicle_id"`
	Status         VehicleStatus `json:"status"`
	Latitude       *float64      `json:"latitude"`
	Longitude      *float64      `json:"longitude"`
	PassengerCount int           `json:"passenger_count"`
	ETASeconds     *int          `json:"eta_seconds"`
	NextStopID     *int64        `json:"next_stop_id,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

func (n VehicleNotification) EventType() string { return n.Type }

func (n VehicleNotification) OccurredAt() time.Time { return n.Timestamp }

// NotificationFromVehicle builds a notification from the vehicle's current fields.
func NotificationFromVehicle(kind string, v *Vehicle, at time.Time) VehicleNotification {
	return VehicleNotification{
		Type:           kind,
		VehicleID:      v.ID,
		Status:         v.Status,
		Latitude:       v.Latitude,
		Longitude:      v.Longitude,
		PassengerCount: v.PassengerCount,
		ETASeconds:     v.ETASeconds,
		NextStopID:     v.NextStopID,
		Timestamp:      at,
	}
}
