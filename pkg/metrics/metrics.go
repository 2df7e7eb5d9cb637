package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TelemetryReceived counts raw samples by source (mqtt, amqp).
	TelemetryReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_telemetry_received_total",
			Help: "Telemetry samples received from ingestion sources.",
		},
		[]string{"source"},
	)

	// TelemetryRejected counts samples dropped before processing.
	TelemetryRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_telemetry_rejected_total",
			Help: "Telemetry samples rejected by validation or lookup.",
		},
		[]string{"reason"},
	)

	TelemetryProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_telemetry_processed_total",
			Help: "Telemetry samples applied to vehicle state.",
		},
	)

	StatusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_status_changes_total",
			Help: "Vehicle status transitions written by the fleet state engine.",
		},
		[]string{"status"},
	)

	PassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_status_pass_duration_seconds",
			Help:    "Duration of a full fleet status pass.",
			Buckets: prometheus.DefBuckets,
		},
	)

	VehicleEvaluationErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_vehicle_evaluation_errors_total",
			Help: "Per-vehicle evaluation failures during status passes.",
		},
	)

	NotificationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_notification_failures_total",
			Help: "Notifications that a sink failed to accept.",
		},
		[]string{"sink"},
	)

	WebsocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_websocket_connections",
			Help: "Open dashboard websocket connections.",
		},
	)

	TelemetryWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_telemetry_written_total",
			Help: "Telemetry rows persisted to the history table.",
		},
	)

	TelemetryWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_telemetry_write_failures_total",
			Help: "Telemetry rows dropped after a failed batch write.",
		},
	)

	TelemetryPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_telemetry_purged_total",
			Help: "Telemetry rows deleted by the retention job.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TelemetryReceived,
		TelemetryRejected,
		TelemetryProcessed,
		StatusChanges,
		PassDuration,
		VehicleEvaluationErrors,
		NotificationFailures,
		WebsocketConnections,
		TelemetryWritten,
		TelemetryWriteFailures,
		TelemetryPurged,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
