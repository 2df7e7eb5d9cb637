package mqtt

import (
	"context"

	"bus-fleet/internal/fleet/adapter/ingest"
	"bus-fleet/pkg/logger"
	"bus-fleet/pkg/metrics"
	"bus-fleet/pkg/mqtt"
)

const source = "mqtt"

// TelemetrySubscriber feeds tracker messages into the ingestion pipeline.
type TelemetrySubscriber struct {
	log     logger.Logger
	client  *mqtt.Client
	decoder *ingest.Decoder
	sink    ingest.Sink
}

func NewTelemetrySubscriber(log logger.Logger, client *mqtt.Client, decoder *ingest.Decoder, sink ingest.Sink) *TelemetrySubscriber {
	return &TelemetrySubscriber{
		log:     log.WithFields(logger.LogFields{"source": source}),
		client:  client,
		decoder: decoder,
		sink:    sink,
	}
}

// Subscribe registers the handler for filter. The client re-subscribes after
// every reconnect.
func (s *TelemetrySubscriber) Subscribe(ctx context.Context, filter string, qos int) error {
	return s.client.Subscribe(ctx, filter, qos, s.Handle)
}

// Handle runs on the client's receive goroutine, so samples reach the
// dispatcher in broker order.
func (s *TelemetrySubscriber) Handle(ctx context.Context, topic string, payload []byte) {
	metrics.TelemetryReceived.WithLabelValues(source).Inc()

	sample, err := s.decoder.Decode(payload, ingest.IDFromTopic(topic))
	if err != nil {
		metrics.TelemetryRejected.WithLabelValues(ingest.RejectReason(err)).Inc()
		s.log.WithFields(logger.LogFields{"topic": topic}).Warn("telemetry_payload_rejected", err.Error())
		return
	}

	if err := s.sink.Submit(ctx, sample); err != nil {
		s.log.WithFields(logger.LogFields{"topic": topic, "bus_id": sample.VehicleID}).Error("telemetry_submit_failed", err)
	}
}
