package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"bus-fleet/internal/fleet/adapter/ingest"
	"bus-fleet/internal/fleet/domain"
	"bus-fleet/pkg/logger"
	"bus-fleet/pkg/metrics"
	"bus-fleet/pkg/rabbitmq"
)

const (
	ExchangeFleet       = "fleet_topic"
	QueueTelemetry      = "telemetry_ingest"
	QueueStatus         = "fleet_status"
	QueueLocation       = "fleet_location"
	keyTelemetryPattern = "fleet.telemetry.*"
	keyStatusPattern    = "fleet.status.*"
	keyLocationPattern  = "fleet.location.*"

	source = "amqp"
)

// Topology declares the fleet exchange and its queues.
func Topology() rabbitmq.Topology {
	return rabbitmq.Topology{
		Exchanges: []rabbitmq.Exchange{{Name: ExchangeFleet, Kind: amqp.ExchangeTopic}},
		Queues:    []string{QueueTelemetry, QueueStatus, QueueLocation},
		Bindings: []rabbitmq.Binding{
			{Queue: QueueTelemetry, RoutingKey: keyTelemetryPattern, Exchange: ExchangeFleet},
			{Queue: QueueStatus, RoutingKey: keyStatusPattern, Exchange: ExchangeFleet},
			{Queue: QueueLocation, RoutingKey: keyLocationPattern, Exchange: ExchangeFleet},
		},
	}
}

// RoutingKey returns the key a notification is published under.
func RoutingKey(n domain.VehicleNotification) string {
	kind := "location"
	if n.Type == domain.NotificationStatusChanged {
		kind = "status"
	}
	return "fleet." + kind + "." + strconv.FormatInt(n.VehicleID, 10)
}

type publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// Publisher forwards vehicle notifications to the fleet exchange.
type Publisher struct {
	conn publisher
}

var _ domain.Notifier = (*Publisher)(nil)

func NewPublisher(conn *rabbitmq.Connection) *Publisher {
	return &Publisher{conn: conn}
}

type notificationMessage struct {
	Type string                     `json:"type"`
	Data domain.VehicleNotification `json:"data"`
}

func (p *Publisher) Publish(ctx context.Context, n domain.VehicleNotification) error {
	body, err := json.Marshal(notificationMessage{Type: n.Type, Data: n})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := p.conn.Publish(ctx, ExchangeFleet, RoutingKey(n), body); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// TelemetryConsumer reads samples from the telemetry queue.
type TelemetryConsumer struct {
	conn    *rabbitmq.Connection
	decoder *ingest.Decoder
	sink    ingest.Sink
	log     logger.Logger
}

func NewTelemetryConsumer(conn *rabbitmq.Connection, decoder *ingest.Decoder, sink ingest.Sink, log logger.Logger) *TelemetryConsumer {
	return &TelemetryConsumer{
		conn:    conn,
		decoder: decoder,
		sink:    sink,
		log:     log.WithFields(logger.LogFields{"source": source}),
	}
}

// Start consumes in the background until ctx is done.
func (c *TelemetryConsumer) Start(ctx context.Context, prefetch int) {
	c.conn.Consume(ctx, QueueTelemetry, prefetch, func(ctx context.Context, d amqp.Delivery) {
		c.handle(ctx, d)
	})
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *TelemetryConsumer) handle(ctx context.Context, d amqp.Delivery) {
	c.process(ctx, d.RoutingKey, d.Body, d)
}

// process decodes body and hands it to the sink. Bad payloads are dropped;
// a sink failure requeues the delivery.
func (c *TelemetryConsumer) process(ctx context.Context, routingKey string, body []byte, ack acknowledger) {
	metrics.TelemetryReceived.WithLabelValues(source).Inc()

	sample, err := c.decoder.Decode(body, ingest.IDFromTopic(strings.ReplaceAll(routingKey, ".", "/")))
	if err != nil {
		metrics.TelemetryRejected.WithLabelValues(ingest.RejectReason(err)).Inc()
		c.log.WithFields(logger.LogFields{"routing_key": routingKey}).Warn("telemetry_payload_rejected", err.Error())
		_ = ack.Nack(false, false)
		return
	}

	if err := c.sink.Submit(ctx, sample); err != nil {
		c.log.WithFields(logger.LogFields{"bus_id": sample.VehicleID}).Error("telemetry_submit_failed", err)
		_ = ack.Nack(false, true)
		return
	}
	_ = ack.Ack(false)
}
