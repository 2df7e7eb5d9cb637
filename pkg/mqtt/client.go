package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"bus-fleet/pkg/config"
	"bus-fleet/pkg/logger"
)

const (
	keepAlive      = 30
	connectTimeout = 10 * time.Second
	reconnectDelay = 3 * time.Second
)

var ErrNotStarted = errors.New("mqtt client not started")

// MessageHandler processes one received message.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

type subscription struct {
	filter  string
	qos     byte
	handler MessageHandler
}

// Client is an autopaho connection that re-subscribes after every reconnect.
type Client struct {
	log       logger.Logger
	brokerURL *url.URL
	clientID  string
	username  string
	password  string

	cm *autopaho.ConnectionManager

	mu   sync.RWMutex
	subs []subscription
}

func NewClient(cfg *config.Config, log logger.Logger) (*Client, error) {
	u, err := url.Parse(cfg.MQTT.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT broker url: %w", err)
	}
	return &Client{
		log:       log.WithFields(logger.LogFields{"broker": u.Host, "client_id": cfg.MQTT.ClientID}),
		brokerURL: u,
		clientID:  cfg.MQTT.ClientID,
		username:  cfg.MQTT.Username,
		password:  cfg.MQTT.Password,
	}, nil
}

// Start connects in the background. Use AwaitConnection to wait for the first
// successful connection.
func (c *Client) Start(ctx context.Context) error {
	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{c.brokerURL},
		KeepAlive:                     keepAlive,
		CleanStartOnInitialConnection: false,
		SessionExpiryInterval:         60,
		ReconnectBackoff:              autopaho.NewConstantBackoff(reconnectDelay),
		ConnectTimeout:                connectTimeout,
		ConnectUsername:               c.username,
		ConnectPassword:               []byte(c.password),
		OnConnectionUp:                c.onConnectionUp,
		OnConnectError: func(err error) {
			c.log.Error("mqtt_connect_failed", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.route,
			},
			OnClientError: func(err error) {
				c.log.Error("mqtt_client_error", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				reason := ""
				if d.Properties != nil {
					reason = d.Properties.ReasonString
				}
				c.log.Warn("mqtt_server_disconnect", fmt.Sprintf("Broker requested disconnect: %s", reason))
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start MQTT connection: %w", err)
	}
	c.cm = cm
	c.log.Info("mqtt_start", "MQTT client started")
	return nil
}

func (c *Client) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return ErrNotStarted
	}
	return c.cm.AwaitConnection(ctx)
}

// Subscribe registers handler for filter. Messages are handed to the handler
// on the paho reader goroutine, in broker order; handlers must not block long.
func (c *Client) Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return ErrNotStarted
	}
	c.mu.Lock()
	c.subs = append(c.subs, subscription{filter: filter, qos: byte(qos), handler: handler})
	c.mu.Unlock()

	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: byte(qos)}},
	}); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", filter, err)
	}
	c.log.WithFields(logger.LogFields{"topic": filter}).Info("mqtt_subscribed", "Subscribed to topic")
	return nil
}

func (c *Client) Publish(ctx context.Context, topic string, qos int, payload []byte) error {
	if c.cm == nil {
		return ErrNotStarted
	}
	_, err := c.cm.Publish(ctx, &paho.Publish{Topic: topic, QoS: byte(qos), Payload: payload})
	return err
}

func (c *Client) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	if err := c.cm.Disconnect(ctx); err != nil {
		c.log.Warn("mqtt_disconnect", err.Error())
		return
	}
	c.log.Info("mqtt_disconnect", "MQTT client disconnected")
}

func (c *Client) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.log.Info("mqtt_connected", "MQTT connection established")

	c.mu.RLock()
	subs := append([]subscription(nil), c.subs...)
	c.mu.RUnlock()
	if len(subs) == 0 {
		return
	}

	opts := make([]paho.SubscribeOptions, 0, len(subs))
	for _, s := range subs {
		opts = append(opts, paho.SubscribeOptions{Topic: s.filter, QoS: s.qos})
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: opts}); err != nil {
		c.log.Error("mqtt_resubscribe_failed", err)
	}
}

func (c *Client) route(p paho.PublishReceived) (bool, error) {
	c.mu.RLock()
	subs := c.subs
	c.mu.RUnlock()

	matched := false
	for _, s := range subs {
		if TopicMatches(s.filter, p.Packet.Topic) {
			s.handler(context.Background(), p.Packet.Topic, p.Packet.Payload)
			matched = true
		}
	}
	if !matched {
		c.log.WithFields(logger.LogFields{"topic": p.Packet.Topic}).Debug("mqtt_unhandled_topic", "No handler for topic")
	}
	return true, nil
}

// TopicMatches reports whether topic matches filter, honouring the + and #
// wildcards and $share/<group>/ prefixes.
func TopicMatches(filter, topic string) bool {
	if strings.HasPrefix(filter, "$share/") {
		if parts := strings.SplitN(filter, "/", 3); len(parts) == 3 {
			filter = parts[2]
		}
	}
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")
	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}
	return len(filterParts) == len(topicParts)
}
