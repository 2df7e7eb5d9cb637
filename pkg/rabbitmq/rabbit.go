package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"bus-fleet/pkg/config"
	"bus-fleet/pkg/logger"
)

const (
	maxRetries    = 10
	retryInterval = 3 * time.Second
	maxBackoff    = 30 * time.Second
)

var ErrNotConnected = errors.New("rabbitmq is not connected")

type Exchange struct {
	Name string
	Kind string
}

type Binding struct {
	Queue      string
	RoutingKey string
	Exchange   string
}

// Topology is declared on connect and again after every reconnect.
type Topology struct {
	Exchanges []Exchange
	Queues    []string
	Bindings  []Binding
}

// Connection wraps an amqp.Connection and reconnects when the broker drops it.
type Connection struct {
	logger      logger.Logger
	dsn         string
	topology    Topology
	conn        *amqp.Connection
	pubChannel  *amqp.Channel
	mu          sync.RWMutex // guards conn and pubChannel across reconnects
	isConnected bool
	notifyClose chan *amqp.Error
	done        chan struct{}
	closeOnce   sync.Once
}

// DSN builds the broker URL with escaped credentials.
func DSN(cfg *config.Config) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(cfg.RabbitMQ.User, cfg.RabbitMQ.Password),
		Host:   net.JoinHostPort(cfg.RabbitMQ.Host, strconv.Itoa(cfg.RabbitMQ.Port)),
		Path:   "/",
	}
	return u.String()
}

func NewConnection(ctx context.Context, cfg *config.Config, topology Topology, log logger.Logger) (*Connection, error) {
	c := &Connection{
		logger:   log,
		dsn:      DSN(cfg),
		topology: topology,
		done:     make(chan struct{}),
	}
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = c.connect(); err != nil {
			log.Error("rabbitmq_connect_retry", fmt.Errorf("failed to connect to RabbitMQ (attempt %d/%d): %w", i+1, maxRetries, err))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryInterval):
			}
			continue
		}
		log.Info("rabbitmq_connect", "Initial RabbitMQ connection established")
		if setupErr := c.SetupTopology(); setupErr != nil {
			c.Close()
			return nil, fmt.Errorf("failed to setup RabbitMQ topology: %w", setupErr)
		}
		go c.reconnectLoop()
		return c, nil
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d retries: %w", maxRetries, err)
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.dsn)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open publisher channel: %w", err)
	}

	c.conn = conn
	c.pubChannel = ch
	c.isConnected = true
	c.notifyClose = make(chan *amqp.Error, 1)
	c.conn.NotifyClose(c.notifyClose)
	return nil
}

func (c *Connection) reconnectLoop() {
	for {
		select {
		case <-c.done:
			return
		case err := <-c.notifyClose:
			if err == nil {
				c.logger.Info("rabbitmq_reconnect_loop", "Connection closed gracefully")
				return
			}
			c.logger.Error("rabbitmq_disconnect", fmt.Errorf("RabbitMQ connection lost: %w", err))
			c.mu.Lock()
			c.isConnected = false
			c.mu.Unlock()

			backoff := time.Second
			for {
				select {
				case <-c.done:
					return
				case <-time.After(backoff):
				}
				if err := c.connect(); err != nil {
					c.logger.Error("rabbitmq_reconnect_failed", fmt.Errorf("failed to reconnect to RabbitMQ: %w", err))
					backoff = min(time.Duration(float64(backoff)*1.5), maxBackoff)
					continue
				}
				if err := c.SetupTopology(); err != nil {
					c.logger.Error("rabbitmq_reconnect_setup_failed", fmt.Errorf("failed to re-declare topology: %w", err))
					continue
				}
				c.logger.Info("rabbitmq_reconnect_success", "RabbitMQ connection re-established")
				break
			}
		}
	}
}

// SetupTopology declares the configured exchanges, queues and bindings.
func (c *Connection) SetupTopology() error {
	c.mu.RLock()
	if !c.isConnected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	ch, err := c.conn.Channel()
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to open setup channel: %w", err)
	}
	defer ch.Close()

	for _, ex := range c.topology.Exchanges {
		if err := ch.ExchangeDeclare(ex.Name, ex.Kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex.Name, err)
		}
	}
	for _, queue := range c.topology.Queues {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
	}
	for _, b := range c.topology.Bindings {
		if err := ch.QueueBind(b.Queue, b.RoutingKey, b.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to %s: %w", b.Queue, b.Exchange, err)
		}
	}
	c.logger.Info("rabbitmq_setup_success", "RabbitMQ topology declared")
	return nil
}

// Publish sends a persistent JSON message. It is safe for concurrent use.
func (c *Connection) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isConnected {
		return ErrNotConnected
	}
	return c.pubChannel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
}

// Consume delivers messages from queueName to handler one at a time, in
// delivery order, re-opening the channel after connection loss. handler is
// responsible for acknowledging each delivery.
func (c *Connection) Consume(ctx context.Context, queueName string, prefetch int, handler func(context.Context, amqp.Delivery)) {
	log := c.logger.WithFields(logger.LogFields{"queue": queueName})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			default:
			}

			ch, err := c.consumerChannel(prefetch)
			if err != nil {
				log.Warn("consumer_wait", err.Error())
				time.Sleep(retryInterval)
				continue
			}

			msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
			if err != nil {
				log.Error("consumer_consume_fail", fmt.Errorf("failed to start consuming: %w", err))
				_ = ch.Close()
				time.Sleep(retryInterval)
				continue
			}
			log.Info("consumer_running", "Consumer started")

			if stop := c.consumeLoop(ctx, log, ch, msgs, handler); stop {
				_ = ch.Close()
				return
			}
		}
	}()
}

func (c *Connection) consumerChannel(prefetch int) (*amqp.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.isConnected {
		return nil, ErrNotConnected
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}
	return ch, nil
}

// consumeLoop reports true when the consumer should exit for good.
func (c *Connection) consumeLoop(ctx context.Context, log logger.Logger, ch *amqp.Channel, msgs <-chan amqp.Delivery, handler func(context.Context, amqp.Delivery)) bool {
	notifyChanClose := ch.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			log.Info("consumer_shutdown", "Stopping consumer")
			return true
		case <-c.done:
			return true
		case err := <-notifyChanClose:
			log.Error("consumer_channel_closed", fmt.Errorf("consumer channel closed: %v", err))
			return false
		case msg, ok := <-msgs:
			if !ok {
				log.Warn("consumer_delivery_closed", "Delivery channel closed")
				return false
			}
			handler(ctx, msg)
		}
	}
}

// Close shuts down the connection and the reconnect loop.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.logger.Info("rabbitmq_close", "Closing RabbitMQ connection")
		c.isConnected = false
		if c.pubChannel != nil {
			_ = c.pubChannel.Close()
		}
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
