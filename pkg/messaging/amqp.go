package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/pipeline"
)

const (
	maxReconnectAttempts = 10
	maxReconnectBackoff  = 30 * time.Second
)

// AMQPPublisher pushes job lifecycle events to an AMQP queue. Events
// carry identifiers and metrics only; transcript text or PII never
// crosses this boundary. Publishing is best-effort: while the broker
// connection is down events are dropped with a log line instead of
// blocking workers, and a monitor goroutine redials in the background.
type AMQPPublisher struct {
	logger    *logrus.Logger
	url       string
	queueName string
	stopChan  chan struct{}
	stopOnce  sync.Once

	mu        sync.RWMutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
}

// NewAMQPPublisher creates a publisher for the configured queue
func NewAMQPPublisher(logger *logrus.Logger, cfg config.MessagingConfig) *AMQPPublisher {
	return &AMQPPublisher{
		logger:    logger,
		url:       cfg.AMQPUrl,
		queueName: cfg.QueueName,
		stopChan:  make(chan struct{}),
	}
}

// Connect dials the broker and declares the event queue
func (p *AMQPPublisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.stopChan:
		return fmt.Errorf("publisher is closed")
	default:
	}

	if p.connected {
		return nil
	}
	if p.url == "" || p.queueName == "" {
		return fmt.Errorf("AMQP URL or queue name not configured")
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if _, err := channel.QueueDeclare(
		p.queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	p.conn = conn
	p.channel = channel
	p.connected = true

	p.logger.WithFields(logrus.Fields{
		"queue": p.queueName,
	}).Info("Connected to AMQP server")

	go p.monitorConnection()

	return nil
}

// monitorConnection watches for the broker dropping us and redials.
// One monitor goroutine exists per live connection; a successful
// reconnect arms a fresh one via Connect.
func (p *AMQPPublisher) monitorConnection() {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn == nil {
		return
	}

	closed := make(chan *amqp.Error, 1)
	conn.NotifyClose(closed)

	select {
	case <-p.stopChan:
		return
	case err := <-closed:
		if err == nil {
			// Clean close from our side
			return
		}
		p.logger.WithError(err).Warn("AMQP connection lost, attempting to reconnect")
	}

	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	p.Reconnect()
}

// Reconnect redials with exponential backoff until the broker answers
// or the attempt budget runs out. Safe to run in the background; Close
// aborts it.
func (p *AMQPPublisher) Reconnect() {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		select {
		case <-p.stopChan:
			return
		default:
		}

		p.logger.WithField("attempt", attempt).Info("Reconnecting to AMQP server")
		err := p.Connect()
		if err == nil {
			p.logger.Info("Successfully reconnected to AMQP server")
			return
		}
		p.logger.WithError(err).WithField("attempt", attempt).Error("Failed to reconnect to AMQP server")

		select {
		case <-p.stopChan:
			return
		case <-time.After(reconnectBackoff(attempt)):
		}
	}

	p.logger.Warn("Giving up on AMQP reconnection, lifecycle events disabled")
}

// reconnectBackoff doubles per attempt, capped at maxReconnectBackoff
func reconnectBackoff(attempt int) time.Duration {
	backoff := time.Duration(1<<uint(attempt-1)) * time.Second
	if backoff > maxReconnectBackoff {
		backoff = maxReconnectBackoff
	}
	return backoff
}

// PublishJobEvent sends one lifecycle event. Implements
// pipeline.EventPublisher.
func (p *AMQPPublisher) PublishJobEvent(event pipeline.JobEvent) {
	p.mu.RLock()
	channel, connected := p.channel, p.connected
	p.mu.RUnlock()

	if !connected {
		p.logger.WithField("job_id", event.JobID).Debug("AMQP not connected, dropping lifecycle event")
		return
	}

	body, err := json.Marshal(struct {
		pipeline.JobEvent
		Timestamp time.Time `json:"timestamp"`
	}{event, time.Now().UTC()})
	if err != nil {
		p.logger.WithError(err).Error("Failed to encode lifecycle event")
		return
	}

	if err := channel.Publish(
		"",          // default exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	); err != nil {
		p.logger.WithError(err).WithField("job_id", event.JobID).Warn("Failed to publish lifecycle event")
		return
	}

	p.logger.WithFields(logrus.Fields{
		"job_id": event.JobID,
		"type":   event.Type,
		"state":  event.State,
	}).Debug("Lifecycle event published")
}

// Close shuts down the broker connection and stops reconnection
func (p *AMQPPublisher) Close() {
	p.stopOnce.Do(func() { close(p.stopChan) })

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	p.connected = false
}
