package messaging

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"audiopipe-server/pkg/config"
	"audiopipe-server/pkg/pipeline"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestConnectRequiresConfiguration(t *testing.T) {
	p := NewAMQPPublisher(testLogger(), config.MessagingConfig{})
	assert.Error(t, p.Connect())

	p = NewAMQPPublisher(testLogger(), config.MessagingConfig{QueueName: "events"})
	assert.Error(t, p.Connect())
}

func TestPublishWithoutConnectionDropsEvent(t *testing.T) {
	p := NewAMQPPublisher(testLogger(), config.MessagingConfig{
		AMQPUrl:   "amqp://localhost:5672",
		QueueName: "events",
	})

	// Must not panic or block when the broker was never reached
	p.PublishJobEvent(pipeline.JobEvent{
		Type:  "job_completed",
		JobID: "abc",
		State: pipeline.StateCompleted,
	})
}

func TestCloseIsIdempotent(t *testing.T) {
	p := NewAMQPPublisher(testLogger(), config.MessagingConfig{})
	p.Close()
	p.Close()
}

func TestReconnectBackoffSequence(t *testing.T) {
	assert.Equal(t, time.Second, reconnectBackoff(1))
	assert.Equal(t, 2*time.Second, reconnectBackoff(2))
	assert.Equal(t, 4*time.Second, reconnectBackoff(3))
	assert.Equal(t, 16*time.Second, reconnectBackoff(5))

	// Doubling caps out instead of growing without bound
	assert.Equal(t, maxReconnectBackoff, reconnectBackoff(6))
	assert.Equal(t, maxReconnectBackoff, reconnectBackoff(10))
}

func TestReconnectStopsWhenClosed(t *testing.T) {
	p := NewAMQPPublisher(testLogger(), config.MessagingConfig{
		AMQPUrl:   "amqp://127.0.0.1:1",
		QueueName: "events",
	})
	p.Close()

	done := make(chan struct{})
	go func() {
		p.Reconnect()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Reconnect did not honor Close")
	}
}
