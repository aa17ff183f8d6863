package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/michaelprice232/book-harvester/internal/config"
	"github.com/michaelprice232/book-harvester/internal/observability"
)

// RabbitMQBroker publishes to RabbitMQ on a confirm-mode channel so that each
// publish returns a deferred confirmation usable as a Pending handle.
type RabbitMQBroker struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  observability.Logger

	mu       sync.Mutex
	declared map[string]bool
}

// NewRabbitMQBroker connects to RabbitMQ and puts the channel into confirm mode.
func NewRabbitMQBroker(cfg *config.RabbitMQConfig, logger observability.Logger) (*RabbitMQBroker, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	logger.Info("RabbitMQ broker initialized")

	return &RabbitMQBroker{
		conn:     conn,
		channel:  channel,
		logger:   logger,
		declared: make(map[string]bool),
	}, nil
}

// Publish sends one message and returns its deferred confirmation.
func (b *RabbitMQBroker) Publish(ctx context.Context, msg *Message) (Pending, error) {
	body, err := json.Marshal(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := b.declareOnce(msg.Topic); err != nil {
		return nil, err
	}

	dc, err := b.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		"",        // exchange (empty for direct queue)
		msg.Topic, // routing key (queue name)
		false,     // mandatory
		false,     // immediate
		amqp091.Publishing{
			DeliveryMode: amqp091.Persistent,
			ContentType:  "application/json",
			MessageId:    msg.Key,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		b.logger.Error("failed to publish message", "error", err, "topic", msg.Topic)
		return nil, fmt.Errorf("failed to publish message: %w", err)
	}

	return &rabbitPending{dc: dc}, nil
}

// declareOnce declares the durable queue the first time a topic is used.
// Queue declaration is idempotent on the broker side.
func (b *RabbitMQBroker) declareOnce(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.declared[topic] {
		return nil
	}

	_, err := b.channel.QueueDeclare(
		topic, // queue name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		b.logger.Error("failed to declare queue", "error", err, "queue", topic)
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	b.declared[topic] = true
	return nil
}

func (b *RabbitMQBroker) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

type rabbitPending struct {
	dc *amqp091.DeferredConfirmation
}

func (p *rabbitPending) Done() <-chan struct{} {
	return p.dc.Done()
}

func (p *rabbitPending) Err() error {
	if p.dc.Acked() {
		return nil
	}
	return ErrNacked
}
