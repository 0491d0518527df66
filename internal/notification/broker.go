package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// BrokerPublisher publishes intents as JSON to a durable RabbitMQ queue so
// other channels (chat bots, mail) can pick them up.
type BrokerPublisher struct {
	url   string
	queue string
	dial  func(url string) (*amqp.Connection, error)
}

// NewBrokerPublisher returns a publisher for the given queue.
func NewBrokerPublisher(url, queue string) *BrokerPublisher {
	return &BrokerPublisher{url: url, queue: queue, dial: amqp.Dial}
}

// Publish opens a short-lived connection, makes sure the queue exists and
// sends one persistent message.
func (p *BrokerPublisher) Publish(ctx context.Context, in Intent) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}

	conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel open failed: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		return fmt.Errorf("rabbitmq queue declare failed: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(in.Kind),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq publish failed: %w", err)
	}
	return nil
}
