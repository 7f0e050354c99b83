package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/logger"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	OrderCreated       = "order.created"
	OrderStatusChanged = "order.status_changed"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, data any) error
}

// Message is the envelope written to the exchange.
type Message struct {
	Pattern    string    `json:"pattern"`
	Data       any       `json:"data"`
	RequestID  string    `json:"requestId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
}

var _ Publisher = (*AMQPPublisher)(nil)

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p, err := newPublisher(ch, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string) (*AMQPPublisher, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &AMQPPublisher{channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, data any) error {
	body, err := json.Marshal(Message{
		Pattern:    routingKey,
		Data:       data,
		RequestID:  logger.RequestIDFrom(ctx),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	logger.FromCtx(ctx).Debug("publishing event",
		zap.String("exchange", p.exchange),
		zap.String("routing_key", routingKey),
	)

	err = p.channel.Publish(p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// Noop discards every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }
