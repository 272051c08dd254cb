package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/arnold/phasetrack-api/internal/logger"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const ExchangeName = "events"

// Routing keys published on the events exchange.
const (
	RouteTaskCreated       = "task.created"
	RouteTaskUpdated       = "task.updated"
	RouteTaskDeleted       = "task.deleted"
	RoutePhaseTransitioned = "project.phase.transitioned"
	RouteCompletionUpdated = "project.completion.updated"
)

// Publisher publishes domain events to a RabbitMQ topic exchange. The zero
// value drops every event.
type Publisher struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

var Events = &Publisher{}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{conn: conn, channel: ch}, nil
}

// InitEvents connects the global publisher. An empty url or a failed dial
// leaves events disabled.
func InitEvents(url string) {
	if url == "" {
		logger.Log.Info("amqp: no url configured, events disabled")
		return
	}
	p, err := NewPublisher(url)
	if err != nil {
		logger.Log.Warn("amqp: events disabled", zap.Error(err))
		return
	}
	Events = p
	logger.Log.Info("amqp: publishing events", zap.String("exchange", ExchangeName))
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Publish sends payload as JSON with the given routing key.
func (p *Publisher) Publish(routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.channel.Publish(
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
		},
	)
}

// Emit publishes and logs failures. Events are best effort.
func (p *Publisher) Emit(routingKey string, payload any) {
	if err := p.Publish(routingKey, payload); err != nil {
		logger.Log.Warn("amqp: publish failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
}
