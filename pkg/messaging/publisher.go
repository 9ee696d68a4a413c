package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/tenant"
)

// EventPublisher publishes domain events. Services depend on this rather
// than on the broker so they run without RabbitMQ.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// Publisher handles publishing events to RabbitMQ
type Publisher struct {
	channel  *amqp.Channel
	exchange string
	source   string
	logger   *logger.Logger
}

// NewPublisher creates a new publisher for the given exchange
func NewPublisher(rmq *RabbitMQ, exchange, source string, log *logger.Logger) (*Publisher, error) {
	if err := rmq.DeclareExchange(exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Publisher{
		channel:  rmq.Channel(),
		exchange: exchange,
		source:   source,
		logger:   log,
	}, nil
}

// Publish publishes an event to the exchange using the event type as routing key
func (p *Publisher) Publish(ctx context.Context, eventType string, data any) error {
	correlationID := getCorrelationID(ctx)

	event, err := NewEvent(eventType, p.source, correlationID, data)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	if tenantID, err := tenant.TenantID(ctx); err == nil {
		event.TenantID = tenantID
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		eventType,  // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			CorrelationId: correlationID,
			MessageId:     event.ID,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug().
		Str("event_type", eventType).
		Str("event_id", event.ID).
		Str("correlation_id", correlationID).
		Msg("event published")

	return nil
}

// NopPublisher drops events. Used when the broker is disabled.
type NopPublisher struct{}

// Publish implements EventPublisher
func (NopPublisher) Publish(context.Context, string, any) error { return nil }

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func getCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
