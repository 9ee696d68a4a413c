package consumers

import (
	"context"

	"github.com/brightdesk/crm-backend/internal/schema"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/messaging"
)

// SchemaEventConsumer drops this instance's capability cache when any
// instance upgrades the schema.
type SchemaEventConsumer struct {
	consumer *messaging.Consumer
	probe    schema.Invalidator
	logger   *logger.Logger
}

// NewSchemaEventConsumer subscribes a private queue to schema events
func NewSchemaEventConsumer(rmq *messaging.RabbitMQ, exchange string, probe schema.Invalidator, log *logger.Logger) (*SchemaEventConsumer, error) {
	consumer, err := messaging.NewBroadcastConsumer(rmq, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(exchange, messaging.EventSchemaUpgraded); err != nil {
		return nil, err
	}

	c := newSchemaEventConsumer(probe, log)
	c.consumer = consumer
	consumer.RegisterHandler(messaging.EventSchemaUpgraded, c.handleSchemaUpgraded)

	return c, nil
}

func newSchemaEventConsumer(probe schema.Invalidator, log *logger.Logger) *SchemaEventConsumer {
	return &SchemaEventConsumer{
		probe:  probe,
		logger: log.WithComponent("schema-consumer"),
	}
}

// Start starts consuming messages
func (c *SchemaEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *SchemaEventConsumer) handleSchemaUpgraded(_ context.Context, event *messaging.Event) error {
	var data messaging.SchemaUpgradedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.probe.Invalidate()

	c.logger.Info().
		Strs("applied", data.Applied).
		Str("host", data.Host).
		Msg("schema upgraded elsewhere, capability cache invalidated")
	return nil
}
