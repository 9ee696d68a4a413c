package consumers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/messaging"
)

type countingProbe struct{ n int }

func (p *countingProbe) Invalidate() { p.n++ }

func TestHandleSchemaUpgraded(t *testing.T) {
	probe := &countingProbe{}
	c := newSchemaEventConsumer(probe, logger.Nop())

	event, err := messaging.NewEvent(messaging.EventSchemaUpgraded, "crm-api", "", messaging.SchemaUpgradedEvent{
		Applied: []string{"deals.owner_id"},
		Host:    "api-2",
	})
	require.NoError(t, err)

	require.NoError(t, c.handleSchemaUpgraded(context.Background(), event))
	assert.Equal(t, 1, probe.n)
}

func TestHandleSchemaUpgraded_BadPayload(t *testing.T) {
	probe := &countingProbe{}
	c := newSchemaEventConsumer(probe, logger.Nop())

	event := &messaging.Event{Type: messaging.EventSchemaUpgraded, Data: []byte(`"not an object"`)}

	assert.Error(t, c.handleSchemaUpgraded(context.Background(), event))
	assert.Zero(t, probe.n)
}
