package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventDealCreated      = "deal.created"
	EventDealUpdated      = "deal.updated"
	EventDealStageChanged = "deal.stage.changed"
	EventDealDeleted      = "deal.deleted"
	EventProposalUploaded = "deal.proposal.uploaded"

	EventUserCreated     = "user.created"
	EventUserRoleChanged = "user.role.changed"

	EventTenantRegistered = "tenant.registered"
	EventSchemaUpgraded   = "schema.upgraded"
)

// DefaultExchange is the topic exchange all CRM events go through.
const DefaultExchange = "crm.events"

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	TenantID      string          `json:"tenant_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// DealEvent is published for deal lifecycle changes
type DealEvent struct {
	DealID     string `json:"deal_id"`
	TenantID   string `json:"tenant_id"`
	PipelineID string `json:"pipeline_id,omitempty"`
	ActorID    string `json:"actor_id"`
}

// DealStageChangedEvent is published when a deal moves between stages
type DealStageChangedEvent struct {
	DealID      string `json:"deal_id"`
	TenantID    string `json:"tenant_id"`
	FromStageID string `json:"from_stage_id"`
	ToStageID   string `json:"to_stage_id"`
	ActorID     string `json:"actor_id"`
}

// UserCreatedEvent is published when a user is registered or invited
type UserCreatedEvent struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// UserRoleChangedEvent is published when a user's role changes
type UserRoleChangedEvent struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	OldRole  string `json:"old_role"`
	NewRole  string `json:"new_role"`
	ActorID  string `json:"actor_id"`
}

// TenantRegisteredEvent is published when a new workspace is created
type TenantRegisteredEvent struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	OwnerID  string `json:"owner_id"`
}

// SchemaUpgradedEvent tells other instances to drop their capability caches
type SchemaUpgradedEvent struct {
	Applied []string `json:"applied"`
	Host    string   `json:"host,omitempty"`
}
