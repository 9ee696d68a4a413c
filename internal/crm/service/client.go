package service

import (
	"context"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/permissions"
)

// ClientService handles customer records
type ClientService struct {
	caps    CapsSource
	roles   *RoleResolver
	clients ClientStore
	logger  *logger.Logger
}

// NewClientService creates a new client service
func NewClientService(caps CapsSource, roles *RoleResolver, clients ClientStore, log *logger.Logger) *ClientService {
	return &ClientService{
		caps:    caps,
		roles:   roles,
		clients: clients,
		logger:  log.WithComponent("clients"),
	}
}

func (s *ClientService) authorize(ctx context.Context, caller *actor.Actor, permission string) (domain.Caps, error) {
	if _, err := s.roles.RequirePermission(ctx, caller, permission); err != nil {
		return domain.Caps{}, err
	}
	return s.caps.Caps(ctx)
}

// List returns the tenant's clients.
func (s *ClientService) List(ctx context.Context, caller *actor.Actor) ([]domain.Client, error) {
	caps, err := s.authorize(ctx, caller, permissions.ClientsRead)
	if err != nil {
		return nil, err
	}
	return s.clients.List(ctx, caps, caller.TenantID)
}

// Get returns one client.
func (s *ClientService) Get(ctx context.Context, caller *actor.Actor, id string) (*domain.Client, error) {
	caps, err := s.authorize(ctx, caller, permissions.ClientsRead)
	if err != nil {
		return nil, err
	}
	return s.clients.Get(ctx, caps, caller.TenantID, id)
}

// Create adds a client. Profile fields need the profile columns.
func (s *ClientService) Create(ctx context.Context, caller *actor.Actor, in domain.ClientInput) (*domain.Client, error) {
	caps, err := s.authorize(ctx, caller, permissions.ClientsWrite)
	if err != nil {
		return nil, err
	}
	if in.HasProfile() && !caps.HasClientProfile {
		return nil, errors.SchemaUpgradePending("client profile fields")
	}

	c := clientFromInput(caller.TenantID, in)
	if err := s.clients.Create(ctx, caps, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update replaces a client's fields.
func (s *ClientService) Update(ctx context.Context, caller *actor.Actor, id string, in domain.ClientInput) (*domain.Client, error) {
	caps, err := s.authorize(ctx, caller, permissions.ClientsWrite)
	if err != nil {
		return nil, err
	}
	if in.HasProfile() && !caps.HasClientProfile {
		return nil, errors.SchemaUpgradePending("client profile fields")
	}

	c := clientFromInput(caller.TenantID, in)
	c.ID = id
	if err := s.clients.Update(ctx, caps, c); err != nil {
		return nil, err
	}
	return s.clients.Get(ctx, caps, caller.TenantID, id)
}

// Delete removes a client.
func (s *ClientService) Delete(ctx context.Context, caller *actor.Actor, id string) error {
	if _, err := s.authorize(ctx, caller, permissions.ClientsWrite); err != nil {
		return err
	}
	return s.clients.Delete(ctx, caller.TenantID, id)
}

func clientFromInput(tenantID string, in domain.ClientInput) *domain.Client {
	return &domain.Client{
		TenantID: tenantID,
		Name:     in.Name,
		Email:    in.Email,
		Company:  in.Company,
		Phone:    in.Phone,
		Website:  in.Website,
		Address:  in.Address,
		Notes:    in.Notes,
	}
}
