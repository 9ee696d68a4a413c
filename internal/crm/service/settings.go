package service

import (
	"context"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/permissions"
)

// SettingsService handles tenant branding, CRM defaults and the
// subscription, all of which live in upgrade-created columns or tables.
type SettingsService struct {
	caps          CapsSource
	roles         *RoleResolver
	tenants       TenantStore
	pipelines     PipelineStore
	subscriptions SubscriptionStore
	logger        *logger.Logger
}

// NewSettingsService creates a new settings service
func NewSettingsService(
	caps CapsSource,
	roles *RoleResolver,
	tenants TenantStore,
	pipelines PipelineStore,
	subscriptions SubscriptionStore,
	log *logger.Logger,
) *SettingsService {
	return &SettingsService{
		caps:          caps,
		roles:         roles,
		tenants:       tenants,
		pipelines:     pipelines,
		subscriptions: subscriptions,
		logger:        log.WithComponent("settings"),
	}
}

// Get returns the tenant's settings.
func (s *SettingsService) Get(ctx context.Context, caller *actor.Actor) (*domain.TenantSettings, error) {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.SettingsRead); err != nil {
		return nil, err
	}
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return nil, err
	}
	if !caps.HasTenantSettings {
		return nil, errors.SchemaUpgradePending("tenant settings")
	}
	return s.tenants.Settings(ctx, caller.TenantID)
}

// Update replaces the tenant's settings. Requires ADMIN.
func (s *SettingsService) Update(ctx context.Context, caller *actor.Actor, in domain.SettingsInput) (*domain.TenantSettings, error) {
	if _, err := s.roles.RequireAtLeast(ctx, caller, domain.RoleAdmin); err != nil {
		return nil, err
	}
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return nil, err
	}
	if !caps.HasTenantSettings {
		return nil, errors.SchemaUpgradePending("tenant settings")
	}

	if in.DefaultPipelineID != nil && *in.DefaultPipelineID != "" {
		if _, err := s.pipelines.Get(ctx, caller.TenantID, *in.DefaultPipelineID); err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return nil, errors.BadRequest("default pipeline must belong to this workspace")
			}
			return nil, err
		}
	} else {
		in.DefaultPipelineID = nil
	}

	settings := &domain.TenantSettings{
		LogoURL:           in.LogoURL,
		PrimaryColor:      in.PrimaryColor,
		DefaultPipelineID: in.DefaultPipelineID,
		DefaultCurrency:   in.DefaultCurrency,
	}
	if err := s.tenants.UpdateSettings(ctx, caller.TenantID, settings); err != nil {
		return nil, err
	}

	s.logger.Info().Str("tenant_id", caller.TenantID).Msg("tenant settings updated")
	return settings, nil
}

// Subscription returns the tenant's plan. Requires ADMIN.
func (s *SettingsService) Subscription(ctx context.Context, caller *actor.Actor) (*domain.Subscription, error) {
	if _, err := s.roles.RequireAtLeast(ctx, caller, domain.RoleAdmin); err != nil {
		return nil, err
	}
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return nil, err
	}
	if !caps.HasSubscriptions {
		return nil, errors.SchemaUpgradePending("subscriptions")
	}
	return s.subscriptions.Get(ctx, caller.TenantID)
}
