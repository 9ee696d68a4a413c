// Package service holds the CRM business rules: capability gating, role
// checks, deal visibility and the forecast math. Persistence sits behind
// the store interfaces declared here so the rules can be tested without a
// database.
package service

import (
	"context"
	"io"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/internal/crm/repository"
	"github.com/brightdesk/crm-backend/internal/fx"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/messaging"
	"github.com/brightdesk/crm-backend/pkg/metrics"
)

// CapsSource reports the live schema capabilities.
type CapsSource interface {
	Caps(ctx context.Context) (domain.Caps, error)
}

// TxRunner runs fn in a transaction carried by ctx.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(context.Context) error) error
}

// FXSource provides the current USD exchange-rate snapshot.
type FXSource interface {
	Snapshot(ctx context.Context) (*fx.Snapshot, error)
}

// FileStore keeps uploaded files.
type FileStore interface {
	Save(ctx context.Context, tenantID, category, filename string, r io.Reader) (string, error)
	Remove(path string) error
}

type DealStore interface {
	List(ctx context.Context, caps domain.Caps, f repository.DealFilter) ([]domain.Deal, error)
	Get(ctx context.Context, caps domain.Caps, f repository.DealFilter, id string) (*domain.Deal, error)
	Insert(ctx context.Context, caps domain.Caps, deal *domain.Deal) error
	Update(ctx context.Context, caps domain.Caps, tenantID, id string, p repository.DealPatch) error
	SetStage(ctx context.Context, tenantID, id, stageID string) error
	SetProposalPath(ctx context.Context, tenantID, id, path string) error
	Delete(ctx context.Context, tenantID, id string) error
	InsertItems(ctx context.Context, items []domain.DealItem) error
	ListItems(ctx context.Context, tenantID, dealID string) ([]domain.DealItem, error)
	DeleteItems(ctx context.Context, tenantID, dealID string) error
	InsertHistory(ctx context.Context, h *domain.StageHistory) error
	ListHistory(ctx context.Context, tenantID, dealID string) ([]domain.StageHistory, error)
	DeleteHistory(ctx context.Context, tenantID, dealID string) error
}

type PipelineStore interface {
	List(ctx context.Context, tenantID string) ([]domain.Pipeline, error)
	Get(ctx context.Context, tenantID, id string) (*domain.Pipeline, error)
	Oldest(ctx context.Context, tenantID string) (*domain.Pipeline, error)
	Create(ctx context.Context, p *domain.Pipeline) error
	ListStages(ctx context.Context, tenantID, pipelineID string) ([]domain.Stage, error)
	ListTenantStages(ctx context.Context, tenantID string) ([]domain.Stage, error)
	GetStage(ctx context.Context, tenantID, id string) (*domain.Stage, error)
	FirstStage(ctx context.Context, tenantID, pipelineID string) (*domain.Stage, error)
}

type ClientStore interface {
	List(ctx context.Context, caps domain.Caps, tenantID string) ([]domain.Client, error)
	Get(ctx context.Context, caps domain.Caps, tenantID, id string) (*domain.Client, error)
	Exists(ctx context.Context, tenantID, id string) (bool, error)
	Create(ctx context.Context, caps domain.Caps, c *domain.Client) error
	Update(ctx context.Context, caps domain.Caps, c *domain.Client) error
	Delete(ctx context.Context, tenantID, id string) error
}

type ProductStore interface {
	List(ctx context.Context, tenantID string, activeOnly bool) ([]domain.Product, error)
	Get(ctx context.Context, tenantID, id string) (*domain.Product, error)
	FindActive(ctx context.Context, tenantID string, ids []string) ([]domain.Product, error)
	Create(ctx context.Context, p *domain.Product) error
	Update(ctx context.Context, p *domain.Product) error
	Deactivate(ctx context.Context, tenantID, id string) error
}

type UserStore interface {
	Role(ctx context.Context, tenantID, id string) (domain.Role, error)
	Get(ctx context.Context, caps domain.Caps, tenantID, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, caps domain.Caps, email string) (*domain.User, error)
	List(ctx context.Context, caps domain.Caps, tenantID string) ([]domain.User, error)
	Create(ctx context.Context, caps domain.Caps, u *domain.User) error
	SetRole(ctx context.Context, tenantID, id string, role domain.Role) error
	CountOwners(ctx context.Context, tenantID string) (int, error)
}

type TenantStore interface {
	Create(ctx context.Context, t *domain.Tenant) error
	Get(ctx context.Context, id string) (*domain.Tenant, error)
	Settings(ctx context.Context, tenantID string) (*domain.TenantSettings, error)
	UpdateSettings(ctx context.Context, tenantID string, s *domain.TenantSettings) error
}

type SubscriptionStore interface {
	Get(ctx context.Context, tenantID string) (*domain.Subscription, error)
	Create(ctx context.Context, s *domain.Subscription) error
}

type InvoiceStore interface {
	List(ctx context.Context, tenantID string, status domain.InvoiceStatus) ([]domain.Invoice, error)
	Get(ctx context.Context, tenantID, id string) (*domain.Invoice, error)
	Create(ctx context.Context, inv *domain.Invoice) error
	SetStatus(ctx context.Context, tenantID, id string, status domain.InvoiceStatus) error
	Delete(ctx context.Context, tenantID, id string) error
	OutstandingByCurrency(ctx context.Context, tenantID string) ([]repository.CurrencyTotal, error)
}

type TaskStore interface {
	List(ctx context.Context, f repository.TaskFilter) ([]domain.Task, error)
	Get(ctx context.Context, tenantID, id string) (*domain.Task, error)
	Create(ctx context.Context, t *domain.Task) error
	Update(ctx context.Context, t *domain.Task) error
	Delete(ctx context.Context, tenantID, id string) error
	CountOpen(ctx context.Context, tenantID, assigneeID string) (int, error)
}

// publish sends an event without failing the request. The write it
// describes has already committed.
func publish(ctx context.Context, p messaging.EventPublisher, log *logger.Logger, eventType string, data any) {
	if err := p.Publish(ctx, eventType, data); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

func orNop(p messaging.EventPublisher) messaging.EventPublisher {
	if p == nil {
		return messaging.NopPublisher{}
	}
	return p
}

// requireCaller rejects requests that reached a service without an
// authenticated actor.
func requireCaller(caller *actor.Actor) error {
	if caller == nil || caller.ID == "" || caller.TenantID == "" {
		return errors.Unauthorized("authentication required")
	}
	return nil
}

// visibility builds the deal filter for caller. Members only see deals they
// own, which needs the owner column. Without it they see every deal of the
// tenant; that gap is logged and counted.
func visibility(caps domain.Caps, caller *actor.Actor, role domain.Role, log *logger.Logger) repository.DealFilter {
	f := repository.DealFilter{TenantID: caller.TenantID}
	if role.AtLeast(domain.RoleAdmin) {
		return f
	}
	if caps.HasOwnerID {
		f.OwnerID = caller.ID
		return f
	}
	metrics.VisibilityDegradedTotal.Inc()
	log.Warn().
		Str("user_id", caller.ID).
		Str("tenant_id", caller.TenantID).
		Msg("owner column missing, member sees all tenant deals")
	return f
}

func ptr[T any](v T) *T {
	return &v
}

func currencyOr(c, fallback string) string {
	if c == "" {
		return fallback
	}
	return c
}
