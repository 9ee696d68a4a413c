// Package handler exposes the CRM services over HTTP.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/internal/crm/repository"
	"github.com/brightdesk/crm-backend/internal/crm/service"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/httputil"
)

// DealAPI is the deal surface used by DealHandler.
type DealAPI interface {
	Create(ctx context.Context, caller *actor.Actor, in domain.CreateDealInput) (*domain.Deal, error)
	FindAll(ctx context.Context, caller *actor.Actor, pipelineID string) ([]domain.Deal, error)
	FindOne(ctx context.Context, caller *actor.Actor, id string) (*domain.Deal, error)
	Update(ctx context.Context, caller *actor.Actor, id string, in domain.UpdateDealInput) (*domain.Deal, error)
	MoveStage(ctx context.Context, caller *actor.Actor, id, stageID string) (*domain.Deal, error)
	History(ctx context.Context, caller *actor.Actor, id string) ([]domain.StageHistory, error)
	Remove(ctx context.Context, caller *actor.Actor, id string) error
	UploadProposal(ctx context.Context, caller *actor.Actor, id, filename string, r io.Reader) (*domain.Deal, error)
	ProposalFile(ctx context.Context, caller *actor.Actor, id string) (string, error)
}

// ForecastAPI computes pipeline forecasts.
type ForecastAPI interface {
	Forecast(ctx context.Context, caller *actor.Actor, pipelineID string) (*domain.Forecast, error)
}

// DashboardAPI computes the tenant dashboard.
type DashboardAPI interface {
	Dashboard(ctx context.Context, caller *actor.Actor) (*domain.Dashboard, error)
}

// PipelineAPI manages pipelines.
type PipelineAPI interface {
	List(ctx context.Context, caller *actor.Actor) ([]domain.Pipeline, error)
	Get(ctx context.Context, caller *actor.Actor, id string) (*domain.Pipeline, error)
	Create(ctx context.Context, caller *actor.Actor, in domain.PipelineInput) (*domain.Pipeline, error)
}

// ClientAPI manages clients.
type ClientAPI interface {
	List(ctx context.Context, caller *actor.Actor) ([]domain.Client, error)
	Get(ctx context.Context, caller *actor.Actor, id string) (*domain.Client, error)
	Create(ctx context.Context, caller *actor.Actor, in domain.ClientInput) (*domain.Client, error)
	Update(ctx context.Context, caller *actor.Actor, id string, in domain.ClientInput) (*domain.Client, error)
	Delete(ctx context.Context, caller *actor.Actor, id string) error
}

// ProductAPI manages the product catalog.
type ProductAPI interface {
	List(ctx context.Context, caller *actor.Actor, activeOnly bool) ([]domain.Product, error)
	Create(ctx context.Context, caller *actor.Actor, in domain.ProductInput) (*domain.Product, error)
	Update(ctx context.Context, caller *actor.Actor, id string, in domain.ProductInput) (*domain.Product, error)
	Deactivate(ctx context.Context, caller *actor.Actor, id string) error
}

// UserAPI manages tenant users.
type UserAPI interface {
	List(ctx context.Context, caller *actor.Actor) ([]domain.User, error)
	Me(ctx context.Context, caller *actor.Actor) (*domain.User, error)
	Invite(ctx context.Context, caller *actor.Actor, in domain.InviteUserInput) (*domain.User, error)
	ChangeRole(ctx context.Context, caller *actor.Actor, id string, role domain.Role) (*domain.User, error)
}

// SettingsAPI reads and writes tenant settings.
type SettingsAPI interface {
	Get(ctx context.Context, caller *actor.Actor) (*domain.TenantSettings, error)
	Update(ctx context.Context, caller *actor.Actor, in domain.SettingsInput) (*domain.TenantSettings, error)
	Subscription(ctx context.Context, caller *actor.Actor) (*domain.Subscription, error)
}

// InvoiceAPI manages invoices.
type InvoiceAPI interface {
	List(ctx context.Context, caller *actor.Actor, status domain.InvoiceStatus) ([]domain.Invoice, error)
	Get(ctx context.Context, caller *actor.Actor, id string) (*domain.Invoice, error)
	Create(ctx context.Context, caller *actor.Actor, in domain.InvoiceInput) (*domain.Invoice, error)
	SetStatus(ctx context.Context, caller *actor.Actor, id string, status domain.InvoiceStatus) (*domain.Invoice, error)
	Delete(ctx context.Context, caller *actor.Actor, id string) error
}

// TaskAPI manages tasks.
type TaskAPI interface {
	List(ctx context.Context, caller *actor.Actor, f repository.TaskFilter) ([]domain.Task, error)
	Create(ctx context.Context, caller *actor.Actor, in domain.TaskInput) (*domain.Task, error)
	Update(ctx context.Context, caller *actor.Actor, id string, in domain.TaskInput) (*domain.Task, error)
	Delete(ctx context.Context, caller *actor.Actor, id string) error
}

// ExportAPI builds CSV tables.
type ExportAPI interface {
	Clients(ctx context.Context, caller *actor.Actor) (*service.Table, error)
	Invoices(ctx context.Context, caller *actor.Actor) (*service.Table, error)
}

// caller returns the authenticated actor, or nil. Services reject nil.
func caller(r *http.Request) *actor.Actor {
	return actor.FromContext(r.Context())
}

// decode reads a JSON body into v and validates it.
func decode(r *http.Request, v any) error {
	if err := httputil.DecodeJSON(r, v); err != nil {
		return err
	}
	return httputil.Validate(v)
}
