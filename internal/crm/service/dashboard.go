package service

import (
	"context"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/internal/crm/repository"
	"github.com/brightdesk/crm-backend/internal/fx"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/permissions"
)

// DashboardService summarises a tenant for the home screen.
type DashboardService struct {
	caps      CapsSource
	roles     *RoleResolver
	deals     DealStore
	pipelines PipelineStore
	tasks     TaskStore
	invoices  InvoiceStore
	fx        FXSource
	logger    *logger.Logger
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(
	caps CapsSource,
	roles *RoleResolver,
	deals DealStore,
	pipelines PipelineStore,
	tasks TaskStore,
	invoices InvoiceStore,
	rates FXSource,
	log *logger.Logger,
) *DashboardService {
	return &DashboardService{
		caps:      caps,
		roles:     roles,
		deals:     deals,
		pipelines: pipelines,
		tasks:     tasks,
		invoices:  invoices,
		fx:        rates,
		logger:    log.WithComponent("dashboard"),
	}
}

// Dashboard returns deal, task and invoice totals visible to the caller.
func (s *DashboardService) Dashboard(ctx context.Context, caller *actor.Actor) (*domain.Dashboard, error) {
	role, err := s.roles.RequirePermission(ctx, caller, permissions.ReportsRead)
	if err != nil {
		return nil, err
	}
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return nil, err
	}

	deals, err := s.deals.List(ctx, caps, visibility(caps, caller, role, s.logger))
	if err != nil {
		return nil, err
	}
	stages, err := s.pipelines.ListTenantStages(ctx, caller.TenantID)
	if err != nil {
		return nil, err
	}

	assignee := ""
	if !role.AtLeast(domain.RoleAdmin) {
		assignee = caller.ID
	}
	openTasks, err := s.tasks.CountOpen(ctx, caller.TenantID, assignee)
	if err != nil {
		return nil, err
	}
	outstanding, err := s.invoices.OutstandingByCurrency(ctx, caller.TenantID)
	if err != nil {
		return nil, err
	}

	snap := snapshotOrNil(ctx, s.fx, s.logger)
	d := computeDashboard(stages, deals, outstanding, snap)
	d.OpenTasks = openTasks
	return &d, nil
}

// computeDashboard counts deals by stage status. Amounts are converted to
// USD where a rate exists and kept at face value otherwise.
func computeDashboard(stages []domain.Stage, deals []domain.Deal, outstanding []repository.CurrencyTotal, snap *fx.Snapshot) domain.Dashboard {
	status := make(map[string]domain.StageStatus, len(stages))
	for _, st := range stages {
		status[st.ID] = st.Status
	}

	d := domain.Dashboard{
		Currency:    domain.ReportingCurrency,
		FXAvailable: snap != nil,
	}
	for _, deal := range deals {
		switch status[deal.StageID] {
		case domain.StageWon:
			d.WonDeals++
		case domain.StageLost:
			d.LostDeals++
		default:
			d.OpenDeals++
			d.OpenValue += faceOrUSD(snap, deal.Value, deal.Currency)
		}
	}
	for _, o := range outstanding {
		d.OutstandingTotal += faceOrUSD(snap, o.Total, o.Currency)
	}

	d.OpenValue = roundCents(d.OpenValue)
	d.OutstandingTotal = roundCents(d.OutstandingTotal)
	return d
}

func faceOrUSD(snap *fx.Snapshot, amount float64, currency string) float64 {
	if usd, ok := snap.ToUSD(amount, currency); ok {
		return usd
	}
	return amount
}
