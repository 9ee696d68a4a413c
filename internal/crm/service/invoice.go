package service

import (
	"context"
	"fmt"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/internal/crm/repository"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/permissions"
)

// invoiceTransitions lists the statuses each status may move to.
var invoiceTransitions = map[domain.InvoiceStatus][]domain.InvoiceStatus{
	domain.InvoiceDraft: {domain.InvoiceSent, domain.InvoiceVoid},
	domain.InvoiceSent:  {domain.InvoicePaid, domain.InvoiceVoid},
}

// InvoiceService handles invoices
type InvoiceService struct {
	caps     CapsSource
	roles    *RoleResolver
	invoices InvoiceStore
	clients  ClientStore
	deals    DealStore
	logger   *logger.Logger
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(
	caps CapsSource,
	roles *RoleResolver,
	invoices InvoiceStore,
	clients ClientStore,
	deals DealStore,
	log *logger.Logger,
) *InvoiceService {
	return &InvoiceService{
		caps:     caps,
		roles:    roles,
		invoices: invoices,
		clients:  clients,
		deals:    deals,
		logger:   log.WithComponent("invoices"),
	}
}

// List returns the tenant's invoices, optionally by status.
func (s *InvoiceService) List(ctx context.Context, caller *actor.Actor, status domain.InvoiceStatus) ([]domain.Invoice, error) {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.InvoicesRead); err != nil {
		return nil, err
	}
	if status != "" && !validInvoiceStatus(status) {
		return nil, errors.BadRequest(fmt.Sprintf("unknown invoice status %q", status))
	}
	return s.invoices.List(ctx, caller.TenantID, status)
}

// Get returns one invoice.
func (s *InvoiceService) Get(ctx context.Context, caller *actor.Actor, id string) (*domain.Invoice, error) {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.InvoicesRead); err != nil {
		return nil, err
	}
	return s.invoices.Get(ctx, caller.TenantID, id)
}

// Create adds a draft invoice for a client of the tenant.
func (s *InvoiceService) Create(ctx context.Context, caller *actor.Actor, in domain.InvoiceInput) (*domain.Invoice, error) {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.InvoicesWrite); err != nil {
		return nil, err
	}

	ok, err := s.clients.Exists(ctx, caller.TenantID, in.ClientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NotFound("client")
	}

	if in.DealID != nil && *in.DealID != "" {
		caps, err := s.caps.Caps(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := s.deals.Get(ctx, caps, repository.DealFilter{TenantID: caller.TenantID}, *in.DealID); err != nil {
			return nil, err
		}
	} else {
		in.DealID = nil
	}

	inv := &domain.Invoice{
		TenantID: caller.TenantID,
		ClientID: in.ClientID,
		DealID:   in.DealID,
		Number:   in.Number,
		Amount:   in.Amount,
		Currency: currencyOr(in.Currency, domain.ReportingCurrency),
		Status:   domain.InvoiceDraft,
		IssuedAt: in.IssuedAt,
		DueAt:    in.DueAt,
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// SetStatus moves an invoice along DRAFT -> SENT -> PAID, or to VOID.
func (s *InvoiceService) SetStatus(ctx context.Context, caller *actor.Actor, id string, status domain.InvoiceStatus) (*domain.Invoice, error) {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.InvoicesWrite); err != nil {
		return nil, err
	}
	if !validInvoiceStatus(status) {
		return nil, errors.BadRequest(fmt.Sprintf("unknown invoice status %q", status))
	}

	inv, err := s.invoices.Get(ctx, caller.TenantID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == status {
		return inv, nil
	}
	if !canTransition(inv.Status, status) {
		return nil, errors.BadRequest(fmt.Sprintf("invoice cannot move from %s to %s", inv.Status, status))
	}

	if err := s.invoices.SetStatus(ctx, caller.TenantID, id, status); err != nil {
		return nil, err
	}
	inv.Status = status
	return inv, nil
}

// Delete removes a draft or void invoice.
func (s *InvoiceService) Delete(ctx context.Context, caller *actor.Actor, id string) error {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.InvoicesWrite); err != nil {
		return err
	}
	inv, err := s.invoices.Get(ctx, caller.TenantID, id)
	if err != nil {
		return err
	}
	if inv.Status != domain.InvoiceDraft && inv.Status != domain.InvoiceVoid {
		return errors.BadRequest("only draft or void invoices can be deleted")
	}
	return s.invoices.Delete(ctx, caller.TenantID, id)
}

func validInvoiceStatus(s domain.InvoiceStatus) bool {
	switch s {
	case domain.InvoiceDraft, domain.InvoiceSent, domain.InvoicePaid, domain.InvoiceVoid:
		return true
	}
	return false
}

func canTransition(from, to domain.InvoiceStatus) bool {
	for _, next := range invoiceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
