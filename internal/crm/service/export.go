package service

import (
	"context"
	"strconv"
	"time"

	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/permissions"
)

// Table is a header plus rows, ready for CSV encoding.
type Table struct {
	Header []string
	Rows   [][]string
}

// ExportService flattens tenant data for CSV downloads.
type ExportService struct {
	caps     CapsSource
	roles    *RoleResolver
	clients  ClientStore
	invoices InvoiceStore
}

// NewExportService creates a new export service
func NewExportService(caps CapsSource, roles *RoleResolver, clients ClientStore, invoices InvoiceStore) *ExportService {
	return &ExportService{caps: caps, roles: roles, clients: clients, invoices: invoices}
}

// Clients exports the tenant's clients. Profile columns are included when
// the schema has them.
func (s *ExportService) Clients(ctx context.Context, caller *actor.Actor) (*Table, error) {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.ExportsRead); err != nil {
		return nil, err
	}
	caps, err := s.caps.Caps(ctx)
	if err != nil {
		return nil, err
	}
	clients, err := s.clients.List(ctx, caps, caller.TenantID)
	if err != nil {
		return nil, err
	}

	t := &Table{Header: []string{"id", "name", "email", "company"}}
	if caps.HasClientProfile {
		t.Header = append(t.Header, "phone", "website", "address")
	}
	t.Header = append(t.Header, "created_at")

	for _, c := range clients {
		row := []string{c.ID, c.Name, deref(c.Email), deref(c.Company)}
		if caps.HasClientProfile {
			row = append(row, deref(c.Phone), deref(c.Website), deref(c.Address))
		}
		row = append(row, c.CreatedAt.UTC().Format(time.RFC3339))
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Invoices exports the tenant's invoices.
func (s *ExportService) Invoices(ctx context.Context, caller *actor.Actor) (*Table, error) {
	if _, err := s.roles.RequirePermission(ctx, caller, permissions.ExportsRead); err != nil {
		return nil, err
	}
	invoices, err := s.invoices.List(ctx, caller.TenantID, "")
	if err != nil {
		return nil, err
	}

	t := &Table{Header: []string{"id", "number", "client_id", "deal_id", "amount", "currency", "status", "issued_at", "due_at"}}
	for _, inv := range invoices {
		t.Rows = append(t.Rows, []string{
			inv.ID,
			inv.Number,
			inv.ClientID,
			deref(inv.DealID),
			strconv.FormatFloat(inv.Amount, 'f', 2, 64),
			inv.Currency,
			string(inv.Status),
			formatDate(inv.IssuedAt),
			formatDate(inv.DueAt),
		})
	}
	return t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
