package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/httputil"
)

// InvoiceHandler handles invoice endpoints
type InvoiceHandler struct {
	invoices InvoiceAPI
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(invoices InvoiceAPI) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

type invoiceStatusRequest struct {
	Status domain.InvoiceStatus `json:"status" validate:"required,oneof=DRAFT SENT PAID VOID"`
}

// List lists invoices, optionally by ?status=
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.InvoiceStatus(r.URL.Query().Get("status"))
	invoices, err := h.invoices.List(r.Context(), caller(r), status)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, invoices)
}

// Get gets an invoice by ID
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invoices.Get(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, inv)
}

// Create creates a draft invoice
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.InvoiceInput
	if err := decode(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	inv, err := h.invoices.Create(r.Context(), caller(r), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, inv)
}

// SetStatus changes an invoice's status
func (h *InvoiceHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req invoiceStatusRequest
	if err := decode(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	inv, err := h.invoices.SetStatus(r.Context(), caller(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, inv)
}

// Delete deletes an invoice
func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.invoices.Delete(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.NoContent(w)
}
