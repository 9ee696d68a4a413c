package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/httputil"
)

// ClientHandler handles client endpoints
type ClientHandler struct {
	clients ClientAPI
}

// NewClientHandler creates a new client handler
func NewClientHandler(clients ClientAPI) *ClientHandler {
	return &ClientHandler{clients: clients}
}

// List lists clients
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clients.List(r.Context(), caller(r))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, clients)
}

// Get gets a client by ID
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.clients.Get(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, c)
}

// Create creates a client
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.ClientInput
	if err := decode(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	c, err := h.clients.Create(r.Context(), caller(r), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, c)
}

// Update replaces a client
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in domain.ClientInput
	if err := decode(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	c, err := h.clients.Update(r.Context(), caller(r), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, c)
}

// Delete deletes a client
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.clients.Delete(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.NoContent(w)
}
