package handler

import (
	"net/http"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/httputil"
)

// SettingsHandler handles tenant settings and subscription endpoints
type SettingsHandler struct {
	settings SettingsAPI
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings SettingsAPI) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// Get returns the tenant settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context(), caller(r))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, s)
}

// Update replaces the tenant settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in domain.SettingsInput
	if err := decode(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	s, err := h.settings.Update(r.Context(), caller(r), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, s)
}

// Subscription returns the tenant's plan
func (h *SettingsHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Subscription(r.Context(), caller(r))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, s)
}
