package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/httputil"
)

// UserHandler handles user endpoints
type UserHandler struct {
	users UserAPI
}

// NewUserHandler creates a new user handler
func NewUserHandler(users UserAPI) *UserHandler {
	return &UserHandler{users: users}
}

type changeRoleRequest struct {
	Role domain.Role `json:"role" validate:"required,oneof=OWNER ADMIN MEMBER"`
}

// List lists the tenant's users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context(), caller(r))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, users)
}

// Me returns the authenticated user
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Me(r.Context(), caller(r))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, u)
}

// Invite adds a user to the tenant
func (h *UserHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var in domain.InviteUserInput
	if err := decode(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	u, err := h.users.Invite(r.Context(), caller(r), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, u)
}

// ChangeRole sets a user's role
func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if err := decode(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	u, err := h.users.ChangeRole(r.Context(), caller(r), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, u)
}
