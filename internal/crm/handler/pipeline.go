package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/httputil"
)

// PipelineHandler handles pipeline endpoints
type PipelineHandler struct {
	pipelines PipelineAPI
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(pipelines PipelineAPI) *PipelineHandler {
	return &PipelineHandler{pipelines: pipelines}
}

// List lists pipelines with their stages
func (h *PipelineHandler) List(w http.ResponseWriter, r *http.Request) {
	pipelines, err := h.pipelines.List(r.Context(), caller(r))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, pipelines)
}

// Get gets a pipeline by ID
func (h *PipelineHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.pipelines.Get(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, p)
}

// Create creates a pipeline
func (h *PipelineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.PipelineInput
	if err := decode(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	p, err := h.pipelines.Create(r.Context(), caller(r), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, p)
}
