package handler

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/httputil"
	"github.com/brightdesk/crm-backend/pkg/logger"
)

// multipart overhead allowed on top of the file itself
const formOverhead = 1 << 20

// DealHandler handles deal endpoints
type DealHandler struct {
	deals     DealAPI
	maxUpload int64
	logger    *logger.Logger
}

// NewDealHandler creates a new deal handler
func NewDealHandler(deals DealAPI, maxUpload int64, log *logger.Logger) *DealHandler {
	return &DealHandler{
		deals:     deals,
		maxUpload: maxUpload,
		logger:    log,
	}
}

type moveStageRequest struct {
	StageID string `json:"stage_id" validate:"required,uuid"`
}

// List lists the deals visible to the caller
func (h *DealHandler) List(w http.ResponseWriter, r *http.Request) {
	deals, err := h.deals.FindAll(r.Context(), caller(r), r.URL.Query().Get("pipeline_id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, deals)
}

// Get gets a deal by ID
func (h *DealHandler) Get(w http.ResponseWriter, r *http.Request) {
	deal, err := h.deals.FindOne(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, deal)
}

// Create creates a deal
func (h *DealHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateDealInput
	if err := decode(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	deal, err := h.deals.Create(r.Context(), caller(r), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, deal)
}

// Update applies a partial update
func (h *DealHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in domain.UpdateDealInput
	if err := decode(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	deal, err := h.deals.Update(r.Context(), caller(r), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, deal)
}

// MoveStage moves a deal to another stage
func (h *DealHandler) MoveStage(w http.ResponseWriter, r *http.Request) {
	var req moveStageRequest
	if err := decode(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	deal, err := h.deals.MoveStage(r.Context(), caller(r), chi.URLParam(r, "id"), req.StageID)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, deal)
}

// History lists a deal's stage moves
func (h *DealHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.deals.History(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, history)
}

// Delete removes a deal
func (h *DealHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.deals.Remove(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// UploadProposal stores the "file" part of a multipart form as the deal's
// proposal.
func (h *DealHandler) UploadProposal(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)

	if err := r.ParseMultipartForm(formOverhead); err != nil {
		httputil.ErrorLocalized(w, r, errors.BadRequest("file too large or invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.ErrorLocalized(w, r, errors.BadRequest("missing file in request"))
		return
	}
	defer file.Close()

	deal, err := h.deals.UploadProposal(r.Context(), caller(r), chi.URLParam(r, "id"), header.Filename, file)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	h.logger.Info().
		Str("deal_id", deal.ID).
		Int64("size", header.Size).
		Msg("proposal uploaded")

	httputil.JSON(w, http.StatusOK, deal)
}

// DownloadProposal streams the stored proposal as an attachment
func (h *DealHandler) DownloadProposal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, err := h.deals.ProposalFile(r.Context(), caller(r), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "proposal-"+id+filepath.Ext(path)))
	http.ServeFile(w, r, path)
}
