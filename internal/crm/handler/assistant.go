package handler

import (
	"context"
	"net/http"

	"github.com/brightdesk/crm-backend/internal/assistant"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/httputil"
)

// AssistantAPI generates CRM text.
type AssistantAPI interface {
	Summarize(ctx context.Context, caller *actor.Actor, in assistant.SummarizeInput) (*assistant.Result, error)
	DraftEmail(ctx context.Context, caller *actor.Actor, in assistant.DraftEmailInput) (*assistant.Result, error)
}

// AssistantHandler handles the AI text endpoints
type AssistantHandler struct {
	assistant AssistantAPI
}

// NewAssistantHandler creates a new assistant handler
func NewAssistantHandler(a AssistantAPI) *AssistantHandler {
	return &AssistantHandler{assistant: a}
}

// Summarize summarises free text
func (h *AssistantHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	var in assistant.SummarizeInput
	if err := decode(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	res, err := h.assistant.Summarize(r.Context(), caller(r), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, res)
}

// DraftEmail drafts a sales email
func (h *AssistantHandler) DraftEmail(w http.ResponseWriter, r *http.Request) {
	var in assistant.DraftEmailInput
	if err := decode(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	res, err := h.assistant.DraftEmail(r.Context(), caller(r), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, res)
}
