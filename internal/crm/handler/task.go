package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/internal/crm/repository"
	"github.com/brightdesk/crm-backend/pkg/httputil"
)

// TaskHandler handles task endpoints
type TaskHandler struct {
	tasks TaskAPI
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks TaskAPI) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// List lists tasks filtered by deal_id, assignee_id and done
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.TaskFilter{
		DealID:     q.Get("deal_id"),
		AssigneeID: q.Get("assignee_id"),
	}
	if v := q.Get("done"); v != "" {
		if done, err := strconv.ParseBool(v); err == nil {
			f.Done = &done
		}
	}

	tasks, err := h.tasks.List(r.Context(), caller(r), f)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, tasks)
}

// Create creates a task
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.TaskInput
	if err := decode(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	t, err := h.tasks.Create(r.Context(), caller(r), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, t)
}

// Update replaces a task
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in domain.TaskInput
	if err := decode(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	t, err := h.tasks.Update(r.Context(), caller(r), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, t)
}

// Delete deletes a task
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Delete(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.NoContent(w)
}
