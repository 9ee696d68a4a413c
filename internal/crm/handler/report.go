package handler

import (
	"net/http"

	"github.com/brightdesk/crm-backend/pkg/httputil"
)

// ReportHandler serves forecast and dashboard endpoints
type ReportHandler struct {
	forecast  ForecastAPI
	dashboard DashboardAPI
}

// NewReportHandler creates a new report handler
func NewReportHandler(forecast ForecastAPI, dashboard DashboardAPI) *ReportHandler {
	return &ReportHandler{forecast: forecast, dashboard: dashboard}
}

// Forecast returns the weighted forecast of a pipeline
func (h *ReportHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	f, err := h.forecast.Forecast(r.Context(), caller(r), r.URL.Query().Get("pipeline_id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, f)
}

// Dashboard returns the caller's dashboard
func (h *ReportHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.dashboard.Dashboard(r.Context(), caller(r))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, d)
}
