package handler

import (
	"context"
	"net/http"

	"github.com/brightdesk/crm-backend/internal/crm/service"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/httputil"
	"github.com/brightdesk/crm-backend/pkg/logger"
)

// ExportHandler serves CSV exports
type ExportHandler struct {
	exports ExportAPI
	logger  *logger.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(exports ExportAPI, log *logger.Logger) *ExportHandler {
	return &ExportHandler{exports: exports, logger: log}
}

// Clients exports clients as CSV
func (h *ExportHandler) Clients(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, "clients.csv", h.exports.Clients)
}

// Invoices exports invoices as CSV
func (h *ExportHandler) Invoices(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, "invoices.csv", h.exports.Invoices)
}

func (h *ExportHandler) write(
	w http.ResponseWriter,
	r *http.Request,
	filename string,
	build func(context.Context, *actor.Actor) (*service.Table, error),
) {
	table, err := build(r.Context(), caller(r))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	// headers are already sent, so a failed write can only be logged
	if err := httputil.CSV(w, filename, table.Header, table.Rows); err != nil {
		h.logger.Warn().Err(err).Str("file", filename).Msg("csv export interrupted")
	}
}
