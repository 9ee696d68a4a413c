package handler

import (
	"github.com/go-chi/chi/v5"
)

// Handlers groups the CRM endpoint handlers mounted under /api/v1.
type Handlers struct {
	Deals     *DealHandler
	Reports   *ReportHandler
	Pipelines *PipelineHandler
	Clients   *ClientHandler
	Products  *ProductHandler
	Users     *UserHandler
	Settings  *SettingsHandler
	Invoices  *InvoiceHandler
	Tasks     *TaskHandler
	Exports   *ExportHandler
	Assistant *AssistantHandler
}

// Routes mounts the authenticated CRM routes on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/deals", func(r chi.Router) {
		r.Get("/", h.Deals.List)
		r.Post("/", h.Deals.Create)
		r.Get("/{id}", h.Deals.Get)
		r.Patch("/{id}", h.Deals.Update)
		r.Delete("/{id}", h.Deals.Delete)
		r.Post("/{id}/stage", h.Deals.MoveStage)
		r.Get("/{id}/history", h.Deals.History)
		r.Post("/{id}/proposal", h.Deals.UploadProposal)
		r.Get("/{id}/proposal", h.Deals.DownloadProposal)
	})

	r.Get("/forecast", h.Reports.Forecast)
	r.Get("/dashboard", h.Reports.Dashboard)

	r.Route("/pipelines", func(r chi.Router) {
		r.Get("/", h.Pipelines.List)
		r.Post("/", h.Pipelines.Create)
		r.Get("/{id}", h.Pipelines.Get)
	})

	r.Route("/clients", func(r chi.Router) {
		r.Get("/", h.Clients.List)
		r.Post("/", h.Clients.Create)
		r.Get("/{id}", h.Clients.Get)
		r.Put("/{id}", h.Clients.Update)
		r.Delete("/{id}", h.Clients.Delete)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.Products.List)
		r.Post("/", h.Products.Create)
		r.Put("/{id}", h.Products.Update)
		r.Delete("/{id}", h.Products.Deactivate)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.Users.List)
		r.Post("/", h.Users.Invite)
		r.Get("/me", h.Users.Me)
		r.Patch("/{id}/role", h.Users.ChangeRole)
	})

	r.Get("/settings", h.Settings.Get)
	r.Put("/settings", h.Settings.Update)
	r.Get("/subscription", h.Settings.Subscription)

	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.Invoices.List)
		r.Post("/", h.Invoices.Create)
		r.Get("/{id}", h.Invoices.Get)
		r.Patch("/{id}/status", h.Invoices.SetStatus)
		r.Delete("/{id}", h.Invoices.Delete)
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.Tasks.List)
		r.Post("/", h.Tasks.Create)
		r.Put("/{id}", h.Tasks.Update)
		r.Delete("/{id}", h.Tasks.Delete)
	})

	r.Route("/export", func(r chi.Router) {
		r.Get("/clients", h.Exports.Clients)
		r.Get("/invoices", h.Exports.Invoices)
	})

	r.Route("/ai", func(r chi.Router) {
		r.Post("/summarize", h.Assistant.Summarize)
		r.Post("/draft-email", h.Assistant.DraftEmail)
	})
}
