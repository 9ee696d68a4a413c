package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/pkg/httputil"
)

// ProductHandler handles product endpoints
type ProductHandler struct {
	products ProductAPI
}

// NewProductHandler creates a new product handler
func NewProductHandler(products ProductAPI) *ProductHandler {
	return &ProductHandler{products: products}
}

// List lists products. ?active=true hides deactivated ones.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))

	products, err := h.products.List(r.Context(), caller(r), activeOnly)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, products)
}

// Create creates a product
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.ProductInput
	if err := decode(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	p, err := h.products.Create(r.Context(), caller(r), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, p)
}

// Update updates a product
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in domain.ProductInput
	if err := decode(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	p, err := h.products.Update(r.Context(), caller(r), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, p)
}

// Deactivate hides a product from new deals
func (h *ProductHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Deactivate(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.NoContent(w)
}
