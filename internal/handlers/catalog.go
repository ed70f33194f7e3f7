package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aozora-farm/api/internal/platform/httpx"
	"github.com/aozora-farm/api/internal/repositories"
	"github.com/aozora-farm/api/internal/services"
)

// CatalogHandlers exposes read-only product listing endpoints.
type CatalogHandlers struct {
	catalog services.CatalogProvider
}

// NewCatalogHandlers constructs handlers backed by the product catalog.
func NewCatalogHandlers(catalog services.CatalogProvider) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers product endpoints under the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productId}", h.getProduct)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "product catalog unavailable", http.StatusServiceUnavailable))
		return
	}

	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to load products", http.StatusInternalServerError))
		return
	}

	active := make([]services.Product, 0, len(products))
	for _, product := range products {
		if product.Active() {
			active = append(active, product)
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"products": active})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "product catalog unavailable", http.StatusServiceUnavailable))
		return
	}

	id := strings.TrimSpace(chi.URLParam(r, "productId"))
	product, err := h.catalog.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to load product", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, product)
}
