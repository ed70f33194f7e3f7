package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aozora-farm/api/internal/platform/httpx"
	"github.com/aozora-farm/api/internal/repositories"
	"github.com/aozora-farm/api/internal/services"
	"github.com/aozora-farm/api/internal/shipping"
)

const maxShippingRequestBody = 16 * 1024

// ShippingHandlers exposes the shipping calculation and rate listing endpoints.
type ShippingHandlers struct {
	estimator services.ShippingEstimator
	catalog   services.CatalogProvider
	rates     *shipping.RateTable
}

// NewShippingHandlers constructs handlers backed by the estimator and rate table.
func NewShippingHandlers(estimator services.ShippingEstimator, catalog services.CatalogProvider, rates *shipping.RateTable) *ShippingHandlers {
	return &ShippingHandlers{
		estimator: estimator,
		catalog:   catalog,
		rates:     rates,
	}
}

// Routes registers shipping endpoints under the provided router.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/calculate", h.calculate)
	r.Get("/rates", h.listRates)
}

type calculateItem struct {
	ProductID string   `json:"productId"`
	Quantity  int      `json:"quantity"`
	Weight    *float64 `json:"weight,omitempty"`
}

type calculateRequest struct {
	// products decodes in two steps so a non-array value is rejected as
	// malformed input instead of silently reading as empty.
	Products   json.RawMessage `json:"products"`
	Prefecture string          `json:"prefecture"`
}

type calculateResponse struct {
	TotalWeight  float64 `json:"totalWeight"`
	Prefecture   string  `json:"prefecture"`
	ShippingCost int64   `json:"shippingCost"`
}

func (h *ShippingHandlers) calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.estimator == nil || h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxShippingRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req calculateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	prefecture := strings.TrimSpace(req.Prefecture)
	if prefecture == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "prefecture is required", http.StatusBadRequest))
		return
	}

	items, ok := decodeCalculateItems(req.Products)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "products must be an array", http.StatusBadRequest))
		return
	}

	totalWeight := 0.0
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if item.Weight != nil {
			// An explicit weight is authoritative and already in
			// kilograms; no product record is consulted.
			totalWeight += *item.Weight * float64(item.Quantity)
			continue
		}

		product, err := h.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, repositories.ErrProductNotFound) {
				// Stale product ids must not break the calculation.
				continue
			}
			httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to calculate shipping cost", http.StatusInternalServerError))
			return
		}
		totalWeight += services.TotalWeightKg([]services.Product{product}, map[string]int{product.ID: item.Quantity})
	}

	cost := h.estimator.Estimate(ctx, totalWeight, prefecture)
	writeJSONResponse(w, http.StatusOK, calculateResponse{
		TotalWeight:  totalWeight,
		Prefecture:   prefecture,
		ShippingCost: cost,
	})
}

func (h *ShippingHandlers) listRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rates == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "rate table unavailable", http.StatusServiceUnavailable))
		return
	}

	entries, err := h.rates.Entries(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to load shipping rates", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"rates": entries})
}

func decodeCalculateItems(raw json.RawMessage) ([]calculateItem, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var items []calculateItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}
