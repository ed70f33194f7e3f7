package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aozora-farm/api/internal/platform/httpx"
	"github.com/aozora-farm/api/internal/repositories"
	"github.com/aozora-farm/api/internal/services"
)

const maxOrderRequestBody = 16 * 1024

// OrderHandlers exposes the multi-destination order draft flow: draft
// lifecycle, destination edits, the stage machine, and submission.
type OrderHandlers struct {
	catalog   services.CatalogProvider
	estimator services.ShippingEstimator
	drafts    *repositories.DraftStore
	submitter services.OrderSubmitter
	logger    func(context.Context, string, map[string]any)
}

// NewOrderHandlers constructs order draft handlers.
func NewOrderHandlers(catalog services.CatalogProvider, estimator services.ShippingEstimator, drafts *repositories.DraftStore, submitter services.OrderSubmitter, logger func(context.Context, string, map[string]any)) *OrderHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &OrderHandlers{
		catalog:   catalog,
		estimator: estimator,
		drafts:    drafts,
		submitter: submitter,
		logger:    logger,
	}
}

// Routes registers order draft endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/drafts", h.createDraft)
	r.Route("/drafts/{draftId}", func(draft chi.Router) {
		draft.Get("/", h.getDraft)
		draft.Post("/destinations", h.addDestination)
		draft.Delete("/destinations/{destId}", h.removeDestination)
		draft.Put("/destinations/{destId}/items/{productId}", h.setQuantity)
		draft.Patch("/destinations/{destId}/address", h.patchAddress)
		draft.Post("/advance", h.advance)
		draft.Post("/back", h.back)
		draft.Post("/submit", h.submit)
	})
}

type draftResponse struct {
	DraftID      string                     `json:"draftId"`
	Stage        string                     `json:"stage"`
	Destinations []services.DestinationView `json:"destinations"`
	Totals       services.OrderTotals       `json:"totals"`
}

type addressPatchRequest struct {
	Name             *string `json:"name,omitempty"`
	Phone            *string `json:"phone,omitempty"`
	PostalCode       *string `json:"postalCode,omitempty"`
	PrefectureOrCity *string `json:"prefectureOrCity,omitempty"`
	StreetAddress    *string `json:"streetAddress,omitempty"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type advanceRequest struct {
	Sender        *addressPatchRequest `json:"sender,omitempty"`
	PaymentMethod string               `json:"paymentMethod,omitempty"`
}

type submitResponse struct {
	OrderID       string                   `json:"orderId"`
	Items         []services.OrderLineItem `json:"items"`
	PaymentMethod string                   `json:"paymentMethod"`
	Subtotal      int64                    `json:"subtotal"`
	ShippingTotal int64                    `json:"shippingTotal"`
	GrandTotal    int64                    `json:"grandTotal"`
	PlacedAt      string                   `json:"placedAt"`
}

func (h *OrderHandlers) createDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil || h.estimator == nil || h.drafts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to load product catalog", http.StatusInternalServerError))
		return
	}

	// Drafts price against the catalog snapshot taken at creation;
	// archived products are excluded up front.
	active := make([]services.Product, 0, len(products))
	for _, product := range products {
		if product.Active() {
			active = append(active, product)
		}
	}

	composer, err := services.NewOrderComposer(services.OrderComposerDeps{
		Catalog:   active,
		Estimator: h.estimator,
		Logger:    h.logger,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to create order draft", http.StatusInternalServerError))
		return
	}
	h.drafts.Put(composer)

	h.logger(ctx, "order.draft_created", map[string]any{
		"draftId":  composer.ID(),
		"products": len(active),
	})
	writeJSONResponse(w, http.StatusCreated, draftSnapshot(composer))
}

func (h *OrderHandlers) getDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	composer, ok := h.loadDraft(ctx, w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, draftSnapshot(composer))
}

func (h *OrderHandlers) addDestination(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	composer, ok := h.loadDraft(ctx, w, r)
	if !ok {
		return
	}

	id, err := composer.AddDestination()
	if err != nil {
		h.writeDraftError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"destinationId": id})
}

func (h *OrderHandlers) removeDestination(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	composer, ok := h.loadDraft(ctx, w, r)
	if !ok {
		return
	}
	destID, ok := parseDestinationID(ctx, w, r)
	if !ok {
		return
	}

	if err := composer.RemoveDestination(destID); err != nil {
		h.writeDraftError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, draftSnapshot(composer))
}

func (h *OrderHandlers) setQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	composer, ok := h.loadDraft(ctx, w, r)
	if !ok {
		return
	}
	destID, ok := parseDestinationID(ctx, w, r)
	if !ok {
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}
	var req setQuantityRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if req.Quantity < 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity must be non-negative", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to load product", http.StatusInternalServerError))
		return
	}
	if !product.Active() {
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", "product is not available for order", http.StatusConflict))
		return
	}

	// The composer accepts any non-negative quantity; clamping against
	// live stock happens here, at the API boundary.
	quantity := req.Quantity
	if quantity > product.Stock {
		quantity = product.Stock
	}

	if err := composer.SetQuantity(ctx, destID, productID, quantity); err != nil {
		h.writeDraftError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"destinationId": destID,
		"productId":     productID,
		"quantity":      quantity,
		"totals":        composer.Totals(),
	})
}

func (h *OrderHandlers) patchAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	composer, ok := h.loadDraft(ctx, w, r)
	if !ok {
		return
	}
	destID, ok := parseDestinationID(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}
	var req addressPatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	fields := map[services.AddressField]*string{
		services.FieldName:             req.Name,
		services.FieldPhone:            req.Phone,
		services.FieldPostalCode:       req.PostalCode,
		services.FieldPrefectureOrCity: req.PrefectureOrCity,
		services.FieldStreetAddress:    req.StreetAddress,
	}
	applied := 0
	for field, value := range fields {
		if value == nil {
			continue
		}
		if err := composer.SetAddressField(ctx, destID, field, *value); err != nil {
			h.writeDraftError(ctx, w, err)
			return
		}
		applied++
	}
	if applied == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one address field is required", http.StatusBadRequest))
		return
	}

	writeJSONResponse(w, http.StatusOK, draftSnapshot(composer))
}

func (h *OrderHandlers) advance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	composer, ok := h.loadDraft(ctx, w, r)
	if !ok {
		return
	}

	// Advance optionally carries the sender contact and payment method
	// collected by the step being left.
	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil && !errors.Is(err, errEmptyBody) {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}
	if len(body) > 0 {
		var req advanceRequest
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
		if req.Sender != nil {
			composer.SetSender(services.Address{
				Name:             stringValue(req.Sender.Name),
				Phone:            stringValue(req.Sender.Phone),
				PostalCode:       stringValue(req.Sender.PostalCode),
				PrefectureOrCity: stringValue(req.Sender.PrefectureOrCity),
				StreetAddress:    stringValue(req.Sender.StreetAddress),
			})
		}
		if method := strings.TrimSpace(req.PaymentMethod); method != "" {
			composer.SetPaymentMethod(method)
		}
	}

	if err := composer.Advance(); err != nil {
		h.writeDraftError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, draftSnapshot(composer))
}

func (h *OrderHandlers) back(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	composer, ok := h.loadDraft(ctx, w, r)
	if !ok {
		return
	}

	if err := composer.Back(); err != nil {
		h.writeDraftError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, draftSnapshot(composer))
}

func (h *OrderHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.submitter == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order submission unavailable", http.StatusServiceUnavailable))
		return
	}
	composer, ok := h.loadDraft(ctx, w, r)
	if !ok {
		return
	}

	order, err := composer.Submit(ctx, h.submitter)
	if err != nil {
		h.writeDraftError(ctx, w, err)
		return
	}

	h.logger(ctx, "order.submitted", map[string]any{
		"draftId":    composer.ID(),
		"orderId":    order.ID,
		"grandTotal": order.GrandTotal,
	})
	writeJSONResponse(w, http.StatusOK, submitResponse{
		OrderID:       order.ID,
		Items:         order.Items,
		PaymentMethod: order.PaymentMethod,
		Subtotal:      order.Subtotal,
		ShippingTotal: order.ShippingTotal,
		GrandTotal:    order.GrandTotal,
		PlacedAt:      order.PlacedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (h *OrderHandlers) loadDraft(ctx context.Context, w http.ResponseWriter, r *http.Request) (*services.OrderComposer, bool) {
	if h.drafts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	draftID := strings.TrimSpace(chi.URLParam(r, "draftId"))
	if draftID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "draft id is required", http.StatusBadRequest))
		return nil, false
	}
	composer, err := h.drafts.Get(draftID)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("draft_not_found", "order draft not found", http.StatusNotFound))
		return nil, false
	}
	return composer, true
}

func (h *OrderHandlers) writeDraftError(ctx context.Context, w http.ResponseWriter, err error) {
	var incomplete *services.IncompleteAddressError
	switch {
	case errors.Is(err, services.ErrComposerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDestinationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("destination_not_found", "destination not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCannotRemovePrimaryDestination):
		httpx.WriteError(ctx, w, httpx.NewError("primary_destination", "the first destination cannot be removed", http.StatusConflict))
	case errors.As(err, &incomplete):
		httpx.WriteError(ctx, w, httpx.NewError("incomplete_address", "a destination with products has an incomplete address", http.StatusConflict).
			WithDetails(map[string]any{"destinationId": incomplete.DestinationID}))
	case errors.Is(err, services.ErrEmptyOrder):
		httpx.WriteError(ctx, w, httpx.NewError("empty_order", "order has no products", http.StatusConflict))
	case errors.Is(err, services.ErrInvalidStageTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_stage", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrDraftSubmitted):
		httpx.WriteError(ctx, w, httpx.NewError("draft_submitted", "draft is already submitted", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func draftSnapshot(composer *services.OrderComposer) draftResponse {
	return draftResponse{
		DraftID:      composer.ID(),
		Stage:        composer.Stage().String(),
		Destinations: composer.Destinations(),
		Totals:       composer.Totals(),
	}
}

func parseDestinationID(ctx context.Context, w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "destId"))
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "destination id must be a positive integer", http.StatusBadRequest))
		return 0, false
	}
	return id, true
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
