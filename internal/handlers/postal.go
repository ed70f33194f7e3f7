package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aozora-farm/api/internal/platform/httpx"
	"github.com/aozora-farm/api/internal/services"
)

// PostalHandlers exposes the postal-code prefill endpoint. Lookups are
// best-effort: any failure maps to 404 so clients fall back to manual
// address entry.
type PostalHandlers struct {
	lookup services.PostalLookup
}

// NewPostalHandlers constructs handlers backed by the postal lookup client.
func NewPostalHandlers(lookup services.PostalLookup) *PostalHandlers {
	return &PostalHandlers{lookup: lookup}
}

// Routes registers postal endpoints under the provided router.
func (h *PostalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{code}", h.lookupCode)
}

type postalResponse struct {
	PostalCode string `json:"postalCode"`
	Prefecture string `json:"prefecture"`
	City       string `json:"city"`
	Town       string `json:"town"`
}

func (h *PostalHandlers) lookupCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lookup == nil {
		httpx.WriteError(ctx, w, httpx.NewError("postal_unavailable", "postal lookup unavailable", http.StatusServiceUnavailable))
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "postal code is required", http.StatusBadRequest))
		return
	}

	address, err := h.lookup.LookupPostalCode(ctx, code)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "no address found for postal code", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, postalResponse{
		PostalCode: address.PostalCode,
		Prefecture: address.Prefecture,
		City:       address.City,
		Town:       address.Town,
	})
}
