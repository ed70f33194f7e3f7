package services

import (
	"context"
	"errors"
	"strings"

	"github.com/aozora-farm/api/internal/shipping"
)

// DefaultFallbackPrice is returned whenever a shipping cost cannot be
// confidently computed. Shipping estimation must never block an order
// flow, so every failure path degrades to this constant.
const DefaultFallbackPrice int64 = 500

var errShippingRatesRequired = errors.New("shipping service: rate table is required")
var errShippingResolverRequired = errors.New("shipping service: resolver is required")

// ShippingServiceDeps wires the rate table and resolver into the estimator.
type ShippingServiceDeps struct {
	Rates         *shipping.RateTable
	Resolver      *shipping.Resolver
	FallbackPrice int64
	Logger        func(context.Context, string, map[string]any)
}

// ShippingService resolves a destination and weight to a price. Its
// whole contract is "always returns a spendable non-negative price";
// bad input, an unresolvable location, a missing rate row, and a rate
// source failure all yield the fallback price instead of an error.
type ShippingService struct {
	rates    *shipping.RateTable
	resolver *shipping.Resolver
	fallback int64
	logger   func(context.Context, string, map[string]any)
}

// NewShippingService constructs a ShippingService enforcing dependency validation.
func NewShippingService(deps ShippingServiceDeps) (*ShippingService, error) {
	if deps.Rates == nil {
		return nil, errShippingRatesRequired
	}
	if deps.Resolver == nil {
		return nil, errShippingResolverRequired
	}
	fallback := deps.FallbackPrice
	if fallback <= 0 {
		fallback = DefaultFallbackPrice
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ShippingService{
		rates:    deps.Rates,
		resolver: deps.Resolver,
		fallback: fallback,
		logger:   logger,
	}, nil
}

// FallbackPrice exposes the configured degraded-mode price.
func (s *ShippingService) FallbackPrice() int64 {
	return s.fallback
}

// Estimate returns the shipping price for the given weight and
// destination. It never returns an error.
func (s *ShippingService) Estimate(ctx context.Context, totalWeightKg float64, destination string) int64 {
	destination = strings.TrimSpace(destination)
	if totalWeightKg <= 0 || destination == "" {
		return s.fallback
	}

	prefecture, err := s.resolver.Resolve(ctx, destination)
	if err != nil {
		s.logger(ctx, "shipping.location_unresolved", map[string]any{
			"destination": destination,
			"error":       err.Error(),
		})
		return s.fallback
	}

	entry, ok, err := s.rates.Lookup(ctx, prefecture)
	if err != nil {
		s.logger(ctx, "shipping.rate_lookup_failed", map[string]any{
			"prefecture": prefecture,
			"error":      err.Error(),
		})
		return s.fallback
	}
	if !ok {
		s.logger(ctx, "shipping.rate_row_missing", map[string]any{
			"prefecture": prefecture,
		})
		return s.fallback
	}

	price := entry.PriceForWeight(totalWeightKg)
	if price <= 0 {
		return s.fallback
	}
	return price
}
