package services

import (
	"context"

	domain "github.com/aozora-farm/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product         = domain.Product
	WeightUnit      = domain.WeightUnit
	Address         = domain.Address
	OrderLineItem   = domain.OrderLineItem
	OrderSubmission = domain.OrderSubmission
	SubmittedOrder  = domain.SubmittedOrder
)

// CatalogProvider exposes the product catalog collaborator. Implementations
// live outside this subsystem; the ordering flow only reads from it.
type CatalogProvider interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

// ShippingEstimator computes a spendable shipping price for one
// destination. Implementations never fail: any internal error degrades
// to a fallback price.
type ShippingEstimator interface {
	Estimate(ctx context.Context, totalWeightKg float64, destination string) int64
}

// OrderSubmitter is the external order persistence API. It receives the
// flattened draft at submission and returns the persisted record.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, submission OrderSubmission) (SubmittedOrder, error)
}

// PostalLookup is the third-party postal-code service used to prefill
// address fields. Lookup failure must never block manual entry.
type PostalLookup interface {
	LookupPostalCode(ctx context.Context, code string) (PostalAddress, error)
}

// PostalAddress is the prefill result for a postal code.
type PostalAddress struct {
	PostalCode string
	Prefecture string
	City       string
	Town       string
}
