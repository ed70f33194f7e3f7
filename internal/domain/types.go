package domain

import "time"

// WeightUnit is the unit of measure recorded on a product's weight.
type WeightUnit string

const (
	WeightUnitKg WeightUnit = "kg"
	WeightUnitG  WeightUnit = "g"
)

// ProductStatus flags whether a product is currently sellable.
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusArchived ProductStatus = "archived"
)

// Product is the slice of the catalog record the ordering flow consumes.
// Prices are in JPY (minor unit convention: 1 yen).
type Product struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Price      int64         `json:"price"`
	Weight     float64       `json:"weight"`
	WeightUnit WeightUnit    `json:"weightUnit"`
	Stock      int           `json:"stock"`
	Status     ProductStatus `json:"status"`
}

// Active reports whether the product may be ordered.
func (p Product) Active() bool {
	return p.Status == "" || p.Status == ProductStatusActive
}

// Address holds one shipment target's contact and location fields.
// PrefectureOrCity is deliberately free text; shipping resolution is
// best-effort against it.
type Address struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	PostalCode       string `json:"postalCode"`
	PrefectureOrCity string `json:"prefectureOrCity"`
	StreetAddress    string `json:"streetAddress"`
}

// OrderLineItem is one flattened product/destination pair handed to the
// order persistence collaborator at submission.
type OrderLineItem struct {
	ProductID       string  `json:"product"`
	Quantity        int     `json:"quantity"`
	ShippingAddress Address `json:"shippingAddress"`
}

// OrderSubmission is the payload accepted by the external order API.
type OrderSubmission struct {
	Items         []OrderLineItem `json:"items"`
	PaymentMethod string          `json:"paymentMethod"`
	Sender        Address         `json:"sender"`
	Subtotal      int64           `json:"subtotal"`
	ShippingTotal int64           `json:"shippingTotal"`
	GrandTotal    int64           `json:"grandTotal"`
}

// SubmittedOrder is the persisted order record returned by the order API.
type SubmittedOrder struct {
	ID            string          `json:"id"`
	Items         []OrderLineItem `json:"items"`
	PaymentMethod string          `json:"paymentMethod"`
	Subtotal      int64           `json:"subtotal"`
	ShippingTotal int64           `json:"shippingTotal"`
	GrandTotal    int64           `json:"grandTotal"`
	PlacedAt      time.Time       `json:"placedAt"`
}
