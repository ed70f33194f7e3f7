package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Stage is the order-building flow position for a draft.
type Stage int

const (
	StageDrafting Stage = iota
	StageSenderInfo
	StagePayment
	StageConfirmation
	StageSubmitted
)

// String implements fmt.Stringer for log and API payloads.
func (s Stage) String() string {
	switch s {
	case StageDrafting:
		return "drafting"
	case StageSenderInfo:
		return "sender_info"
	case StagePayment:
		return "payment"
	case StageConfirmation:
		return "confirmation"
	case StageSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// AddressField names one editable destination address field.
type AddressField string

const (
	FieldName             AddressField = "name"
	FieldPhone            AddressField = "phone"
	FieldPostalCode       AddressField = "postalCode"
	FieldPrefectureOrCity AddressField = "prefectureOrCity"
	FieldStreetAddress    AddressField = "streetAddress"
)

var (
	// ErrComposerInvalidInput indicates the caller supplied invalid input.
	ErrComposerInvalidInput = errors.New("order composer: invalid input")
	// ErrDestinationNotFound indicates the destination id does not exist in the draft.
	ErrDestinationNotFound = errors.New("order composer: destination not found")
	// ErrCannotRemovePrimaryDestination guards destination 1, which lives as long as the draft.
	ErrCannotRemovePrimaryDestination = errors.New("order composer: primary destination cannot be removed")
	// ErrEmptyOrder is returned when advancing a draft with no selected products.
	ErrEmptyOrder = errors.New("order composer: order has no products")
	// ErrInvalidStageTransition is returned for moves the flow does not allow.
	ErrInvalidStageTransition = errors.New("order composer: invalid stage transition")
	// ErrDraftSubmitted indicates the draft is terminal; a new draft is needed for another order.
	ErrDraftSubmitted = errors.New("order composer: draft already submitted")
)

// IncompleteAddressError reports a destination that has products selected
// but is missing one or more address fields.
type IncompleteAddressError struct {
	DestinationID int
}

// Error implements the error interface.
func (e *IncompleteAddressError) Error() string {
	return fmt.Sprintf("order composer: destination %d has products but an incomplete address", e.DestinationID)
}

// primaryDestinationID is created with the draft and never removed.
const primaryDestinationID = 1

// OrderTotals is the synchronous aggregate snapshot of a draft.
type OrderTotals struct {
	TotalItems    int   `json:"totalItems"`
	Subtotal      int64 `json:"subtotal"`
	TotalShipping int64 `json:"totalShipping"`
	GrandTotal    int64 `json:"grandTotal"`
	HasAnyProduct bool  `json:"hasAnyProduct"`
}

// DestinationView is a read-only snapshot of one destination including
// its derived weight and last-known shipping cost.
type DestinationView struct {
	ID            int            `json:"id"`
	Address       Address        `json:"address"`
	Quantities    map[string]int `json:"quantities"`
	TotalWeightKg float64        `json:"totalWeightKg"`
	ShippingCost  int64          `json:"shippingCost"`
	CostComputed  bool           `json:"costComputed"`
}

// destinationState is the mutable per-destination record. The generation
// counter discards late-arriving estimates after a superseding edit:
// last write wins per destination.
type destinationState struct {
	id         int
	address    Address
	quantities map[string]int

	cost      int64
	costKnown bool
	gen       uint64
}

// OrderComposerDeps wires the catalog snapshot and estimator into a draft.
type OrderComposerDeps struct {
	Catalog       []Product
	Estimator     ShippingEstimator
	FallbackPrice int64
	Logger        func(context.Context, string, map[string]any)
	IDGenerator   func() string
}

// OrderComposer owns one in-progress multi-destination order draft: the
// destination list, the order-building stage machine, and the aggregate
// totals. Destination shipping costs are recomputed asynchronously on
// quantity and address edits; Totals never blocks on an in-flight
// recompute and substitutes the fallback price for costs not yet known.
type OrderComposer struct {
	mu sync.Mutex
	wg sync.WaitGroup

	id            string
	stage         Stage
	catalog       []Product
	estimator     ShippingEstimator
	fallback      int64
	logger        func(context.Context, string, map[string]any)
	sender        Address
	paymentMethod string

	destinations []*destinationState
	nextID       int
}

// NewOrderComposer creates a draft with the permanent primary destination.
func NewOrderComposer(deps OrderComposerDeps) (*OrderComposer, error) {
	if deps.Estimator == nil {
		return nil, errors.New("order composer: estimator is required")
	}
	fallback := deps.FallbackPrice
	if fallback <= 0 {
		fallback = DefaultFallbackPrice
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	catalog := make([]Product, len(deps.Catalog))
	copy(catalog, deps.Catalog)

	c := &OrderComposer{
		id:        idGen(),
		stage:     StageDrafting,
		catalog:   catalog,
		estimator: deps.Estimator,
		fallback:  fallback,
		logger:    logger,
		nextID:    primaryDestinationID,
	}
	c.destinations = append(c.destinations, c.newDestination())
	return c, nil
}

// ID returns the draft identifier.
func (c *OrderComposer) ID() string {
	return c.id
}

// Stage returns the current flow position.
func (c *OrderComposer) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Catalog returns the product snapshot the draft prices against.
func (c *OrderComposer) Catalog() []Product {
	out := make([]Product, len(c.catalog))
	copy(out, c.catalog)
	return out
}

func (c *OrderComposer) newDestination() *destinationState {
	d := &destinationState{
		id:         c.nextID,
		quantities: make(map[string]int),
	}
	c.nextID++
	return d
}

// AddDestination appends a fresh destination with zeroed quantities and
// an empty address, returning its id. Ids increase monotonically and are
// never reused after removal.
func (c *OrderComposer) AddDestination() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage == StageSubmitted {
		return 0, ErrDraftSubmitted
	}
	d := c.newDestination()
	c.destinations = append(c.destinations, d)
	return d.id, nil
}

// RemoveDestination drops the destination and its cached shipping cost.
// Destination 1 is permanent for the draft's lifetime.
func (c *OrderComposer) RemoveDestination(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage == StageSubmitted {
		return ErrDraftSubmitted
	}
	if id == primaryDestinationID {
		return ErrCannotRemovePrimaryDestination
	}
	for i, d := range c.destinations {
		if d.id == id {
			c.destinations = append(c.destinations[:i], c.destinations[i+1:]...)
			return nil
		}
	}
	return ErrDestinationNotFound
}

// SetQuantity records the quantity for a product on one destination and
// triggers an async recompute of that destination's shipping cost.
// Clamping against live stock is the caller's responsibility; the
// composer accepts any non-negative quantity.
func (c *OrderComposer) SetQuantity(ctx context.Context, destinationID int, productID string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("%w: quantity must be non-negative", ErrComposerInvalidInput)
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrComposerInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage == StageSubmitted {
		return ErrDraftSubmitted
	}
	d, ok := c.find(destinationID)
	if !ok {
		return ErrDestinationNotFound
	}

	if quantity == 0 {
		delete(d.quantities, productID)
	} else {
		d.quantities[productID] = quantity
	}
	c.scheduleRecompute(ctx, d)
	return nil
}

// SetAddressField updates one address field. Only a non-empty
// prefecture/city edit invalidates the cached shipping cost; name,
// phone, postal code, and street edits alone do not.
func (c *OrderComposer) SetAddressField(ctx context.Context, destinationID int, field AddressField, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage == StageSubmitted {
		return ErrDraftSubmitted
	}
	d, ok := c.find(destinationID)
	if !ok {
		return ErrDestinationNotFound
	}

	switch field {
	case FieldName:
		d.address.Name = value
	case FieldPhone:
		d.address.Phone = value
	case FieldPostalCode:
		d.address.PostalCode = value
	case FieldStreetAddress:
		d.address.StreetAddress = value
	case FieldPrefectureOrCity:
		d.address.PrefectureOrCity = value
		if strings.TrimSpace(value) != "" {
			c.scheduleRecompute(ctx, d)
		}
	default:
		return fmt.Errorf("%w: unknown address field %q", ErrComposerInvalidInput, string(field))
	}
	return nil
}

// SetAddress replaces all address fields at once (postal-code prefill)
// and recomputes when the prefecture is set.
func (c *OrderComposer) SetAddress(ctx context.Context, destinationID int, address Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage == StageSubmitted {
		return ErrDraftSubmitted
	}
	d, ok := c.find(destinationID)
	if !ok {
		return ErrDestinationNotFound
	}
	d.address = address
	if strings.TrimSpace(address.PrefectureOrCity) != "" {
		c.scheduleRecompute(ctx, d)
	}
	return nil
}

// SetSender records the sender contact for the draft.
func (c *OrderComposer) SetSender(sender Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sender = sender
}

// SetPaymentMethod records the selected payment method.
func (c *OrderComposer) SetPaymentMethod(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paymentMethod = strings.TrimSpace(method)
}

// scheduleRecompute starts an async estimate for the destination. Caller
// must hold c.mu. The generation check on completion keeps the last
// scheduled edit authoritative even when estimates finish out of order;
// a failed or slow estimate for one destination never touches another.
func (c *OrderComposer) scheduleRecompute(ctx context.Context, d *destinationState) {
	d.gen++
	gen := d.gen
	id := d.id
	weight := TotalWeightKg(c.catalog, cloneQuantities(d.quantities))
	destination := d.address.PrefectureOrCity

	// The estimate may outlive the triggering request.
	ctx = context.WithoutCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		cost := c.estimator.Estimate(ctx, weight, destination)

		c.mu.Lock()
		defer c.mu.Unlock()
		current, ok := c.find(id)
		if !ok || current.gen != gen {
			// Destination removed or superseded by a later edit.
			return
		}
		current.cost = cost
		current.costKnown = true
	}()
}

// Wait blocks until all in-flight shipping recomputes have settled.
func (c *OrderComposer) Wait() {
	c.wg.Wait()
}

func (c *OrderComposer) find(id int) (*destinationState, bool) {
	for _, d := range c.destinations {
		if d.id == id {
			return d, true
		}
	}
	return nil, false
}

// Destinations returns read-only snapshots in draft order.
func (c *OrderComposer) Destinations() []DestinationView {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]DestinationView, 0, len(c.destinations))
	for _, d := range c.destinations {
		view := DestinationView{
			ID:            d.id,
			Address:       d.address,
			Quantities:    cloneQuantities(d.quantities),
			TotalWeightKg: TotalWeightKg(c.catalog, d.quantities),
			ShippingCost:  c.effectiveCost(d),
			CostComputed:  d.costKnown,
		}
		out = append(out, view)
	}
	return out
}

// Totals recomputes the aggregate snapshot from current state and the
// last-known per-destination costs. It never blocks: a destination with
// products but no computed cost yet contributes the fallback price, so
// the caller never sees an undefined total. Deterministic given state.
func (c *OrderComposer) Totals() OrderTotals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalsLocked()
}

func (c *OrderComposer) totalsLocked() OrderTotals {
	totals := OrderTotals{}
	for _, d := range c.destinations {
		destItems := 0
		for _, product := range c.catalog {
			quantity := d.quantities[product.ID]
			if quantity <= 0 {
				continue
			}
			destItems += quantity
			totals.Subtotal += product.Price * int64(quantity)
		}
		if destItems > 0 {
			totals.TotalItems += destItems
			totals.TotalShipping += c.effectiveCost(d)
		}
	}
	totals.GrandTotal = totals.Subtotal + totals.TotalShipping
	totals.HasAnyProduct = totals.TotalItems > 0
	return totals
}

func (c *OrderComposer) effectiveCost(d *destinationState) int64 {
	if d.costKnown {
		return d.cost
	}
	return c.fallback
}

// Advance moves the flow one step forward. Leaving Drafting validates
// the draft: at least one product overall, and a complete address on
// every destination that has products. Validation failures leave state
// untouched. Confirmation advances only through Submit.
func (c *OrderComposer) Advance() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.stage {
	case StageDrafting:
		if err := c.validateDraftLocked(); err != nil {
			return err
		}
		c.stage = StageSenderInfo
	case StageSenderInfo:
		c.stage = StagePayment
	case StagePayment:
		c.stage = StageConfirmation
	case StageConfirmation:
		return fmt.Errorf("%w: confirmation completes through submit", ErrInvalidStageTransition)
	case StageSubmitted:
		return ErrDraftSubmitted
	default:
		return ErrInvalidStageTransition
	}
	return nil
}

// Back moves the flow one step backward. Drafting has no previous step
// and Submitted is terminal; states are never skipped.
func (c *OrderComposer) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.stage {
	case StageSenderInfo:
		c.stage = StageDrafting
	case StagePayment:
		c.stage = StageSenderInfo
	case StageConfirmation:
		c.stage = StagePayment
	case StageSubmitted:
		return ErrDraftSubmitted
	default:
		return ErrInvalidStageTransition
	}
	return nil
}

func (c *OrderComposer) validateDraftLocked() error {
	hasAny := false
	for _, d := range c.destinations {
		destHasProduct := false
		for _, product := range c.catalog {
			if d.quantities[product.ID] > 0 {
				destHasProduct = true
				hasAny = true
				break
			}
		}
		if destHasProduct && !addressComplete(d.address) {
			return &IncompleteAddressError{DestinationID: d.id}
		}
	}
	if !hasAny {
		return ErrEmptyOrder
	}
	return nil
}

func addressComplete(a Address) bool {
	fields := []string{a.Name, a.Phone, a.PostalCode, a.PrefectureOrCity, a.StreetAddress}
	for _, field := range fields {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

// Submit flattens the draft into line items and hands them to the order
// API. Only a draft at Confirmation can submit; success makes the draft
// terminal. In-flight shipping recomputes are drained first so the
// submitted totals reflect settled edits.
func (c *OrderComposer) Submit(ctx context.Context, submitter OrderSubmitter) (SubmittedOrder, error) {
	if submitter == nil {
		return SubmittedOrder{}, fmt.Errorf("%w: submitter is required", ErrComposerInvalidInput)
	}

	c.mu.Lock()
	switch c.stage {
	case StageSubmitted:
		c.mu.Unlock()
		return SubmittedOrder{}, ErrDraftSubmitted
	case StageConfirmation:
	default:
		c.mu.Unlock()
		return SubmittedOrder{}, fmt.Errorf("%w: submit requires confirmation stage", ErrInvalidStageTransition)
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	totals := c.totalsLocked()
	items := make([]OrderLineItem, 0)
	for _, d := range c.destinations {
		for _, product := range c.catalog {
			quantity := d.quantities[product.ID]
			if quantity <= 0 {
				continue
			}
			items = append(items, OrderLineItem{
				ProductID:       product.ID,
				Quantity:        quantity,
				ShippingAddress: d.address,
			})
		}
	}
	submission := OrderSubmission{
		Items:         items,
		PaymentMethod: c.paymentMethod,
		Sender:        c.sender,
		Subtotal:      totals.Subtotal,
		ShippingTotal: totals.TotalShipping,
		GrandTotal:    totals.GrandTotal,
	}
	c.mu.Unlock()

	order, err := submitter.SubmitOrder(ctx, submission)
	if err != nil {
		c.logger(ctx, "order.submit_failed", map[string]any{
			"draftId": c.id,
			"error":   err.Error(),
		})
		return SubmittedOrder{}, err
	}

	c.mu.Lock()
	c.stage = StageSubmitted
	c.mu.Unlock()
	return order, nil
}

func cloneQuantities(quantities map[string]int) map[string]int {
	out := make(map[string]int, len(quantities))
	for id, quantity := range quantities {
		out[id] = quantity
	}
	return out
}
