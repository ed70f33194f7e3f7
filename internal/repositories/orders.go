package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/aozora-farm/api/internal/domain"
)

// ErrEmptySubmission indicates an order submission carried no line items.
var ErrEmptySubmission = errors.New("orders: submission has no items")

// MemoryOrders is an in-memory stand-in for the external order
// persistence API: it assigns an id, timestamps the order, and keeps it
// retrievable for the process lifetime.
type MemoryOrders struct {
	mu     sync.RWMutex
	orders map[string]domain.SubmittedOrder
	clock  func() time.Time
	newID  func() string
}

// NewMemoryOrders constructs an empty order store.
func NewMemoryOrders() *MemoryOrders {
	return &MemoryOrders{
		orders: make(map[string]domain.SubmittedOrder),
		clock:  time.Now,
		newID:  func() string { return ulid.Make().String() },
	}
}

// SubmitOrder persists the flattened draft and returns the stored record.
func (s *MemoryOrders) SubmitOrder(_ context.Context, submission domain.OrderSubmission) (domain.SubmittedOrder, error) {
	if len(submission.Items) == 0 {
		return domain.SubmittedOrder{}, ErrEmptySubmission
	}

	items := make([]domain.OrderLineItem, len(submission.Items))
	copy(items, submission.Items)

	order := domain.SubmittedOrder{
		ID:            s.newID(),
		Items:         items,
		PaymentMethod: submission.PaymentMethod,
		Subtotal:      submission.Subtotal,
		ShippingTotal: submission.ShippingTotal,
		GrandTotal:    submission.GrandTotal,
		PlacedAt:      s.clock().UTC(),
	}

	s.mu.Lock()
	s.orders[order.ID] = order
	s.mu.Unlock()
	return order, nil
}

// GetOrder returns a previously submitted order.
func (s *MemoryOrders) GetOrder(_ context.Context, id string) (domain.SubmittedOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.SubmittedOrder{}, fmt.Errorf("orders: order %s not found", id)
	}
	return order, nil
}
