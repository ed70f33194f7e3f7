package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	domain "github.com/aozora-farm/api/internal/domain"
)

type stubEstimator struct {
	mu    sync.Mutex
	calls []float64
	price func(weight float64, destination string) int64
	block func(weight float64) chan struct{}
}

func (s *stubEstimator) Estimate(_ context.Context, weight float64, destination string) int64 {
	if s.block != nil {
		if gate := s.block(weight); gate != nil {
			<-gate
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, weight)
	s.mu.Unlock()
	if s.price != nil {
		return s.price(weight, destination)
	}
	return 800
}

func (s *stubEstimator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubSubmitter struct {
	submission OrderSubmission
	order      SubmittedOrder
	err        error
	calls      int
}

func (s *stubSubmitter) SubmitOrder(_ context.Context, submission OrderSubmission) (SubmittedOrder, error) {
	s.calls++
	s.submission = submission
	if s.err != nil {
		return SubmittedOrder{}, s.err
	}
	order := s.order
	if order.ID == "" {
		order.ID = "order_test"
	}
	order.Items = submission.Items
	order.PaymentMethod = submission.PaymentMethod
	order.Subtotal = submission.Subtotal
	order.ShippingTotal = submission.ShippingTotal
	order.GrandTotal = submission.GrandTotal
	return order, nil
}

func completeAddress(prefecture string) Address {
	return Address{
		Name:             "山田 太郎",
		Phone:            "090-0000-0000",
		PostalCode:       "1000001",
		PrefectureOrCity: prefecture,
		StreetAddress:    "千代田1-1",
	}
}

func newTestComposer(t *testing.T, estimator ShippingEstimator) *OrderComposer {
	t.Helper()
	composer, err := NewOrderComposer(OrderComposerDeps{
		Catalog:   testCatalog(),
		Estimator: estimator,
	})
	if err != nil {
		t.Fatalf("failed to build composer: %v", err)
	}
	return composer
}

func TestNewOrderComposerCreatesPrimaryDestination(t *testing.T) {
	composer := newTestComposer(t, &stubEstimator{})

	if composer.Stage() != StageDrafting {
		t.Fatalf("expected drafting stage, got %s", composer.Stage())
	}
	destinations := composer.Destinations()
	if len(destinations) != 1 {
		t.Fatalf("expected one destination, got %d", len(destinations))
	}
	if destinations[0].ID != 1 {
		t.Fatalf("expected primary destination id 1, got %d", destinations[0].ID)
	}
	if composer.ID() == "" {
		t.Fatal("expected a generated draft id")
	}
}

func TestOrderComposerEndToEndTotals(t *testing.T) {
	estimator := &stubEstimator{price: func(weight float64, destination string) int64 {
		if destination != "東京都" {
			t.Errorf("unexpected estimate destination %q", destination)
		}
		// Tier5 price for the settled 3.5kg basket.
		if weight > 2 && weight <= 5 {
			return 800
		}
		return 9999
	}}
	composer := newTestComposer(t, estimator)
	ctx := context.Background()

	if err := composer.SetAddress(ctx, 1, completeAddress("東京都")); err != nil {
		t.Fatalf("failed to set address: %v", err)
	}
	if err := composer.SetQuantity(ctx, 1, "prod_a", 2); err != nil {
		t.Fatalf("failed to set quantity: %v", err)
	}
	if err := composer.SetQuantity(ctx, 1, "prod_b", 1); err != nil {
		t.Fatalf("failed to set quantity: %v", err)
	}
	composer.Wait()

	totals := composer.Totals()
	if totals.TotalItems != 3 {
		t.Fatalf("expected 3 items, got %d", totals.TotalItems)
	}
	if totals.Subtotal != 4000 {
		t.Fatalf("expected subtotal 4000, got %d", totals.Subtotal)
	}
	if totals.TotalShipping != 800 {
		t.Fatalf("expected shipping 800, got %d", totals.TotalShipping)
	}
	if totals.GrandTotal != 4800 {
		t.Fatalf("expected grand total 4800, got %d", totals.GrandTotal)
	}
	if !totals.HasAnyProduct {
		t.Fatal("expected HasAnyProduct to be true")
	}

	if again := composer.Totals(); again != totals {
		t.Fatalf("expected totals to be deterministic, got %+v then %+v", totals, again)
	}
}

func TestOrderComposerTotalsNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	estimator := &stubEstimator{
		price: func(float64, string) int64 { return 1200 },
		block: func(float64) chan struct{} { return release },
	}
	composer := newTestComposer(t, estimator)
	ctx := context.Background()

	if err := composer.SetQuantity(ctx, 1, "prod_a", 2); err != nil {
		t.Fatalf("failed to set quantity: %v", err)
	}

	// The estimate is still in flight; totals must answer immediately
	// with the fallback price.
	totals := composer.Totals()
	if totals.TotalShipping != DefaultFallbackPrice {
		t.Fatalf("expected fallback shipping %d while estimate pending, got %d", DefaultFallbackPrice, totals.TotalShipping)
	}

	close(release)
	composer.Wait()

	totals = composer.Totals()
	if totals.TotalShipping != 1200 {
		t.Fatalf("expected settled shipping 1200, got %d", totals.TotalShipping)
	}
}

func TestOrderComposerLastWriteWins(t *testing.T) {
	stale := make(chan struct{})
	estimator := &stubEstimator{
		price: func(weight float64, _ string) int64 { return int64(weight * 100) },
		block: func(weight float64) chan struct{} {
			// Hold the first edit's estimate until the second has landed.
			if weight == 1.5 {
				return stale
			}
			return nil
		},
	}
	composer := newTestComposer(t, estimator)
	ctx := context.Background()

	if err := composer.SetQuantity(ctx, 1, "prod_a", 1); err != nil {
		t.Fatalf("failed to set quantity: %v", err)
	}
	if err := composer.SetQuantity(ctx, 1, "prod_a", 2); err != nil {
		t.Fatalf("failed to set quantity: %v", err)
	}
	close(stale)
	composer.Wait()

	destinations := composer.Destinations()
	if destinations[0].ShippingCost != 300 {
		t.Fatalf("expected the later edit's cost 300 to win, got %d", destinations[0].ShippingCost)
	}
}

func TestOrderComposerDestinationLifecycle(t *testing.T) {
	composer := newTestComposer(t, &stubEstimator{})

	id, err := composer.AddDestination()
	if err != nil {
		t.Fatalf("failed to add destination: %v", err)
	}
	if id != 2 {
		t.Fatalf("expected destination id 2, got %d", id)
	}

	if err := composer.RemoveDestination(1); !errors.Is(err, ErrCannotRemovePrimaryDestination) {
		t.Fatalf("expected primary destination guard, got %v", err)
	}
	if err := composer.RemoveDestination(99); !errors.Is(err, ErrDestinationNotFound) {
		t.Fatalf("expected destination not found, got %v", err)
	}
	if err := composer.RemoveDestination(id); err != nil {
		t.Fatalf("failed to remove destination: %v", err)
	}

	// Ids are never reused after removal.
	next, err := composer.AddDestination()
	if err != nil {
		t.Fatalf("failed to add destination: %v", err)
	}
	if next != 3 {
		t.Fatalf("expected destination id 3, got %d", next)
	}
}

func TestOrderComposerRemovedDestinationExcludedFromTotals(t *testing.T) {
	composer := newTestComposer(t, &stubEstimator{price: func(float64, string) int64 { return 700 }})
	ctx := context.Background()

	id, err := composer.AddDestination()
	if err != nil {
		t.Fatalf("failed to add destination: %v", err)
	}
	if err := composer.SetQuantity(ctx, 1, "prod_a", 1); err != nil {
		t.Fatalf("failed to set quantity: %v", err)
	}
	if err := composer.SetQuantity(ctx, id, "prod_b", 1); err != nil {
		t.Fatalf("failed to set quantity: %v", err)
	}
	composer.Wait()

	if totals := composer.Totals(); totals.TotalShipping != 1400 {
		t.Fatalf("expected shipping for two destinations, got %d", totals.TotalShipping)
	}

	if err := composer.RemoveDestination(id); err != nil {
		t.Fatalf("failed to remove destination: %v", err)
	}
	totals := composer.Totals()
	if totals.TotalShipping != 700 {
		t.Fatalf("expected shipping for one destination after removal, got %d", totals.TotalShipping)
	}
	if totals.Subtotal != 1000 {
		t.Fatalf("expected subtotal 1000 after removal, got %d", totals.Subtotal)
	}
}

func TestOrderComposerSetQuantityValidation(t *testing.T) {
	composer := newTestComposer(t, &stubEstimator{})
	ctx := context.Background()

	if err := composer.SetQuantity(ctx, 1, "prod_a", -1); !errors.Is(err, ErrComposerInvalidInput) {
		t.Fatalf("expected invalid input for negative quantity, got %v", err)
	}
	if err := composer.SetQuantity(ctx, 1, "  ", 1); !errors.Is(err, ErrComposerInvalidInput) {
		t.Fatalf("expected invalid input for blank product id, got %v", err)
	}
	if err := composer.SetQuantity(ctx, 42, "prod_a", 1); !errors.Is(err, ErrDestinationNotFound) {
		t.Fatalf("expected destination not found, got %v", err)
	}

	if err := composer.SetQuantity(ctx, 1, "prod_a", 2); err != nil {
		t.Fatalf("failed to set quantity: %v", err)
	}
	if err := composer.SetQuantity(ctx, 1, "prod_a", 0); err != nil {
		t.Fatalf("failed to zero quantity: %v", err)
	}
	composer.Wait()

	destinations := composer.Destinations()
	if len(destinations[0].Quantities) != 0 {
		t.Fatalf("expected zeroed quantity to be dropped, got %v", destinations[0].Quantities)
	}
}

func TestOrderComposerRecomputeOnlyOnPrefectureEdits(t *testing.T) {
	estimator := &stubEstimator{}
	composer := newTestComposer(t, estimator)
	ctx := context.Background()

	if err := composer.SetAddressField(ctx, 1, FieldName, "山田 太郎"); err != nil {
		t.Fatalf("failed to set name: %v", err)
	}
	if err := composer.SetAddressField(ctx, 1, FieldPhone, "090-0000-0000"); err != nil {
		t.Fatalf("failed to set phone: %v", err)
	}
	if err := composer.SetAddressField(ctx, 1, FieldPostalCode, "1000001"); err != nil {
		t.Fatalf("failed to set postal code: %v", err)
	}
	if err := composer.SetAddressField(ctx, 1, FieldStreetAddress, "千代田1-1"); err != nil {
		t.Fatalf("failed to set street: %v", err)
	}
	composer.Wait()
	if estimator.callCount() != 0 {
		t.Fatalf("expected no recompute for non-prefecture edits, got %d calls", estimator.callCount())
	}

	if err := composer.SetAddressField(ctx, 1, FieldPrefectureOrCity, "東京都"); err != nil {
		t.Fatalf("failed to set prefecture: %v", err)
	}
	composer.Wait()
	if estimator.callCount() != 1 {
		t.Fatalf("expected one recompute after prefecture edit, got %d calls", estimator.callCount())
	}

	if err := composer.SetAddressField(ctx, 1, AddressField("fax"), "000"); !errors.Is(err, ErrComposerInvalidInput) {
		t.Fatalf("expected invalid input for unknown field, got %v", err)
	}
}

func TestOrderComposerAdvanceValidation(t *testing.T) {
	composer := newTestComposer(t, &stubEstimator{})
	ctx := context.Background()

	if err := composer.Advance(); !errors.Is(err, ErrEmptyOrder) {
		t.Fatalf("expected empty order error, got %v", err)
	}

	if err := composer.SetQuantity(ctx, 1, "prod_a", 1); err != nil {
		t.Fatalf("failed to set quantity: %v", err)
	}
	err := composer.Advance()
	var incomplete *IncompleteAddressError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected incomplete address error, got %v", err)
	}
	if incomplete.DestinationID != 1 {
		t.Fatalf("expected destination 1 flagged, got %d", incomplete.DestinationID)
	}
	if composer.Stage() != StageDrafting {
		t.Fatalf("expected failed advance to leave stage unchanged, got %s", composer.Stage())
	}

	if err := composer.SetAddress(ctx, 1, completeAddress("東京都")); err != nil {
		t.Fatalf("failed to set address: %v", err)
	}
	if err := composer.Advance(); err != nil {
		t.Fatalf("expected advance to succeed, got %v", err)
	}
	if composer.Stage() != StageSenderInfo {
		t.Fatalf("expected sender info stage, got %s", composer.Stage())
	}
}

func TestOrderComposerStageMachine(t *testing.T) {
	composer := newTestComposer(t, &stubEstimator{})
	ctx := context.Background()

	if err := composer.Back(); !errors.Is(err, ErrInvalidStageTransition) {
		t.Fatalf("expected no back step from drafting, got %v", err)
	}

	if err := composer.SetQuantity(ctx, 1, "prod_a", 1); err != nil {
		t.Fatalf("failed to set quantity: %v", err)
	}
	if err := composer.SetAddress(ctx, 1, completeAddress("東京都")); err != nil {
		t.Fatalf("failed to set address: %v", err)
	}

	for _, want := range []Stage{StageSenderInfo, StagePayment, StageConfirmation} {
		if err := composer.Advance(); err != nil {
			t.Fatalf("advance to %s failed: %v", want, err)
		}
		if composer.Stage() != want {
			t.Fatalf("expected stage %s, got %s", want, composer.Stage())
		}
	}

	if err := composer.Advance(); !errors.Is(err, ErrInvalidStageTransition) {
		t.Fatalf("expected confirmation to require submit, got %v", err)
	}

	if err := composer.Back(); err != nil {
		t.Fatalf("back from confirmation failed: %v", err)
	}
	if composer.Stage() != StagePayment {
		t.Fatalf("expected payment stage after back, got %s", composer.Stage())
	}
}

func TestOrderComposerSubmit(t *testing.T) {
	composer := newTestComposer(t, &stubEstimator{price: func(float64, string) int64 { return 800 }})
	ctx := context.Background()

	if err := composer.SetAddress(ctx, 1, completeAddress("東京都")); err != nil {
		t.Fatalf("failed to set address: %v", err)
	}
	if err := composer.SetQuantity(ctx, 1, "prod_a", 2); err != nil {
		t.Fatalf("failed to set quantity: %v", err)
	}
	if err := composer.SetQuantity(ctx, 1, "prod_b", 1); err != nil {
		t.Fatalf("failed to set quantity: %v", err)
	}
	composer.SetSender(completeAddress("北海道"))
	composer.SetPaymentMethod("bank_transfer")

	submitter := &stubSubmitter{}
	if _, err := composer.Submit(ctx, submitter); !errors.Is(err, ErrInvalidStageTransition) {
		t.Fatalf("expected submit to require confirmation stage, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := composer.Advance(); err != nil {
			t.Fatalf("advance %d failed: %v", i, err)
		}
	}

	order, err := composer.Submit(ctx, submitter)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if composer.Stage() != StageSubmitted {
		t.Fatalf("expected submitted stage, got %s", composer.Stage())
	}
	if order.GrandTotal != 4800 {
		t.Fatalf("expected grand total 4800, got %d", order.GrandTotal)
	}

	if len(submitter.submission.Items) != 2 {
		t.Fatalf("expected two line items, got %d", len(submitter.submission.Items))
	}
	first := submitter.submission.Items[0]
	if first.ProductID != "prod_a" || first.Quantity != 2 {
		t.Fatalf("unexpected first line item: %+v", first)
	}
	if first.ShippingAddress.PrefectureOrCity != "東京都" {
		t.Fatalf("expected line item to carry its destination address, got %+v", first.ShippingAddress)
	}
	if submitter.submission.PaymentMethod != "bank_transfer" {
		t.Fatalf("expected payment method on submission, got %q", submitter.submission.PaymentMethod)
	}

	if _, err := composer.Submit(ctx, submitter); !errors.Is(err, ErrDraftSubmitted) {
		t.Fatalf("expected resubmit to fail, got %v", err)
	}
	if err := composer.SetQuantity(ctx, 1, "prod_a", 5); !errors.Is(err, ErrDraftSubmitted) {
		t.Fatalf("expected edits after submit to fail, got %v", err)
	}
	if _, err := composer.AddDestination(); !errors.Is(err, ErrDraftSubmitted) {
		t.Fatalf("expected destination edits after submit to fail, got %v", err)
	}
}

func TestOrderComposerSubmitFailureKeepsStage(t *testing.T) {
	composer := newTestComposer(t, &stubEstimator{})
	ctx := context.Background()

	if err := composer.SetAddress(ctx, 1, completeAddress("東京都")); err != nil {
		t.Fatalf("failed to set address: %v", err)
	}
	if err := composer.SetQuantity(ctx, 1, "prod_a", 1); err != nil {
		t.Fatalf("failed to set quantity: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := composer.Advance(); err != nil {
			t.Fatalf("advance %d failed: %v", i, err)
		}
	}

	submitter := &stubSubmitter{err: errors.New("persistence down")}
	if _, err := composer.Submit(ctx, submitter); err == nil {
		t.Fatal("expected submit failure to propagate")
	}
	if composer.Stage() != StageConfirmation {
		t.Fatalf("expected stage to stay at confirmation, got %s", composer.Stage())
	}

	if _, err := composer.Submit(ctx, nil); !errors.Is(err, ErrComposerInvalidInput) {
		t.Fatalf("expected nil submitter rejection, got %v", err)
	}
}

func TestNewOrderComposerRequiresEstimator(t *testing.T) {
	if _, err := NewOrderComposer(OrderComposerDeps{Catalog: testCatalog()}); err == nil {
		t.Fatal("expected error for missing estimator")
	}
}

func TestNewOrderComposerCustomIDGenerator(t *testing.T) {
	composer, err := NewOrderComposer(OrderComposerDeps{
		Catalog:     []domain.Product{},
		Estimator:   &stubEstimator{},
		IDGenerator: func() string { return "draft_fixed" },
	})
	if err != nil {
		t.Fatalf("failed to build composer: %v", err)
	}
	if composer.ID() != "draft_fixed" {
		t.Fatalf("expected configured draft id, got %q", composer.ID())
	}
}
