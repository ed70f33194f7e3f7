package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/aozora-farm/api/internal/services"
)

type fixedEstimator struct{}

func (fixedEstimator) Estimate(context.Context, float64, string) int64 { return 500 }

func TestDraftStoreLifecycle(t *testing.T) {
	store := NewDraftStore()

	composer, err := services.NewOrderComposer(services.OrderComposerDeps{Estimator: fixedEstimator{}})
	if err != nil {
		t.Fatalf("failed to build composer: %v", err)
	}

	store.Put(composer)

	got, err := store.Get(composer.ID())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != composer {
		t.Fatal("expected the stored composer instance")
	}

	store.Delete(composer.ID())
	if _, err := store.Get(composer.ID()); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected draft not found after delete, got %v", err)
	}

	if _, err := store.Get("unknown"); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected draft not found for unknown id, got %v", err)
	}
}
