package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	domain "github.com/aozora-farm/api/internal/domain"
)

// ErrProductNotFound indicates the catalog has no product with the given id.
var ErrProductNotFound = errors.New("catalog: product not found")

// MemoryCatalog is an in-memory implementation of the product catalog
// collaborator, seeded from a JSON fixture. The real catalog lives in
// the storefront's product service; this stands in for it.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	order    []string
}

// NewMemoryCatalog builds a catalog from the given products, preserving order.
func NewMemoryCatalog(products ...domain.Product) *MemoryCatalog {
	c := &MemoryCatalog{
		products: make(map[string]domain.Product, len(products)),
	}
	for _, product := range products {
		id := strings.TrimSpace(product.ID)
		if id == "" {
			continue
		}
		if _, exists := c.products[id]; !exists {
			c.order = append(c.order, id)
		}
		c.products[id] = product
	}
	return c
}

// LoadCatalogFile reads a products JSON fixture into a MemoryCatalog.
func LoadCatalogFile(path string) (*MemoryCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return NewMemoryCatalog(products...), nil
}

// GetProduct returns the product with the given id.
func (c *MemoryCatalog) GetProduct(_ context.Context, id string) (domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	product, ok := c.products[strings.TrimSpace(id)]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, strings.TrimSpace(id))
	}
	return product, nil
}

// ListProducts returns every product in seed order.
func (c *MemoryCatalog) ListProducts(_ context.Context) ([]domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Product, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.products[id])
	}
	return out, nil
}
