package services

import domain "github.com/aozora-farm/api/internal/domain"

// TotalWeightKg computes the shipment weight in kilograms for the given
// quantity map against the catalog. Quantities for unknown product ids
// are skipped: a stale or removed product must not break the
// calculation. Gram weights are converted to kilograms; any other unit
// is treated as kilograms. Pure function.
func TotalWeightKg(catalog []Product, quantities map[string]int) float64 {
	if len(catalog) == 0 || len(quantities) == 0 {
		return 0
	}

	total := 0.0
	for _, product := range catalog {
		quantity, ok := quantities[product.ID]
		if !ok || quantity <= 0 {
			continue
		}
		total += weightKg(product) * float64(quantity)
	}
	return total
}

func weightKg(product Product) float64 {
	if product.WeightUnit == domain.WeightUnitG {
		return product.Weight / 1000
	}
	return product.Weight
}
