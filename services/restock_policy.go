package services

import (
	"math"

	"storefront-service/models"
)

// RestockPolicy decides when a product is flagged for restocking.
type RestockPolicy struct {
	// Threshold flags a product once available stock drops to or below it.
	Threshold int
	// Ratio, when positive, also flags a product whose available stock is
	// below Ratio of its total stock.
	Ratio float64
}

// DefaultRestockPolicy flags products only when they run out.
func DefaultRestockPolicy() RestockPolicy {
	return RestockPolicy{}
}

// NeedsRestock applies the policy to the given stock levels.
func (r RestockPolicy) NeedsRestock(available, total int) bool {
	if available <= r.Threshold {
		return true
	}
	if r.Ratio > 0 {
		return total == 0 || float64(available) < float64(total)*r.Ratio
	}
	return false
}

// StockPercent is available stock as a percentage of total, rounded to two
// decimals. An empty catalogue entry reports 0.
func StockPercent(available, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(available)/float64(total)*10000) / 100
}

// Priority ranks how urgently a product needs restocking.
func Priority(available, total int) string {
	if total <= 0 {
		return models.PriorityCritical
	}
	ratio := float64(available) / float64(total)
	switch {
	case ratio < 0.10:
		return models.PriorityCritical
	case ratio < 0.20:
		return models.PriorityLow
	default:
		return models.PriorityNormal
	}
}
