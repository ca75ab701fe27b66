// Package change implements the pure comparison between a product's
// previous and current observed state used to decide whether a webhook
// event should fire and what its payload should contain.
package change

import "github.com/obsrv/monitor/internal/models"

// Result carries both the raw comparison and the derived decision flags
// consumed by the History Writer (to populate the history row) and the
// Scheduler (to decide webhook emission).
type Result struct {
	PriceChanged     bool
	StockChanged     bool
	OldPrice         *float64
	NewPrice         *float64
	PriceChangePct   *float64
	OldStock         models.StockStatus
	NewStock         models.StockStatus
	ExceededThreshold bool
}

// Detect compares the previous history record (nil on a product's first
// crawl) against the newly observed price/stock, applying
// website.PriceChangeThresholdPct to decide significance.
func Detect(previous *models.ProductHistoryRecord, newPrice *float64, newStock models.StockStatus, thresholdPct float64) Result {
	if previous == nil {
		return Result{
			NewPrice: newPrice,
			NewStock: newStock,
		}
	}

	result := Result{
		OldPrice: previous.Price,
		NewPrice: newPrice,
		OldStock: previous.StockStatus,
		NewStock: newStock,
	}

	result.PriceChanged, result.PriceChangePct, result.ExceededThreshold = comparePrice(previous.Price, newPrice, thresholdPct)
	result.StockChanged = previous.StockStatus != newStock

	return result
}

func comparePrice(old, new *float64, thresholdPct float64) (changed bool, pct *float64, exceeded bool) {
	if old == nil && new == nil {
		return false, nil, false
	}
	if old == nil || new == nil {
		return true, nil, true
	}
	if *old == 0 {
		if *new == 0 {
			return false, nil, false
		}
		return true, nil, true
	}

	changePct := (*new - *old) / *old * 100
	changed = *old != *new
	exceeded = absFloat(changePct) >= thresholdPct
	return changed, &changePct, exceeded
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
