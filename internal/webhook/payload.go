package webhook

import (
	"time"

	"github.com/obsrv/monitor/internal/change"
	"github.com/obsrv/monitor/internal/models"
	"github.com/obsrv/monitor/internal/urlnorm"
)

type websitePayload struct {
	ID      string `json:"id"`
	BaseURL string `json:"base_url"`
	Name    string `json:"name"`
}

type productPayload struct {
	ID                 string  `json:"id"`
	URL                string  `json:"url"`
	Name               string  `json:"name"`
	ExtractedProductID *string `json:"extracted_product_id,omitempty"`
}

type priceChangeDetail struct {
	Type           string   `json:"type"`
	OldValue       *float64 `json:"old_value"`
	NewValue       *float64 `json:"new_value"`
	Currency       string   `json:"currency"`
	ChangePct      *float64 `json:"change_pct"`
	AbsoluteChange *float64 `json:"absolute_change"`
	DetectedAt     string   `json:"detected_at"`
}

type priceChangeMetadata struct {
	CrawlID           string  `json:"crawl_id"`
	ThresholdPct      float64 `json:"threshold_pct"`
	ExceededThreshold bool    `json:"exceeded_threshold"`
}

// PriceChangedPayload is the wire body for a product.price_changed event.
type PriceChangedPayload struct {
	EventType string              `json:"event_type"`
	EventID   string              `json:"event_id"`
	Timestamp string              `json:"timestamp"`
	Website   websitePayload      `json:"website"`
	Product   productPayload      `json:"product"`
	Change    priceChangeDetail   `json:"change"`
	Metadata  priceChangeMetadata `json:"metadata"`
}

type stockChangeDetail struct {
	Type       string `json:"type"`
	OldValue   string `json:"old_value"`
	NewValue   string `json:"new_value"`
	DetectedAt string `json:"detected_at"`
}

type stockChangeMetadata struct {
	CrawlID           string   `json:"crawl_id"`
	ThresholdPct      float64  `json:"threshold_pct"`
	ExceededThreshold bool     `json:"exceeded_threshold"`
	PriceAtChange     *float64 `json:"price_at_change,omitempty"`
	Currency          string   `json:"currency"`
}

// StockChangedPayload is the wire body for a product.stock_changed event.
type StockChangedPayload struct {
	EventType string              `json:"event_type"`
	EventID   string              `json:"event_id"`
	Timestamp string              `json:"timestamp"`
	Website   websitePayload      `json:"website"`
	Product   productPayload      `json:"product"`
	Change    stockChangeDetail   `json:"change"`
	Metadata  stockChangeMetadata `json:"metadata"`
}

func toWebsitePayload(w *models.MonitoredWebsite) websitePayload {
	return websitePayload{
		ID:      w.ID,
		BaseURL: w.BaseURL,
		Name:    urlnorm.ExtractBaseDomain(w.BaseURL),
	}
}

func toProductPayload(p *models.Product) productPayload {
	return productPayload{
		ID:                 p.ID,
		URL:                p.OriginalURL,
		Name:               p.ProductName,
		ExtractedProductID: p.ExtractedProductID,
	}
}

// BuildPriceChangedPayload builds the canonical price-change event body
// from a Change Detector result, per spec.md §6.
func BuildPriceChangedPayload(eventID string, now time.Time, website *models.MonitoredWebsite, product *models.Product, crawlLogID string, detected change.Result) PriceChangedPayload {
	// Per DESIGN.md Open Question decision #2: a null<->value price
	// transition reports absolute_change 0 (not null) while still
	// carrying exceeded_threshold=true so the event emits.
	zero := 0.0
	absChange := &zero
	if detected.OldPrice != nil && detected.NewPrice != nil {
		v := *detected.NewPrice - *detected.OldPrice
		absChange = &v
	}

	return PriceChangedPayload{
		EventType: "product.price_changed",
		EventID:   eventID,
		Timestamp: now.Format(time.RFC3339),
		Website:   toWebsitePayload(website),
		Product:   toProductPayload(product),
		Change: priceChangeDetail{
			Type:           "price",
			OldValue:       detected.OldPrice,
			NewValue:       detected.NewPrice,
			Currency:       product.CurrentCurrency,
			ChangePct:      detected.PriceChangePct,
			AbsoluteChange: absChange,
			DetectedAt:     now.Format(time.RFC3339),
		},
		Metadata: priceChangeMetadata{
			CrawlID:           crawlLogID,
			ThresholdPct:      website.PriceChangeThresholdPct,
			ExceededThreshold: detected.ExceededThreshold,
		},
	}
}

// BuildStockChangedPayload builds the canonical stock-change event body
// from a Change Detector result, per spec.md §6.
func BuildStockChangedPayload(eventID string, now time.Time, website *models.MonitoredWebsite, product *models.Product, crawlLogID string, detected change.Result) StockChangedPayload {
	return StockChangedPayload{
		EventType: "product.stock_changed",
		EventID:   eventID,
		Timestamp: now.Format(time.RFC3339),
		Website:   toWebsitePayload(website),
		Product:   toProductPayload(product),
		Change: stockChangeDetail{
			Type:       "stock",
			OldValue:   string(detected.OldStock),
			NewValue:   string(detected.NewStock),
			DetectedAt: now.Format(time.RFC3339),
		},
		Metadata: stockChangeMetadata{
			CrawlID:           crawlLogID,
			ThresholdPct:      website.PriceChangeThresholdPct,
			ExceededThreshold: detected.ExceededThreshold,
			PriceAtChange:     detected.NewPrice,
			Currency:          product.CurrentCurrency,
		},
	}
}
