// Package parse extracts product name, price, currency, and stock status
// from a fetched product page's HTML via a fixed heuristic chain. It is
// side-effect free, total, and never errors — a page that matches nothing
// yields a nil name and price, currency USD and stock status unknown
// rather than a failure.
package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// StockStatus mirrors models.StockStatus without importing it, keeping
// this package dependency-free of the persistence layer.
type StockStatus string

const (
	StockInStock             StockStatus = "in_stock"
	StockOutOfStock          StockStatus = "out_of_stock"
	StockLimitedAvailability StockStatus = "limited_availability"
	StockUnknown             StockStatus = "unknown"
)

// Result is the fixed-shape output of Parse.
type Result struct {
	Name        *string
	Price       *float64
	Currency    string
	StockStatus StockStatus
}

var priceJSONPattern = regexp.MustCompile(`"price"\s*:\s*"?(\d+(?:\.\d+)?)"?`)
var priceMetaPattern = regexp.MustCompile(`product:price:amount["'\s]*content=["']?(\d+(?:\.\d+)?)`)
var priceSignPattern = regexp.MustCompile(`[$£€]\s?(\d+(?:[.,]\d{2})?)`)

var currencySymbolToCode = map[string]string{
	"$": "USD",
	"£": "GBP",
	"€": "EUR",
}

var outOfStockPhrases = []string{"out of stock", "sold out", "unavailable"}
var inStockPhrases = []string{"in stock", "available", "add to cart"}
var limitedPhrase = "limited"
var onlyLeftPattern = regexp.MustCompile(`only\s+\d+\s+left`)

// Parse extracts name, price, currency, and stock status from html.
func Parse(html string) Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Result{Currency: "USD", StockStatus: StockUnknown}
	}

	return Result{
		Name:        extractName(doc),
		Price:       extractPrice(doc, html),
		Currency:    extractCurrency(doc, html),
		StockStatus: extractStockStatus(html),
	}
}

func extractName(doc *goquery.Document) *string {
	if v, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if v = strings.TrimSpace(v); v != "" {
			return &v
		}
	}
	if v := strings.TrimSpace(doc.Find("title").First().Text()); v != "" {
		return &v
	}
	if v := strings.TrimSpace(doc.Find("h1").First().Text()); v != "" {
		return &v
	}
	return nil
}

func extractPrice(doc *goquery.Document, html string) *float64 {
	if m := priceJSONPattern.FindStringSubmatch(html); m != nil {
		if price, ok := parseFixedPoint(m[1]); ok {
			return &price
		}
	}
	if v, ok := doc.Find(`meta[property="product:price:amount"]`).First().Attr("content"); ok {
		if price, ok := parseFixedPoint(v); ok {
			return &price
		}
	}
	if m := priceMetaPattern.FindStringSubmatch(html); m != nil {
		if price, ok := parseFixedPoint(m[1]); ok {
			return &price
		}
	}
	if m := priceSignPattern.FindStringSubmatch(html); m != nil {
		cleaned := strings.ReplaceAll(m[1], ",", "")
		if price, ok := parseFixedPoint(cleaned); ok {
			return &price
		}
	}
	return nil
}

func parseFixedPoint(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	rounded := float64(int64(v*100+0.5)) / 100
	return rounded, true
}

func extractCurrency(doc *goquery.Document, html string) string {
	if v, ok := doc.Find(`meta[property="product:price:currency"]`).First().Attr("content"); ok {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			return v
		}
	}
	if v := gjson.Get(html, "offers.priceCurrency"); v.Exists() && v.String() != "" {
		return strings.ToUpper(v.String())
	}
	for symbol, code := range currencySymbolToCode {
		if strings.Contains(html, symbol) {
			return code
		}
	}
	return "USD"
}

func extractStockStatus(html string) StockStatus {
	lower := strings.ToLower(html)

	for _, phrase := range outOfStockPhrases {
		if strings.Contains(lower, phrase) {
			return StockOutOfStock
		}
	}
	for _, phrase := range inStockPhrases {
		if strings.Contains(lower, phrase) {
			return StockInStock
		}
	}
	if strings.Contains(lower, limitedPhrase) || onlyLeftPattern.MatchString(lower) {
		return StockLimitedAvailability
	}
	return StockUnknown
}
