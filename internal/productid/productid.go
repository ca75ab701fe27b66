// Package productid extracts a stable product identifier from a crawled
// URL and, failing that, from the page's HTML, trying platform-specific
// URL patterns first, then generic URL patterns, then HTML tags.
package productid

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Method names the strategy that produced an identifier, or "none".
type Method string

const (
	MethodAmazon      Method = "url_pattern_amazon"
	MethodShopify     Method = "url_pattern_shopify"
	MethodWooCommerce Method = "url_pattern_woocommerce"
	MethodMagento     Method = "url_pattern_magento"
	MethodBigCommerce Method = "url_pattern_bigcommerce"
	MethodGeneric     Method = "url_pattern_generic"
	MethodOpenGraph   Method = "html_opengraph"
	MethodSchema      Method = "html_schema"
	MethodNone        Method = "none"
)

var platformPatterns = []struct {
	method  Method
	pattern *regexp.Regexp
}{
	{MethodAmazon, regexp.MustCompile(`/dp/([A-Za-z0-9]{10})(?:[/?]|$)`)},
	{MethodAmazon, regexp.MustCompile(`/gp/product/([A-Za-z0-9]{10})(?:[/?]|$)`)},
	{MethodAmazon, regexp.MustCompile(`[?&]ASIN=([A-Za-z0-9]{10})(?:&|$)`)},
	{MethodShopify, regexp.MustCompile(`/products/([a-zA-Z0-9-]+)`)},
	{MethodShopify, regexp.MustCompile(`[?&]product_id=(\d+)`)},
	{MethodWooCommerce, regexp.MustCompile(`/product/([a-zA-Z0-9-]+)`)},
	{MethodMagento, regexp.MustCompile(`[?&]product=(\d+)`)},
	{MethodBigCommerce, regexp.MustCompile(`[?&]products_id=(\d+)`)},
}

var genericQueryKeys = []string{"id", "product_id", "productId", "pid", "item_id", "itemId"}

var genericNumericSegment = regexp.MustCompile(`^\d{4,}$`)

var htmlExtensionSuffix = regexp.MustCompile(`(?i)\.(html|php|aspx)$`)

// Extract tries platform URL patterns, then generic URL patterns, then
// (if html is non-empty) HTML tag strategies, returning the first match.
// It returns ("", MethodNone) if nothing matches.
func Extract(rawURL, html string) (string, Method) {
	if id, method := extractFromURL(rawURL); id != "" {
		return id, method
	}
	if html == "" {
		return "", MethodNone
	}
	return extractFromHTML(html)
}

func extractFromURL(rawURL string) (string, Method) {
	for _, p := range platformPatterns {
		if m := p.pattern.FindStringSubmatch(rawURL); m != nil {
			return m[1], p.method
		}
	}

	if idx := strings.IndexAny(rawURL, "?"); idx != -1 {
		query := rawURL[idx+1:]
		for _, pair := range strings.Split(query, "&") {
			k, v, found := strings.Cut(pair, "=")
			if !found || v == "" {
				continue
			}
			for _, key := range genericQueryKeys {
				if k == key {
					return v, MethodGeneric
				}
			}
		}
	}

	path := rawURL
	if idx := strings.IndexAny(path, "?#"); idx != -1 {
		path = path[:idx]
	}
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if genericNumericSegment.MatchString(segments[i]) {
			return segments[i], MethodGeneric
		}
	}

	if len(segments) > 0 {
		last := segments[len(segments)-1]
		last = htmlExtensionSuffix.ReplaceAllString(last, "")
		if last != "" {
			return last, MethodGeneric
		}
	}

	return "", MethodNone
}

func extractFromHTML(html string) (string, Method) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", MethodNone
	}

	ogSelectors := []string{
		`meta[property="product:retailer_item_id"]`,
		`meta[property="product:sku"]`,
		`meta[property="og:product:sku"]`,
	}
	for _, sel := range ogSelectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && v != "" {
			return v, MethodOpenGraph
		}
	}

	schemaSelectors := []string{
		`[itemprop="sku"]`,
		`[itemprop="productID"]`,
		`[itemprop="identifier"]`,
		`meta[name="product_id"]`,
		`meta[name="sku"]`,
	}
	for _, sel := range schemaSelectors {
		node := doc.Find(sel).First()
		if v, ok := node.Attr("content"); ok && v != "" {
			return v, MethodSchema
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text, MethodSchema
		}
	}

	return "", MethodNone
}
