package productid

import "testing"

func TestExtract_AmazonDP(t *testing.T) {
	id, method := Extract("https://www.amazon.com/Widget/dp/B08N5WRWNW/ref=sr_1", "")
	if id != "B08N5WRWNW" || method != MethodAmazon {
		t.Errorf("Extract() = (%q, %q), want (B08N5WRWNW, %q)", id, method, MethodAmazon)
	}
}

func TestExtract_AmazonASINQuery(t *testing.T) {
	id, method := Extract("https://www.amazon.com/gp/aw/d/?ASIN=B08N5WRWNW&ref=x", "")
	if id != "B08N5WRWNW" || method != MethodAmazon {
		t.Errorf("Extract() = (%q, %q), want ASIN match", id, method)
	}
}

func TestExtract_ShopifyProductSlug(t *testing.T) {
	id, method := Extract("https://shop.example.com/products/blue-widget", "")
	if id != "blue-widget" || method != MethodShopify {
		t.Errorf("Extract() = (%q, %q), want (blue-widget, %q)", id, method, MethodShopify)
	}
}

func TestExtract_WooCommerceProductSlug(t *testing.T) {
	id, method := Extract("https://store.example.com/product/red-widget", "")
	if id != "red-widget" || method != MethodWooCommerce {
		t.Errorf("Extract() = (%q, %q), want (red-widget, %q)", id, method, MethodWooCommerce)
	}
}

func TestExtract_GenericQueryKey(t *testing.T) {
	id, method := Extract("https://example.com/view?product_id=4821", "")
	if id != "4821" || method != MethodGeneric {
		t.Errorf("Extract() = (%q, %q), want (4821, %q)", id, method, MethodGeneric)
	}
}

func TestExtract_GenericNumericPathSegment(t *testing.T) {
	id, method := Extract("https://example.com/catalog/98213", "")
	if id != "98213" || method != MethodGeneric {
		t.Errorf("Extract() = (%q, %q), want (98213, %q)", id, method, MethodGeneric)
	}
}

func TestExtract_GenericLastSegmentStripped(t *testing.T) {
	id, method := Extract("https://example.com/catalog/blue-widget.html", "")
	if id != "blue-widget" || method != MethodGeneric {
		t.Errorf("Extract() = (%q, %q), want (blue-widget, %q)", id, method, MethodGeneric)
	}
}

func TestExtract_HTMLOpenGraphFallback(t *testing.T) {
	html := `<html><head><meta property="product:sku" content="SKU-123"></head></html>`
	id, method := Extract("https://example.com/", html)
	if id != "SKU-123" || method != MethodOpenGraph {
		t.Errorf("Extract() = (%q, %q), want (SKU-123, %q)", id, method, MethodOpenGraph)
	}
}

func TestExtract_HTMLSchemaFallback(t *testing.T) {
	html := `<html><body><span itemprop="productID">PID-99</span></body></html>`
	id, method := Extract("https://example.com/", html)
	if id != "PID-99" || method != MethodSchema {
		t.Errorf("Extract() = (%q, %q), want (PID-99, %q)", id, method, MethodSchema)
	}
}

func TestExtract_URLTriedBeforeHTML(t *testing.T) {
	html := `<html><head><meta property="product:sku" content="SKU-FROM-HTML"></head></html>`
	id, method := Extract("https://shop.example.com/products/from-url", html)
	if id != "from-url" || method != MethodShopify {
		t.Errorf("Extract() = (%q, %q), want URL match to win over HTML", id, method)
	}
}

func TestExtract_NoMatch(t *testing.T) {
	id, method := Extract("https://example.com/", "<html><body>nothing here</body></html>")
	if id != "" || method != MethodNone {
		t.Errorf("Extract() = (%q, %q), want (\"\", %q)", id, method, MethodNone)
	}
}
