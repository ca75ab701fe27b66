package discovery

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestEngine() *Engine {
	return New(slog.Default())
}

func TestDiscover_FindsProductLinksAndFiltersOthers(t *testing.T) {
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`
			<html><body>
				<a href="/products/blue-widget">Blue Widget</a>
				<a href="/category/widgets">Widgets Category</a>
				<a href="/cart">Cart</a>
				<a href="/p/99999">Numbered Product</a>
			</body></html>
		`))
	})
	mux.HandleFunc("/products/blue-widget", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>product page</body></html>`))
	})
	mux.HandleFunc("/p/99999", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>product page</body></html>`))
	})

	e := newTestEngine()
	candidates, err := e.Discover(context.Background(), srv.URL, []string{srv.URL}, 10)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	urls := map[string]bool{}
	for _, c := range candidates {
		urls[c.URL] = true
	}
	if !urls[srv.URL+"/products/blue-widget"] {
		t.Error("expected /products/blue-widget to be discovered")
	}
	if !urls[srv.URL+"/p/99999"] {
		t.Error("expected /p/99999 to be discovered")
	}
	if urls[srv.URL+"/category/widgets"] {
		t.Error("expected /category/widgets to be excluded (non-product signal)")
	}
	if urls[srv.URL+"/cart"] {
		t.Error("expected /cart to be excluded (non-product signal)")
	}
}

func TestDiscover_TruncatesToMaxProducts(t *testing.T) {
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`
			<html><body>
				<a href="/products/a">A</a>
				<a href="/products/b">B</a>
				<a href="/products/c">C</a>
			</body></html>
		`))
	})

	e := newTestEngine()
	candidates, err := e.Discover(context.Background(), srv.URL, []string{srv.URL}, 2)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(candidates) != 2 {
		t.Errorf("len(candidates) = %d, want 2", len(candidates))
	}
}

func TestDiscover_NoSeedURLsReturnsNil(t *testing.T) {
	e := newTestEngine()
	candidates, err := e.Discover(context.Background(), "https://example.com", nil, 10)
	if err != nil || candidates != nil {
		t.Errorf("Discover() = (%v, %v), want (nil, nil)", candidates, err)
	}
}
