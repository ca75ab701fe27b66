package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestFetcher() *Fetcher {
	return New(Config{
		RateLimitPerDomainPerMinute: 6000, // effectively no wait in tests
		Timeout:                     2 * time.Second,
		RetryAttempts:               2,
		RetryBackoffBase:            1 * time.Millisecond,
		UserAgent:                   "obsrv-test/1.0",
	})
}

func TestFetcher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	result, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Status != http.StatusOK || result.Body != "hello" {
		t.Errorf("Fetch() = %+v, want status 200 body hello", result)
	}
}

func TestFetcher_4xxIsNotRetried(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	var ce *CrawlError
	if !errors.As(err, &ce) || ce.Kind != KindHTTP4xx {
		t.Errorf("error = %v, want CrawlError{Kind: http_4xx}", err)
	}
	if hits != 1 {
		t.Errorf("hits = %d, want 1 (no retry on 4xx)", hits)
	}
}

func TestFetcher_5xxRetriesThenExhausts(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for persistent 500 response")
	}
	var ce *CrawlError
	if !errors.As(err, &ce) || ce.Kind != KindHTTP5xxExhausted {
		t.Errorf("error = %v, want CrawlError{Kind: http_5xx_exhausted}", err)
	}
	if hits != 3 {
		t.Errorf("hits = %d, want 3 (initial + 2 retries)", hits)
	}
}

func TestFetcher_InvalidURL(t *testing.T) {
	f := newTestFetcher()
	_, err := f.Fetch(context.Background(), "://not-a-url")
	var ce *CrawlError
	if !errors.As(err, &ce) || ce.Kind != KindInvalidURL {
		t.Errorf("error = %v, want CrawlError{Kind: invalid_url}", err)
	}
}

func TestFetcher_5xxThenSuccessRecovers(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	result, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Body != "ok" {
		t.Errorf("Body = %q, want ok", result.Body)
	}
	if hits != 2 {
		t.Errorf("hits = %d, want 2", hits)
	}
}
