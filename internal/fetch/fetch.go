// Package fetch performs a single rate-limited, retrying HTTP GET per
// crawl target, classifying failures into the taxonomy the scheduler and
// change detector use to decide whether a crawl attempt counts as a
// transient or permanent failure.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/obsrv/monitor/internal/ratelimit"
)

// ErrorKind classifies why a fetch failed.
type ErrorKind string

const (
	KindNetwork           ErrorKind = "network"
	KindTimeout           ErrorKind = "timeout"
	KindHTTP4xx           ErrorKind = "http_4xx"
	KindHTTP5xxExhausted  ErrorKind = "http_5xx_exhausted"
	KindInvalidURL        ErrorKind = "invalid_url"
	kindHTTP5xxRetryable  ErrorKind = "http_5xx"
)

// CrawlError wraps a fetch failure with its classification.
type CrawlError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *CrawlError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *CrawlError) Unwrap() error { return e.Err }

// Result is a successful fetch outcome.
type Result struct {
	FinalURL  string
	Status    int
	Body      string
	FetchedAt time.Time
}

// Fetcher enforces a per-base-host rate limit and a retry/backoff policy
// around a single-page HTTP GET.
type Fetcher struct {
	limiter          *ratelimit.HostLimiter
	timeout          time.Duration
	retryAttempts    int
	retryBackoffBase time.Duration
	userAgent        string
}

// Config configures a Fetcher; zero values fall back to sane defaults.
type Config struct {
	RateLimitPerDomainPerMinute int
	Timeout                     time.Duration
	RetryAttempts               int
	RetryBackoffBase            time.Duration
	UserAgent                   string
}

// New builds a Fetcher from cfg.
func New(cfg Config) *Fetcher {
	perMinute := cfg.RateLimitPerDomainPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	interval := time.Duration(60.0/float64(perMinute)*1000) * time.Millisecond

	return &Fetcher{
		limiter:          ratelimit.NewHostLimiter(interval),
		timeout:          cfg.Timeout,
		retryAttempts:    cfg.RetryAttempts,
		retryBackoffBase: cfg.RetryBackoffBase,
		userAgent:        cfg.UserAgent,
	}
}

// Fetch retrieves rawURL, retrying transient failures up to the
// configured attempt count with exponential backoff, and enforcing the
// per-base-host minimum interval before each attempt (including retries).
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, &CrawlError{Kind: KindInvalidURL, URL: rawURL, Err: err}
	}
	baseHost := parsed.Host

	var lastErr error
	for attempt := 0; attempt <= f.retryAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(f.retryBackoffBase) * math.Pow(2, float64(attempt)))
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		if err := f.limiter.Wait(ctx, baseHost); err != nil {
			return nil, err
		}

		result, fetchErr := f.fetchOnce(ctx, rawURL)
		if fetchErr == nil {
			return result, nil
		}

		var ce *CrawlError
		if errors.As(fetchErr, &ce) && (ce.Kind == KindHTTP4xx || ce.Kind == KindInvalidURL) {
			return nil, fetchErr
		}

		lastErr = fetchErr
		if attempt == f.retryAttempts {
			if errors.As(lastErr, &ce) && ce.Kind == kindHTTP5xxRetryable {
				ce.Kind = KindHTTP5xxExhausted
			}
			return nil, lastErr
		}
	}

	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*Result, error) {
	c := colly.NewCollector()
	c.UserAgent = f.userAgent
	if f.timeout > 0 {
		c.SetRequestTimeout(f.timeout)
	}

	var (
		result   *Result
		fetchErr error
	)

	c.OnResponse(func(r *colly.Response) {
		status := r.StatusCode
		finalURL := rawURL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}

		switch {
		case status >= 200 && status < 300:
			result = &Result{
				FinalURL:  finalURL,
				Status:    status,
				Body:      string(r.Body),
				FetchedAt: time.Now(),
			}
		case status >= 400 && status < 500:
			fetchErr = &CrawlError{Kind: KindHTTP4xx, URL: rawURL}
		case status >= 500:
			fetchErr = &CrawlError{Kind: kindHTTP5xxRetryable, URL: rawURL}
		default:
			fetchErr = &CrawlError{Kind: KindNetwork, URL: rawURL, Err: fmt.Errorf("unexpected status %d", status)}
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if ctx.Err() != nil {
			fetchErr = &CrawlError{Kind: KindTimeout, URL: rawURL, Err: ctx.Err()}
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			fetchErr = &CrawlError{Kind: KindTimeout, URL: rawURL, Err: err}
			return
		}
		if r != nil && r.StatusCode >= 500 {
			fetchErr = &CrawlError{Kind: kindHTTP5xxRetryable, URL: rawURL, Err: err}
			return
		}
		if r != nil && r.StatusCode >= 400 && r.StatusCode < 500 {
			fetchErr = &CrawlError{Kind: KindHTTP4xx, URL: rawURL, Err: err}
			return
		}
		fetchErr = &CrawlError{Kind: KindNetwork, URL: rawURL, Err: err}
	})

	if err := c.Request("GET", rawURL, nil, nil, nil); err != nil {
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, &CrawlError{Kind: KindNetwork, URL: rawURL, Err: err}
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if result == nil {
		return nil, &CrawlError{Kind: KindNetwork, URL: rawURL, Err: errors.New("no response received")}
	}
	return result, nil
}
