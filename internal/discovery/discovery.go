// Package discovery crawls a website's seed URLs to find candidate
// product pages, scoring each candidate's likelihood of being a real
// product detail page without fetching it a second time.
package discovery

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/gocolly/colly/v2"

	"github.com/obsrv/monitor/internal/constants"
	"github.com/obsrv/monitor/internal/productid"
	"github.com/obsrv/monitor/internal/urlnorm"
)

// Candidate is one discovered product-page URL with its relevance score.
type Candidate struct {
	URL            string
	RelevanceScore float64
	ExtractedID    string
	ExtractMethod  productid.Method
}

// Engine discovers product candidates by following links from a
// website's seed pages.
type Engine struct {
	logger *slog.Logger
}

// New builds a discovery Engine.
func New(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

var productPathRegexps = compileAll(constants.ProductPathSignals)
var nonProductPathRegexps = compileAll(constants.NonProductPathSignals)
var strongSignalRegexp = regexp.MustCompile(`/product/|/p/|/dp/|/item/`)

func compileAll(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Discover fetches each of seedURLs and collects the same-base-domain
// links found on those pages whose path matches a product-path signal
// (or whose id the Extractor can resolve) and no non-product signal. The
// linked pages themselves are not fetched. It returns up to maxProducts
// candidates sorted by descending relevance score.
func (e *Engine) Discover(ctx context.Context, baseURL string, seedURLs []string, maxProducts int) ([]Candidate, error) {
	if len(seedURLs) == 0 {
		return nil, nil
	}

	baseDomain := urlnorm.ExtractBaseDomain(baseURL)

	var mu sync.Mutex
	seen := make(map[string]bool)
	var candidates []Candidate

	c := colly.NewCollector(colly.MaxDepth(2), colly.Async(true))
	c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 2})

	c.OnHTML("a[href]", func(el *colly.HTMLElement) {
		select {
		case <-ctx.Done():
			return
		default:
		}

		href := el.Attr("href")
		if href == "" {
			return
		}
		absoluteURL := el.Request.AbsoluteURL(href)
		if absoluteURL == "" {
			return
		}
		if urlnorm.ExtractBaseDomain(absoluteURL) != baseDomain {
			return
		}

		dedupKey := urlnorm.CleanForComparison(absoluteURL)

		mu.Lock()
		defer mu.Unlock()
		if seen[dedupKey] {
			return
		}

		candidate, ok := classify(absoluteURL)
		if !ok {
			return
		}
		seen[dedupKey] = true
		candidates = append(candidates, candidate)
	})

	c.OnError(func(r *colly.Response, err error) {
		e.logger.Debug("discovery fetch error", "url", r.Request.URL.String(), "error", err)
	})

	for _, seed := range seedURLs {
		if err := c.Visit(seed); err != nil {
			e.logger.Debug("discovery failed to visit seed", "url", seed, "error", err)
		}
	}
	c.Wait()

	sortByRelevanceDescending(candidates)
	if maxProducts > 0 && len(candidates) > maxProducts {
		candidates = candidates[:maxProducts]
	}
	return candidates, nil
}

func classify(rawURL string) (Candidate, bool) {
	path := pathOf(rawURL)

	matchesProductPath := matchesAny(productPathRegexps, path)
	matchesNonProductPath := matchesAny(nonProductPathRegexps, path)

	id, method := productid.Extract(rawURL, "")
	hasID := id != ""

	if matchesNonProductPath {
		return Candidate{}, false
	}
	if !matchesProductPath && !hasID {
		return Candidate{}, false
	}

	return Candidate{
		URL:            rawURL,
		RelevanceScore: score(path, method),
		ExtractedID:    id,
		ExtractMethod:  method,
	}, true
}

func score(path string, method productid.Method) float64 {
	s := 0.5

	segments := nonEmptySegments(path)
	switch {
	case len(segments) <= 3:
		s += 0.2 + 0.1
	case len(segments) <= 5:
		s += 0.1
	}

	if strongSignalRegexp.MatchString(path) {
		s += 0.2
	}

	if method == productid.MethodAmazon || method == productid.MethodShopify {
		s += 0.1
	}

	if s > 1.0 {
		s = 1.0
	}
	if s < 0.0 {
		s = 0.0
	}
	return s
}

func pathOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return parsed.Path
}

func nonEmptySegments(path string) []string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func sortByRelevanceDescending(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RelevanceScore > candidates[j].RelevanceScore
	})
}
