// Package urlnorm canonicalizes crawl target URLs for deduplication and
// cross-crawl comparison: stable ordering of query parameters, stripping
// of tracking noise, and base-domain extraction for same-site checks.
package urlnorm

import (
	"net/url"
	"sort"
	"strings"

	"github.com/obsrv/monitor/internal/constants"
)

// Normalize lowercases scheme and host, strips default ports, removes the
// tracking-parameter deny-list, sorts remaining query keys lexicographically,
// and removes the fragment unless keepFragment is set. On parse error it
// returns the input unchanged rather than failing the caller's crawl.
func Normalize(rawURL string, keepFragment bool) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(stripDefaultPort(parsed.Scheme, parsed.Host))

	if !keepFragment {
		parsed.Fragment = ""
	}

	if parsed.RawQuery != "" {
		parsed.RawQuery = cleanQuery(parsed.RawQuery)
	}

	return parsed.String()
}

// CleanForComparison strips all query parameters and the fragment, and
// trims a trailing slash (unless the path is just "/"), for use as a
// dedup key where even a preserved tracking-free query would still be
// considered the same resource.
func CleanForComparison(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(stripDefaultPort(parsed.Scheme, parsed.Host))
	parsed.RawQuery = ""
	parsed.Fragment = ""
	if parsed.Path != "/" {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}

	return parsed.String()
}

// ExtractBaseDomain returns the registrable domain of a URL's host,
// treating a fixed set of two-level public suffixes (co.uk, com.br, ac.uk,
// ac.nz, gov.uk, org.uk) as requiring the last three labels instead of two.
func ExtractBaseDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := stripDefaultPort(parsed.Scheme, strings.ToLower(parsed.Host))
	if host == "" {
		host = strings.ToLower(rawURL)
	}

	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return host
	}

	lastTwo := strings.Join(labels[len(labels)-2:], ".")
	if constants.TwoLevelPublicSuffixes[lastTwo] {
		return strings.Join(labels[len(labels)-3:], ".")
	}
	return lastTwo
}

func stripDefaultPort(scheme, host string) string {
	if !strings.Contains(host, ":") {
		return host
	}
	hostOnly, port, found := strings.Cut(host, ":")
	if !found {
		return host
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		return hostOnly
	}
	return host
}

// cleanQuery removes deny-listed tracking parameters and returns the
// remaining keys sorted lexicographically, re-encoded.
func cleanQuery(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}

	for key := range values {
		if isTrackingParam(key) {
			values.Del(key)
		}
	}
	if len(values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		for j, v := range values[k] {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if constants.TrackingParamNames[lower] {
		return true
	}
	for _, prefix := range constants.TrackingParamPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
