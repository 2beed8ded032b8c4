// Package urlutil provides small URL helpers shared by the scraping code.
package urlutil

import (
	"net/url"
	"strings"
)

// ResolveURL resolves a potentially relative URL against a page URL.
// String manipulation keeps the original encoding intact; scraped links
// often carry characters url.ResolveReference would re-encode.
func ResolveURL(urlStr string, baseURL string) string {
	urlStr = strings.TrimSpace(urlStr)
	if strings.HasPrefix(urlStr, "http://") || strings.HasPrefix(urlStr, "https://") {
		return urlStr
	}

	if strings.HasPrefix(urlStr, "//") {
		scheme := "https"
		if parsed, err := url.Parse(baseURL); err == nil && parsed.Scheme != "" {
			scheme = parsed.Scheme
		}
		return scheme + ":" + urlStr
	}

	if strings.HasPrefix(urlStr, "/") {
		return GetSchemeHost(baseURL) + urlStr
	}

	// Relative path: append to the base directory
	base := baseURL
	if idx := strings.IndexAny(base, "?#"); idx > 0 {
		base = base[:idx]
	}
	if lastSlash := strings.LastIndex(base, "/"); lastSlash > 0 {
		base = base[:lastSlash+1]
	}
	return base + urlStr
}

// GetSchemeHost extracts scheme://host from a URL.
func GetSchemeHost(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// SamePage reports whether candidate still points at page: same host and a
// path equal to (or nested under) the page path. Query strings are ignored.
func SamePage(candidate, page string) bool {
	c, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	p, err := url.Parse(page)
	if err != nil {
		return false
	}
	if !strings.EqualFold(c.Hostname(), p.Hostname()) {
		return false
	}
	cp := strings.TrimRight(c.Path, "/")
	pp := strings.TrimRight(p.Path, "/")
	return cp == pp || strings.HasPrefix(cp, pp+"/")
}
