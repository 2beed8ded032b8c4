// Package extractors provides authorize-token extractor implementations.
// Each extractor is one strategy for recovering the token the resolver site
// embeds in its detail pages; they are tried in registration order.
//
// To add a new extractor:
// 1. Create a new file (e.g., myplatform.go)
// 2. Implement the interfaces.TokenExtractor interface
// 3. Register it in the registry (see internal/app)
package extractors

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"stremio-sos-go/pkg/httpclient"
	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/urlutil"
)

// maxPageSize caps how much of an upstream body extractors read.
const maxPageSize = 4 << 20

var (
	// authorizeRe finds the token in query strings (authorize=...), in JS/JSON
	// assignments (authorize: "...", "authorize":"...") and in JSON escaped
	// inside a JS string (\"authorize\":\"...\"). The token ends at any
	// character that is not a letter or digit.
	authorizeRe = regexp.MustCompile(`(?i)\bauthorize\\?["']?\s*[=:]\s*\\?["']?([a-f0-9]{16,64})(?:[^a-z0-9]|$)`)

	hexTokenRe = regexp.MustCompile(`(?i)^[a-f0-9]{16,64}$`)
)

// MatchToken returns the first authorize token in s, or "".
func MatchToken(s string) string {
	if m := authorizeRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	// Sub-resource URLs are sometimes percent-encoded inside other URLs.
	if strings.Contains(s, "%") {
		if decoded, err := url.QueryUnescape(s); err == nil && decoded != s {
			if m := authorizeRe.FindStringSubmatch(decoded); len(m) > 1 {
				return m[1]
			}
		}
	}
	return ""
}

// IsToken reports whether s has the shape of an authorize token.
func IsToken(s string) bool {
	return hexTokenRe.MatchString(s)
}

// BaseExtractor provides common functionality for extractors.
type BaseExtractor struct {
	client *httpclient.Client
	log    *logging.Logger
}

// NewBaseExtractor creates a new base extractor. client may be nil for
// strategies that only look at an already fetched page.
func NewBaseExtractor(client *httpclient.Client, log *logging.Logger) *BaseExtractor {
	return &BaseExtractor{
		client: client,
		log:    log,
	}
}

// Close releases resources.
func (b *BaseExtractor) Close() error {
	return nil
}

// fetch GETs urlStr and returns the body, failing on non-2xx.
func (b *BaseExtractor) fetch(ctx context.Context, urlStr string, headers map[string]string) ([]byte, error) {
	if b.client == nil {
		return nil, fmt.Errorf("extractor has no http client")
	}

	resp, err := b.client.Get(ctx, urlStr, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// refererFor builds the Referer header value for requests against pageURL.
func refererFor(pageURL string) map[string]string {
	origin := urlutil.GetSchemeHost(pageURL)
	if origin == "" {
		return nil
	}
	return map[string]string{"Referer": origin + "/"}
}
