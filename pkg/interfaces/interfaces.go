// Package interfaces defines the core abstractions of the stream resolver.
// Token extractors implement these interfaces, which keeps the fragile
// scraping strategies swappable without touching the resolver.
package interfaces

import (
	"context"

	"stremio-sos-go/pkg/types"
)

// TokenExtractor recovers an authorize token from a detail page or a
// quality-specific endpoint.
//
// To add a new strategy:
// 1. Create a new file in pkg/extractors/
// 2. Implement this interface
// 3. Register it in the ExtractorRegistry (see internal/app)
type TokenExtractor interface {
	// Name returns a unique identifier for this extractor.
	Name() string

	// Scope says whether the extractor looks at the page or at one quality tier.
	Scope() types.TokenScope

	// Extract returns the token, or "" when there is none. Errors are
	// reserved for transport/parse failures.
	Extract(ctx context.Context, req *types.TokenRequest) (string, error)

	// Close releases any resources held by the extractor.
	Close() error
}
