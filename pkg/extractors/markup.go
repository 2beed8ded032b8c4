package extractors

import (
	"context"
	"html"

	"stremio-sos-go/pkg/interfaces"
	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/types"
)

// MarkupExtractor searches the raw page markup for the token.
type MarkupExtractor struct {
	*BaseExtractor
}

// NewMarkupExtractor creates a new raw markup extractor.
func NewMarkupExtractor(log *logging.Logger) *MarkupExtractor {
	return &MarkupExtractor{
		BaseExtractor: NewBaseExtractor(nil, log.WithComponent("markup-extractor")),
	}
}

// Name returns the extractor name.
func (e *MarkupExtractor) Name() string {
	return "markup"
}

// Scope returns the extractor scope.
func (e *MarkupExtractor) Scope() types.TokenScope {
	return types.ScopePage
}

// Extract looks for authorize=... or an authorize assignment in inline script.
func (e *MarkupExtractor) Extract(ctx context.Context, req *types.TokenRequest) (string, error) {
	if req.HTML == "" {
		return "", nil
	}

	if token := MatchToken(req.HTML); token != "" {
		return token, nil
	}

	// &#61; and friends hide the '=' from the raw search
	if unescaped := html.UnescapeString(req.HTML); unescaped != req.HTML {
		return MatchToken(unescaped), nil
	}
	return "", nil
}

var _ interfaces.TokenExtractor = (*MarkupExtractor)(nil)
