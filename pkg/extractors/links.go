package extractors

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"stremio-sos-go/pkg/interfaces"
	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/types"
	"stremio-sos-go/pkg/urlutil"
)

// linkAttributes are the attributes that may hold a sub-resource URL.
var linkAttributes = []string{"href", "src", "data-src", "data-url"}

// LinkExtractor parses the page and searches every link and script source.
// The token sometimes only shows up inside an embedded player or script URL.
type LinkExtractor struct {
	*BaseExtractor
}

// NewLinkExtractor creates a new DOM link extractor.
func NewLinkExtractor(log *logging.Logger) *LinkExtractor {
	return &LinkExtractor{
		BaseExtractor: NewBaseExtractor(nil, log.WithComponent("link-extractor")),
	}
}

// Name returns the extractor name.
func (e *LinkExtractor) Name() string {
	return "links"
}

// Scope returns the extractor scope.
func (e *LinkExtractor) Scope() types.TokenScope {
	return types.ScopePage
}

// Extract walks a[href], script[src], iframe[src], source[src] and friends.
func (e *LinkExtractor) Extract(ctx context.Context, req *types.TokenRequest) (string, error) {
	if req.HTML == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(req.HTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var token string
	doc.Find("[href], [src], [data-src], [data-url]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		for _, attr := range linkAttributes {
			value, ok := s.Attr(attr)
			if !ok || value == "" {
				continue
			}
			if t := MatchToken(value); t != "" {
				token = t
				e.log.Debug("token found in link", "tag", goquery.NodeName(s), "url", urlutil.ResolveURL(value, req.PageURL))
				return false
			}
		}
		return true
	})

	return token, nil
}

var _ interfaces.TokenExtractor = (*LinkExtractor)(nil)
