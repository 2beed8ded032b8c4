package extractors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"stremio-sos-go/pkg/httpclient"
	"stremio-sos-go/pkg/interfaces"
	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/signer"
	"stremio-sos-go/pkg/types"
)

// authorizePaths are the nesting paths the video-link API has used for the token.
var authorizePaths = [][]string{
	{"authorize"},
	{"data", "authorize"},
	{"result", "authorize"},
	{"data", "link", "authorize"},
	{"video", "authorize"},
}

// APIExtractorName is the registry name of the credentialed API strategy.
const APIExtractorName = "api"

// APIExtractor asks the credentialed JSON API for a quality-specific token.
// Premium accounts get a different token per quality tier.
type APIExtractor struct {
	*BaseExtractor
	host  string
	creds signer.Credentials
}

// NewAPIExtractor returns nil when credentials are not configured; callers
// must check before registering it.
func NewAPIExtractor(client *httpclient.Client, host string, creds signer.Credentials, log *logging.Logger) *APIExtractor {
	if !creds.Configured() {
		return nil
	}
	return &APIExtractor{
		BaseExtractor: NewBaseExtractor(client, log.WithComponent("api-extractor")),
		host:          strings.TrimRight(host, "/"),
		creds:         creds,
	}
}

// Name returns the extractor name.
func (e *APIExtractor) Name() string {
	return APIExtractorName
}

// Scope returns the extractor scope.
func (e *APIExtractor) Scope() types.TokenScope {
	return types.ScopeQuality
}

// Extract calls json_api.php?action=video-link for req.Quality.
func (e *APIExtractor) Extract(ctx context.Context, req *types.TokenRequest) (string, error) {
	if req.PageURL == "" || req.Quality == "" {
		return "", nil
	}

	apiURL := e.endpoint(req.PageURL, req.Quality)
	body, err := e.fetch(ctx, apiURL, refererFor(req.PageURL))
	if err != nil {
		return "", fmt.Errorf("video-link api: %w", err)
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("video-link api: invalid json: %w", err)
	}

	token := FindAuthorize(doc)
	if token == "" {
		e.log.Debug("no token in api response", "quality", req.Quality)
	}
	return token, nil
}

func (e *APIExtractor) endpoint(pageURL string, quality types.Quality) string {
	q := url.Values{}
	q.Set("action", "video-link")
	q.Set("URL", pageURL+"?streamuj="+string(quality))
	if e.creds.UID != "" {
		q.Set("UID", e.creds.UID)
	}
	return signer.Sign(e.host+"/json_api.php?"+q.Encode(), e.creds)
}

// FindAuthorize looks for the token in a decoded JSON document: first at the
// known paths, then under any "authorize" key, then inside any string value.
func FindAuthorize(doc any) string {
	for _, path := range authorizePaths {
		if s, ok := lookup(doc, path).(string); ok && IsToken(s) {
			return s
		}
	}
	if s := findKey(doc, "authorize"); s != "" {
		return s
	}
	return findInStrings(doc)
}

func lookup(doc any, path []string) any {
	cur := doc
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func findKey(doc any, key string) string {
	switch v := doc.(type) {
	case map[string]any:
		for k, child := range v {
			if strings.EqualFold(k, key) {
				if s, ok := child.(string); ok && IsToken(s) {
					return s
				}
			}
		}
		for _, child := range v {
			if s := findKey(child, key); s != "" {
				return s
			}
		}
	case []any:
		for _, child := range v {
			if s := findKey(child, key); s != "" {
				return s
			}
		}
	}
	return ""
}

func findInStrings(doc any) string {
	switch v := doc.(type) {
	case string:
		return MatchToken(v)
	case map[string]any:
		for _, child := range v {
			if s := findInStrings(child); s != "" {
				return s
			}
		}
	case []any:
		for _, child := range v {
			if s := findInStrings(child); s != "" {
				return s
			}
		}
	}
	return ""
}

var _ interfaces.TokenExtractor = (*APIExtractor)(nil)
