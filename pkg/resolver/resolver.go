// Package resolver turns a catalog item into a directly playable URL: it
// loads the item's detail page, recovers the authorize token, signs the
// intermediate playback URL and follows its redirects to the CDN.
package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stremio-sos-go/pkg/flaresolverr"
	"stremio-sos-go/pkg/httpclient"
	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/registry"
	"stremio-sos-go/pkg/signer"
	"stremio-sos-go/pkg/types"
	"stremio-sos-go/pkg/urlutil"
)

const maxPageSize = 4 << 20

// Request identifies the item to resolve.
type Request struct {
	UpstreamID string
	// PreferredQuality is the label the catalog advertised; tried last when
	// it is not one of the standard tiers.
	PreferredQuality types.Quality
}

// Options configure a Resolver.
type Options struct {
	Host        string
	Credentials signer.Credentials
	// Solver is used for the detail page when the site answers 403/503. Optional.
	Solver *flaresolverr.Client
}

// Resolver resolves upstream items to playable streams.
type Resolver struct {
	client     *httpclient.Client
	extractors *registry.ExtractorRegistry
	host       string
	creds      signer.Credentials
	solver     *flaresolverr.Client
	log        *logging.Logger
}

// New creates a resolver.
func New(client *httpclient.Client, extractors *registry.ExtractorRegistry, opts Options, log *logging.Logger) *Resolver {
	return &Resolver{
		client:     client,
		extractors: extractors,
		host:       strings.TrimRight(opts.Host, "/"),
		creds:      opts.Credentials,
		solver:     opts.Solver,
		log:        log.WithComponent("resolver"),
	}
}

// Resolve fetches the detail page and tries each quality tier in order until
// one resolves. A failing detail page is an error; a page without a token
// (and no per-quality API) is an empty result.
func (r *Resolver) Resolve(ctx context.Context, req Request) ([]types.ResolvedStream, error) {
	if req.UpstreamID == "" {
		return nil, fmt.Errorf("upstream id is required")
	}

	pageURL := r.host + "/video/" + url.PathEscape(req.UpstreamID)
	log := r.log.With("upstream_id", req.UpstreamID)

	start := time.Now()
	html, landedURL, err := r.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	log.WithElapsed(start).Debug("detail page fetched", "bytes", len(html), "url", landedURL)

	pageToken := r.pageToken(ctx, pageURL, html)
	hasQualityAPI := r.extractors.HasScope(types.ScopeQuality)
	if pageToken.Value == "" && !hasQualityAPI {
		log.Warn("no playback access", "error", types.ErrNoToken)
		return nil, nil
	}
	if pageToken.Value != "" {
		log.Debug("page token found", "source", pageToken.Source)
	}

	var streams []types.ResolvedStream
	for _, quality := range QualityOrder(req.PreferredQuality) {
		token := pageToken.Value
		if hasQualityAPI {
			if t := r.qualityToken(ctx, pageURL, quality); t != "" {
				token = t
			}
		}
		if token == "" {
			log.Debug("no token for quality", "quality", quality)
			continue
		}

		attempt := time.Now()
		signed := signer.Sign(IntermediateURL(pageURL, quality, token, r.creds.UID), r.creds)
		final, err := r.follow(ctx, signed, pageURL, landedURL)
		if err != nil {
			log.WithElapsed(attempt).Debug("quality attempt failed", "quality", quality, "error", err)
			continue
		}

		log.WithElapsed(attempt).Info("stream resolved", "quality", quality)
		streams = append(streams, types.ResolvedStream{
			URL:     final,
			Quality: quality,
			Headers: r.playbackHeaders(pageURL),
		})
		// the first accepted quality wins
		break
	}

	return dedupe(streams), nil
}

// QualityOrder returns original, hd, sd and then preferred when it is not
// one of those.
func QualityOrder(preferred types.Quality) []types.Quality {
	order := make([]types.Quality, 0, len(types.StandardQualities)+1)
	order = append(order, types.StandardQualities...)
	if preferred != "" && !preferred.IsStandard() {
		order = append(order, preferred)
	}
	return order
}

// IntermediateURL builds {page}?streamuj={q}&authorize={token}[&UID={uid}].
func IntermediateURL(pageURL string, quality types.Quality, token, uid string) string {
	q := url.Values{}
	q.Set("streamuj", string(quality))
	q.Set("authorize", token)
	if uid != "" {
		q.Set("UID", uid)
	}
	return pageURL + "?" + q.Encode()
}

// fetchPage returns the detail page markup and the URL it was served from
// after redirects.
func (r *Resolver) fetchPage(ctx context.Context, pageURL string) (string, string, error) {
	resp, err := r.client.Get(ctx, pageURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("detail page: %w: %w", types.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable) && r.solver.IsConfigured() {
		r.log.Debug("detail page challenged, retrying via FlareSolverr", "status", resp.StatusCode)
		page, err := r.solver.FetchPage(ctx, pageURL)
		if err != nil {
			return "", "", fmt.Errorf("detail page: %w: %w", types.ErrUpstream, err)
		}
		landed := page.URL
		if landed == "" {
			landed = pageURL
		}
		return page.HTML, landed, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", fmt.Errorf("detail page returned status %d: %w", resp.StatusCode, types.ErrUpstream)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", "", fmt.Errorf("detail page: read body: %w: %w", types.ErrUpstream, err)
	}

	landed := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		landed = resp.Request.URL.String()
	}
	return string(body), landed, nil
}

// pageToken runs the page-scope extractors in order. Extractor errors are
// logged and treated as not found.
func (r *Resolver) pageToken(ctx context.Context, pageURL, html string) types.Token {
	req := &types.TokenRequest{PageURL: pageURL, HTML: html}
	for _, e := range r.extractors.ForScope(types.ScopePage) {
		token, err := e.Extract(ctx, req)
		if err != nil {
			r.log.Warn("token extractor failed", "extractor", e.Name(), "error", err)
			continue
		}
		if token != "" {
			return types.Token{Value: token, Source: e.Name()}
		}
	}
	return types.Token{}
}

func (r *Resolver) qualityToken(ctx context.Context, pageURL string, quality types.Quality) string {
	req := &types.TokenRequest{PageURL: pageURL, Quality: quality}
	for _, e := range r.extractors.ForScope(types.ScopeQuality) {
		token, err := e.Extract(ctx, req)
		if err != nil {
			r.log.Warn("token extractor failed", "extractor", e.Name(), "quality", quality, "error", err)
			continue
		}
		if token != "" {
			return token
		}
	}
	return ""
}

// follow resolves signedURL to its final location: HEAD first, ranged GET
// when HEAD fails. The result must have left the detail page, both under the
// requested path and the one the site redirected it to.
func (r *Resolver) follow(ctx context.Context, signedURL, pageURL, landedURL string) (string, error) {
	headers := map[string]string{"Referer": refererOf(pageURL)}

	final, err := r.landingURL(ctx, http.MethodHead, signedURL, headers)
	if err != nil {
		rangeHeaders := map[string]string{"Referer": headers["Referer"], "Range": "bytes=0-0"}
		final, err = r.landingURL(ctx, http.MethodGet, signedURL, rangeHeaders)
		if err != nil {
			return "", err
		}
	}

	if final == "" {
		return "", fmt.Errorf("empty final url")
	}
	if urlutil.SamePage(final, pageURL) || urlutil.SamePage(final, landedURL) {
		return "", fmt.Errorf("redirect chain stayed on the detail page")
	}
	return final, nil
}

// landingURL sends one request and returns the URL its redirect chain ended on.
func (r *Resolver) landingURL(ctx context.Context, method, target string, headers map[string]string) (string, error) {
	resp, err := r.client.Request(ctx, method, target, headers)
	if err != nil {
		return "", fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}
	if resp.Request == nil || resp.Request.URL == nil {
		return "", nil
	}
	return resp.Request.URL.String(), nil
}

func (r *Resolver) playbackHeaders(pageURL string) map[string]string {
	return map[string]string{
		"Referer":    refererOf(pageURL),
		"User-Agent": httpclient.UserAgent,
	}
}

func refererOf(pageURL string) string {
	if origin := urlutil.GetSchemeHost(pageURL); origin != "" {
		return origin + "/"
	}
	return pageURL
}

func dedupe(streams []types.ResolvedStream) []types.ResolvedStream {
	if len(streams) < 2 {
		return streams
	}
	seen := make(map[string]bool, len(streams))
	out := streams[:0]
	for _, s := range streams {
		if seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		out = append(out, s)
	}
	return out
}
