// Package catalog maps an IMDB id plus title/year onto an item of the
// upstream catalog site.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"stremio-sos-go/pkg/httpclient"
	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/types"
)

// Reasons recorded with a not-found result.
const (
	ReasonNoResults = "no_results"
	ReasonNoMatch   = "no_match"
)

// maxBodySize caps the search response we are willing to read.
const maxBodySize = 4 << 20

// Query is what the caller knows about the title.
type Query struct {
	ExternalID string
	Title      string
	Year       int
}

// Result of a lookup. Match is nil when nothing matched; Reason then says why.
type Result struct {
	Match      *types.UpstreamMatch
	Reason     string
	Candidates int
	// MatchedBy is "external_id" or "title_year" for a hit.
	MatchedBy string
}

// Found reports whether the lookup produced a match.
func (r Result) Found() bool {
	return r.Match != nil
}

// Matcher queries the catalog search endpoint and disambiguates results.
type Matcher struct {
	client *httpclient.Client
	host   string
	log    *logging.Logger
}

// NewMatcher creates a matcher for the catalog at host.
func NewMatcher(client *httpclient.Client, host string, log *logging.Logger) *Matcher {
	return &Matcher{
		client: client,
		host:   host,
		log:    log.WithComponent("catalog"),
	}
}

// Match searches for q.Title and picks the first row matching by external id,
// or by title and year when the year is known. A missing title is a caller
// error. "No match" is a Result, not an error; only transport and decoding
// failures return errors.
func (m *Matcher) Match(ctx context.Context, q Query) (Result, error) {
	if q.Title == "" {
		return Result{}, types.ErrMissingTitle
	}

	start := time.Now()
	rows, err := m.search(ctx, q.Title)
	if err != nil {
		return Result{}, err
	}

	result := pick(rows, q)
	log := m.log.WithElapsed(start).With("title", q.Title, "year", q.Year, "external_id", q.ExternalID, "candidates", result.Candidates)
	if result.Found() {
		log.Debug("catalog match", "upstream_id", result.Match.UpstreamID, "matched_by", result.MatchedBy)
	} else {
		log.Debug("catalog miss", "reason", result.Reason)
	}
	return result, nil
}

func (m *Matcher) search(ctx context.Context, title string) ([]row, error) {
	searchURL := m.host + "/search?q=" + url.QueryEscape(title)

	resp, err := m.client.Get(ctx, searchURL, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("catalog search returned status %d: %w", resp.StatusCode, types.ErrUpstream)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("catalog search: read body: %w", err)
	}

	rows, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrUpstream, err)
	}
	return rows, nil
}

// pick applies the precedence rules to decoded rows.
func pick(rows []row, q Query) Result {
	if len(rows) == 0 {
		return Result{Reason: ReasonNoResults}
	}

	candidates := make([]candidate, 0, len(rows))
	for _, r := range rows {
		c := normalizeRow(r)
		if c.match.UpstreamID == "" {
			continue
		}
		candidates = append(candidates, c)
	}

	result := Result{Candidates: len(candidates)}

	// 1. external id
	if want := NormalizeExternalID(q.ExternalID); want != "" {
		for i := range candidates {
			if NormalizeExternalID(candidates[i].match.ExternalID) == want {
				return hit(result, candidates[i], "external_id")
			}
		}
	}

	// 2. title + year
	if q.Year > 0 {
		want := NormalizeTitle(q.Title)
		for i := range candidates {
			c := candidates[i]
			if c.match.Year != q.Year {
				continue
			}
			for _, t := range c.titles {
				if NormalizeTitle(t) == want {
					return hit(result, c, "title_year")
				}
			}
		}
	}

	result.Reason = ReasonNoMatch
	return result
}

func hit(r Result, c candidate, by string) Result {
	m := c.match
	if m.ExternalTitle == "" && len(c.titles) > 0 {
		m.ExternalTitle = c.titles[0]
	}
	r.Match = &m
	r.MatchedBy = by
	return r
}
