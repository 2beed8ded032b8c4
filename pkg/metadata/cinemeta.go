// Package metadata looks up canonical titles for IMDB ids on a
// Cinemeta-compatible metadata service.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-freelru"
	"github.com/zeebo/xxh3"

	"stremio-sos-go/pkg/httpclient"
	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/types"
)

const maxBodySize = 1 << 20

var yearRe = regexp.MustCompile(`\b(1[89]\d{2}|2\d{3})\b`)

// Options configure the Cinemeta client.
type Options struct {
	Host      string
	CacheSize int
	CacheTTL  time.Duration
}

// Cinemeta fetches {host}/meta/{type}/{id}.json. Successful lookups are kept
// in a small LRU; failures are not.
type Cinemeta struct {
	client *httpclient.Client
	host   string
	cache  *freelru.SyncedLRU[string, *types.MovieMeta]
	log    *logging.Logger
}

type metaResponse struct {
	Meta *struct {
		ID          string          `json:"id"`
		IMDbID      string          `json:"imdb_id"`
		Name        string          `json:"name"`
		Year        json.RawMessage `json:"year"`
		ReleaseInfo string          `json:"releaseInfo"`
		Released    string          `json:"released"`
	} `json:"meta"`
}

func hashString(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

// New creates a Cinemeta client. A CacheSize of zero disables the LRU.
func New(client *httpclient.Client, opts Options, log *logging.Logger) (*Cinemeta, error) {
	c := &Cinemeta{
		client: client,
		host:   strings.TrimRight(opts.Host, "/"),
		log:    log.WithComponent("metadata"),
	}

	if opts.CacheSize > 0 {
		cache, err := freelru.NewSynced[string, *types.MovieMeta](uint32(opts.CacheSize), hashString)
		if err != nil {
			return nil, fmt.Errorf("failed to create metadata cache: %w", err)
		}
		if opts.CacheTTL > 0 {
			cache.SetLifetime(opts.CacheTTL)
		}
		c.cache = cache
	}
	return c, nil
}

// Lookup returns the title and year for an IMDB id.
func (c *Cinemeta) Lookup(ctx context.Context, mediaType, imdbID string) (*types.MovieMeta, error) {
	key := mediaType + ":" + imdbID
	if c.cache != nil {
		if meta, ok := c.cache.Get(key); ok {
			return meta, nil
		}
	}

	start := time.Now()
	meta, err := c.fetch(ctx, mediaType, imdbID)
	if err != nil {
		return nil, err
	}
	c.log.WithElapsed(start).Debug("metadata fetched", "imdb_id", imdbID, "name", meta.Name, "year", meta.Year)

	if c.cache != nil {
		c.cache.Add(key, meta)
	}
	return meta, nil
}

func (c *Cinemeta) fetch(ctx context.Context, mediaType, imdbID string) (*types.MovieMeta, error) {
	metaURL := fmt.Sprintf("%s/meta/%s/%s.json", c.host, mediaType, imdbID)

	resp, err := c.client.Get(ctx, metaURL, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("metadata: %w: %w", types.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("metadata returned status %d: %w", resp.StatusCode, types.ErrUpstream)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("metadata: read body: %w: %w", types.ErrUpstream, err)
	}

	var decoded metaResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("metadata: %w: %w", types.ErrUpstream, err)
	}
	if decoded.Meta == nil {
		return nil, fmt.Errorf("metadata: no meta for %s: %w", imdbID, types.ErrUpstream)
	}

	m := decoded.Meta
	year := parseYear(m.Year)
	if year == 0 {
		year = firstYear(m.ReleaseInfo)
	}
	if year == 0 {
		year = firstYear(m.Released)
	}

	return &types.MovieMeta{
		IMDbID: imdbID,
		Name:   strings.TrimSpace(m.Name),
		Year:   year,
	}, nil
}

// parseYear accepts 1999, "1999" and "1999-2003".
func parseYear(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return firstYear(s)
	}
	return 0
}

func firstYear(s string) int {
	m := yearRe.FindString(s)
	if m == "" {
		return 0
	}
	n, _ := strconv.Atoi(m)
	return n
}
