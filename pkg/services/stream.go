package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"stremio-sos-go/pkg/cache"
	"stremio-sos-go/pkg/catalog"
	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/metrics"
	"stremio-sos-go/pkg/resolver"
	"stremio-sos-go/pkg/types"
)

// DefaultHardTimeout bounds a whole stream request.
const DefaultHardTimeout = 18 * time.Second

// Outcome labels a stream request for logs and metrics.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeSeries        Outcome = "series"
	OutcomeInvalidID     Outcome = "invalid_id"
	OutcomeNegativeCache Outcome = "negative_cache"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeNoStreams     Outcome = "no_streams"
	OutcomeUpstreamError Outcome = "upstream_error"
	OutcomeDeadline      Outcome = "deadline"
	OutcomeCanceled      Outcome = "canceled"
	OutcomeInternalError Outcome = "internal_error"
)

var imdbIDRe = regexp.MustCompile(`^tt\d+$`)

// MetadataProvider resolves an IMDB id to a canonical title and year.
type MetadataProvider interface {
	Lookup(ctx context.Context, mediaType, imdbID string) (*types.MovieMeta, error)
}

// CatalogMatcher maps a title onto the upstream catalog.
type CatalogMatcher interface {
	Match(ctx context.Context, q catalog.Query) (catalog.Result, error)
}

// StreamResolver turns an upstream item into playable streams.
type StreamResolver interface {
	Resolve(ctx context.Context, req resolver.Request) ([]types.ResolvedStream, error)
}

// StreamResult is the answer to one stream request. Streams may be empty.
type StreamResult struct {
	Streams []types.ResolvedStream
	Outcome Outcome
	// Title is the display title of the matched item, when known.
	Title string
}

// StreamService answers /stream requests: cache, metadata, catalog match and
// redirect resolution under one hard deadline.
type StreamService struct {
	cache       *cache.Cache
	meta        MetadataProvider
	matcher     CatalogMatcher
	resolver    StreamResolver
	metrics     *metrics.Metrics
	hardTimeout time.Duration
	lookups     singleflight.Group
	log         *logging.Logger
}

// NewStreamService creates the orchestrator. m may be nil.
func NewStreamService(
	c *cache.Cache,
	meta MetadataProvider,
	matcher CatalogMatcher,
	res StreamResolver,
	m *metrics.Metrics,
	hardTimeout time.Duration,
	log *logging.Logger,
) *StreamService {
	if hardTimeout <= 0 {
		hardTimeout = DefaultHardTimeout
	}
	return &StreamService{
		cache:       c,
		meta:        meta,
		matcher:     matcher,
		resolver:    res,
		metrics:     m,
		hardTimeout: hardTimeout,
		log:         log.WithComponent("stream-service"),
	}
}

// Streams never fails: every error, panic or timeout becomes an empty result
// with the matching outcome.
func (s *StreamService) Streams(ctx context.Context, mediaType, id string) StreamResult {
	start := time.Now()
	log := logging.FromContextOr(ctx, s.log).With("type", mediaType, "id", id)

	result := s.streams(ctx, log, mediaType, id)

	log.WithElapsed(start).Info("stream request finished", "outcome", result.Outcome, "streams", len(result.Streams))
	s.metrics.ObserveStream(mediaType, string(result.Outcome), time.Since(start))
	return result
}

func (s *StreamService) streams(ctx context.Context, log *logging.Logger, mediaType, id string) StreamResult {
	imdbID, episode := splitID(id)
	if mediaType == "series" && episode {
		return StreamResult{Outcome: OutcomeSeries}
	}
	if (mediaType != "movie" && mediaType != "series") || !imdbIDRe.MatchString(imdbID) {
		return StreamResult{Outcome: OutcomeInvalidID}
	}

	// The pipeline outlives an abandoned request; per-call timeouts bound it.
	pipelineCtx := log.WithContext(context.WithoutCancel(ctx))
	done := make(chan StreamResult, 1)

	go func() {
		finished := s.metrics.PipelineStarted()
		defer finished()
		defer func() {
			if r := recover(); r != nil {
				log.Error("stream pipeline panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
				done <- StreamResult{Outcome: OutcomeInternalError}
			}
		}()
		done <- s.pipeline(pipelineCtx, log, mediaType, imdbID)
	}()

	timer := time.NewTimer(s.hardTimeout)
	defer timer.Stop()

	select {
	case result := <-done:
		return result
	case <-timer.C:
		log.Warn("stream deadline exceeded, answering empty", "hard_timeout", s.hardTimeout)
		return StreamResult{Outcome: OutcomeDeadline}
	case <-ctx.Done():
		return StreamResult{Outcome: OutcomeCanceled}
	}
}

func (s *StreamService) pipeline(ctx context.Context, log *logging.Logger, mediaType, imdbID string) StreamResult {
	key := cache.Key(imdbID)

	var match *types.UpstreamMatch
	entry, ok := s.cache.Get(key)
	switch {
	case ok && entry.Kind == cache.KindNegative:
		s.metrics.CacheLookup("negative")
		log.Debug("negative cache hit", "reason", entry.Reason)
		return StreamResult{Outcome: OutcomeNegativeCache}

	case ok:
		s.metrics.CacheLookup("positive")
		match = &types.UpstreamMatch{
			ExternalTitle: entry.Title,
			ExternalID:    imdbID,
			UpstreamID:    entry.UpstreamID,
			Year:          entry.Year,
			Quality:       entry.Quality,
		}
		log.Debug("positive cache hit", "upstream_id", match.UpstreamID)

	default:
		s.metrics.CacheLookup("miss")
		v, err, shared := s.lookups.Do(key, func() (any, error) {
			return s.lookup(ctx, log, mediaType, imdbID)
		})
		if err != nil {
			log.Warn("catalog lookup failed", "error", err, "shared", shared)
			return StreamResult{Outcome: OutcomeUpstreamError}
		}
		match = v.(*types.UpstreamMatch)
		if match == nil {
			return StreamResult{Outcome: OutcomeNotFound}
		}
	}

	start := time.Now()
	streams, err := s.resolver.Resolve(ctx, resolver.Request{
		UpstreamID:       match.UpstreamID,
		PreferredQuality: match.Quality,
	})
	if err != nil {
		s.metrics.UpstreamError("resolve")
		log.WithElapsed(start).Warn("resolve failed", "upstream_id", match.UpstreamID, "error", err)
		return StreamResult{Outcome: OutcomeUpstreamError, Title: match.ExternalTitle}
	}
	log.WithElapsed(start).Debug("resolve finished", "upstream_id", match.UpstreamID, "streams", len(streams))

	if len(streams) == 0 {
		return StreamResult{Outcome: OutcomeNoStreams, Title: match.ExternalTitle}
	}
	return StreamResult{Streams: streams, Outcome: OutcomeOK, Title: match.ExternalTitle}
}

// lookup fetches metadata and matches the catalog, caching the verdict. A nil
// match means confirmed not found. Transport failures are returned and never
// cached.
func (s *StreamService) lookup(ctx context.Context, log *logging.Logger, mediaType, imdbID string) (*types.UpstreamMatch, error) {
	key := cache.Key(imdbID)

	start := time.Now()
	meta, err := s.meta.Lookup(ctx, mediaType, imdbID)
	if err != nil {
		s.metrics.UpstreamError("metadata")
		return nil, fmt.Errorf("metadata: %w", err)
	}
	log.WithElapsed(start).Debug("metadata resolved", "name", meta.Name, "year", meta.Year)

	start = time.Now()
	res, err := s.matcher.Match(ctx, catalog.Query{
		ExternalID: imdbID,
		Title:      meta.Name,
		Year:       meta.Year,
	})
	if err != nil {
		if !errors.Is(err, types.ErrMissingTitle) {
			s.metrics.UpstreamError("catalog")
		}
		return nil, fmt.Errorf("catalog: %w", err)
	}

	if !res.Found() {
		log.WithElapsed(start).Info("no catalog match", "reason", res.Reason, "candidates", res.Candidates)
		s.cache.SetNegative(key, res.Reason)
		return nil, nil
	}

	m := res.Match
	log.WithElapsed(start).Info("catalog match", "upstream_id", m.UpstreamID, "matched_by", res.MatchedBy)
	s.cache.SetPositive(key, cache.Payload{
		UpstreamID: m.UpstreamID,
		Title:      m.ExternalTitle,
		Year:       m.Year,
		Quality:    m.Quality,
	})
	return m, nil
}

// splitID separates "tt123:1:2" into the IMDB id and whether an
// episode part was present. A trailing ".json" is ignored.
func splitID(id string) (string, bool) {
	id = strings.TrimSuffix(id, ".json")
	imdbID, rest, found := strings.Cut(id, ":")
	return imdbID, found && rest != ""
}
