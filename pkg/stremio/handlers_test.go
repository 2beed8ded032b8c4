package stremio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stremio-sos-go/pkg/appctx"
	"stremio-sos-go/pkg/cache"
	"stremio-sos-go/pkg/catalog"
	"stremio-sos-go/pkg/config"
	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/metrics"
	"stremio-sos-go/pkg/resolver"
	"stremio-sos-go/pkg/services"
	"stremio-sos-go/pkg/types"
)

type stubMeta struct {
	calls atomic.Int32
	block chan struct{}
	err   error
}

func (s *stubMeta) Lookup(ctx context.Context, mediaType, imdbID string) (*types.MovieMeta, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	return &types.MovieMeta{IMDbID: imdbID, Name: "Pelíšky", Year: 1999}, nil
}

type stubMatcher struct {
	err error
}

func (s *stubMatcher) Match(ctx context.Context, q catalog.Query) (catalog.Result, error) {
	if s.err != nil {
		return catalog.Result{}, s.err
	}
	return catalog.Result{Match: &types.UpstreamMatch{ExternalTitle: q.Title, UpstreamID: "pel", Year: q.Year}}, nil
}

type stubResolver struct {
	err error
}

func (s *stubResolver) Resolve(ctx context.Context, req resolver.Request) ([]types.ResolvedStream, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []types.ResolvedStream{{
		URL:     "https://cdn.example/pel.mp4",
		Quality: types.QualityOriginal,
		Headers: map[string]string{"Referer": "https://www.streamuj.tv/", "User-Agent": "UA"},
	}}, nil
}

func newTestServer(t *testing.T, meta *stubMeta, matcher *stubMatcher, res *stubResolver, hardTimeout time.Duration) *httptest.Server {
	t.Helper()
	log := logging.Discard()
	cfg := &config.Config{Port: 7000}
	lookups := cache.New(cache.Options{PositiveTTL: time.Hour, NegativeTTL: time.Hour}, log)
	m := metrics.New()

	actx := appctx.New(cfg, log).
		WithCache(lookups).
		WithMetrics(m).
		WithStreamService(services.NewStreamService(lookups, meta, matcher, res, m, hardTimeout, log))

	mux := http.NewServeMux()
	NewHandlers(actx).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getStreams(t *testing.T, url string) (int, StreamsResponse, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))

	var body StreamsResponse
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, body, string(raw)
}

func TestManifest(t *testing.T) {
	srv := newTestServer(t, &stubMeta{}, &stubMatcher{}, &stubResolver{}, time.Second)

	resp, err := http.Get(srv.URL + "/manifest.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var m AddonManifest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	assert.Equal(t, "org.stremio.sos", m.ID)
	assert.Equal(t, []string{"stream"}, m.Resources)
	assert.Equal(t, []string{"tt"}, m.IDPrefixes)
}

func TestStream_Resolved(t *testing.T) {
	srv := newTestServer(t, &stubMeta{}, &stubMatcher{}, &stubResolver{}, time.Second)

	status, body, _ := getStreams(t, srv.URL+"/stream/movie/tt0120735.json")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body.Streams, 1)

	s := body.Streams[0]
	assert.Equal(t, "https://cdn.example/pel.mp4", s.URL)
	assert.Equal(t, "SOS\nORIGINAL", s.Name)
	assert.Equal(t, "Pelíšky\nORIGINAL", s.Title)
	require.NotNil(t, s.BehaviorHints)
	assert.True(t, s.BehaviorHints.NotWebReady)
	require.NotNil(t, s.BehaviorHints.ProxyHeaders)
	assert.Equal(t, "https://www.streamuj.tv/", s.BehaviorHints.ProxyHeaders.Request["Referer"])
}

func TestStream_AlwaysOKWhenEverythingFails(t *testing.T) {
	srv := newTestServer(t,
		&stubMeta{err: types.ErrUpstream},
		&stubMatcher{err: types.ErrUpstream},
		&stubResolver{err: types.ErrUpstream},
		time.Second)

	status, body, raw := getStreams(t, srv.URL+"/stream/movie/tt0120735.json")
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, body.Streams)
	assert.JSONEq(t, `{"streams":[]}`, raw)
}

func TestStream_HangingUpstreamHitsDeadline(t *testing.T) {
	meta := &stubMeta{block: make(chan struct{})}
	t.Cleanup(func() { close(meta.block) })

	hardTimeout := 150 * time.Millisecond
	srv := newTestServer(t, meta, &stubMatcher{}, &stubResolver{}, hardTimeout)

	start := time.Now()
	status, _, raw := getStreams(t, srv.URL+"/stream/movie/tt0120735.json")
	elapsed := time.Since(start)

	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"streams":[]}`, raw)
	assert.Less(t, elapsed, hardTimeout+time.Second)
}

func TestStream_SeriesEpisodePassthrough(t *testing.T) {
	meta := &stubMeta{}
	srv := newTestServer(t, meta, &stubMatcher{}, &stubResolver{}, time.Second)

	status, _, raw := getStreams(t, srv.URL+"/stream/series/tt0944947:1:2.json")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"streams":[]}`, raw)
	assert.Zero(t, meta.calls.Load())
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubMeta{}, &stubMatcher{}, &stubResolver{}, time.Second)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["cache_entries"])
	assert.Equal(t, false, body["credentials"])
	assert.Equal(t, true, body["metrics"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubMeta{}, &stubMatcher{}, &stubResolver{}, time.Second)
	getStreams(t, srv.URL+"/stream/series/tt0944947:1:2.json")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHome(t *testing.T) {
	srv := newTestServer(t, &stubMeta{}, &stubMatcher{}, &stubResolver{}, time.Second)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestHome_UsesConfiguredBaseURL(t *testing.T) {
	cfg := &config.Config{Port: 7000, BaseURL: "https://sos.example.org"}
	mux := http.NewServeMux()
	NewHandlers(appctx.New(cfg, logging.Discard())).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://10.0.0.5:7000/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "https://sos.example.org/manifest.json")
	assert.Contains(t, body, "stremio://sos.example.org/manifest.json")
	assert.NotContains(t, body, "10.0.0.5")
}

func TestHome_DerivesURLFromRequest(t *testing.T) {
	mux := http.NewServeMux()
	NewHandlers(appctx.New(&config.Config{Port: 7000}, logging.Discard())).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://10.0.0.5:7000/", nil))

	assert.Contains(t, rec.Body.String(), "http://10.0.0.5:7000/manifest.json")
}
