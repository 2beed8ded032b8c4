package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stremio-sos-go/pkg/config"
	"stremio-sos-go/pkg/httpclient"
	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/types"
)

func newTestMatcher(t *testing.T, status int, body string) (*Matcher, *atomic.Value) {
	t.Helper()
	var lastQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		lastQuery.Store(r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	log := logging.Discard()
	client := httpclient.New(&config.Config{}, log)
	return NewMatcher(client, srv.URL, log), &lastQuery
}

func TestMatch_ExternalIDBeatsTitleYear(t *testing.T) {
	m, _ := newTestMatcher(t, http.StatusOK, `[{"id":"tt1"},{"id":"tt2","title":"X","year":2000}]`)

	res, err := m.Match(context.Background(), Query{ExternalID: "tt2", Title: "X", Year: 1999})
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, "tt2", res.Match.UpstreamID)
	assert.Equal(t, "external_id", res.MatchedBy)
}

func TestMatch_ExternalIDNormalization(t *testing.T) {
	body := `{"items":[
		{"_id":"aaa","n":{"cs":"Něco jiného"},"y":1999,"imdb":"tt0000001"},
		{"_id":"mtrx","n":{"cs":"Matrix","en":"The Matrix"},"y":"1999","m":133093,"q":"HD 1080p"}
	]}`
	m, q := newTestMatcher(t, http.StatusOK, body)

	res, err := m.Match(context.Background(), Query{ExternalID: "TT0133093", Title: "The Matrix", Year: 1999})
	require.NoError(t, err)
	require.True(t, res.Found())

	assert.Equal(t, "The Matrix", q.Load())
	assert.Equal(t, "mtrx", res.Match.UpstreamID)
	assert.Equal(t, "Matrix", res.Match.ExternalTitle, "localized cs name is preferred for display")
	assert.Equal(t, 1999, res.Match.Year)
	assert.Equal(t, types.QualityHD, res.Match.Quality)
	assert.Equal(t, 2, res.Candidates)
}

func TestMatch_TitleAndYear(t *testing.T) {
	body := `[
		{"_id":"old","name":"Dune","year":1984},
		{"_id":"new","name":{"cs":"Duna","en":"  Dune  "},"year":2021,"quality":"original"}
	]`
	m, _ := newTestMatcher(t, http.StatusOK, body)

	res, err := m.Match(context.Background(), Query{ExternalID: "tt1160419", Title: "dune", Year: 2021})
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, "new", res.Match.UpstreamID)
	assert.Equal(t, "title_year", res.MatchedBy)
	assert.Equal(t, types.QualityOriginal, res.Match.Quality)
}

func TestMatch_TitleFoldsDiacritics(t *testing.T) {
	m, _ := newTestMatcher(t, http.StatusOK, `[{"_id":"x","n":"Pelíšky","y":1999}]`)

	res, err := m.Match(context.Background(), Query{Title: "Pelisky", Year: 1999})
	require.NoError(t, err)
	assert.True(t, res.Found())
}

func TestMatch_TitleWithoutYearIsNotEnough(t *testing.T) {
	m, _ := newTestMatcher(t, http.StatusOK, `[{"_id":"x","name":"Dune","year":2021}]`)

	res, err := m.Match(context.Background(), Query{Title: "Dune"})
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Equal(t, ReasonNoMatch, res.Reason)
}

func TestMatch_NotFoundIsNotAnError(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{name: "empty array", body: `[]`, reason: ReasonNoResults},
		{name: "empty envelope", body: `{"items":[]}`, reason: ReasonNoResults},
		{name: "nothing matches", body: `[{"_id":"x","name":"Other","year":2000}]`, reason: ReasonNoMatch},
		{name: "rows without ids are skipped", body: `[{"name":"Lost","year":2004}]`, reason: ReasonNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMatcher(t, http.StatusOK, tt.body)

			res, err := m.Match(context.Background(), Query{ExternalID: "tt0411008", Title: "Lost", Year: 2004})
			require.NoError(t, err)
			assert.False(t, res.Found())
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestMatch_TransportFailuresAreErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "malformed json", status: http.StatusOK, body: `{"items":`},
		{name: "object without items", status: http.StatusOK, body: `{"error":"rate limited"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMatcher(t, tt.status, tt.body)

			_, err := m.Match(context.Background(), Query{Title: "X", Year: 2000})
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrUpstream))
		})
	}
}

func TestMatch_MissingTitle(t *testing.T) {
	m, _ := newTestMatcher(t, http.StatusOK, `[]`)

	_, err := m.Match(context.Background(), Query{ExternalID: "tt1"})
	assert.ErrorIs(t, err, types.ErrMissingTitle)
}

func TestNormalizeExternalID(t *testing.T) {
	assert.Equal(t, "133093", NormalizeExternalID("tt0133093"))
	assert.Equal(t, "133093", NormalizeExternalID(" TT133093 "))
	assert.Equal(t, "133093", NormalizeExternalID("133093"))
	assert.Equal(t, "", NormalizeExternalID(""))
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "the matrix", NormalizeTitle("  The   Matrix "))
	assert.Equal(t, "cerny petr", NormalizeTitle("Černý Petr"))
}

func TestNormalizeRow_LinkAsUpstreamID(t *testing.T) {
	c := normalizeRow(row{"l": "https://www.streamuj.tv/video/abc123?x=1", "n": "T", "y": "rok 2010"})

	assert.Equal(t, "abc123", c.match.UpstreamID)
	assert.Equal(t, 2010, c.match.Year)
	assert.Empty(t, c.match.ExternalID)
}
