package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"stremio-sos-go/pkg/types"
)

type stubExtractor struct {
	name   string
	scope  types.TokenScope
	closed bool
}

func (s *stubExtractor) Name() string            { return s.name }
func (s *stubExtractor) Scope() types.TokenScope { return s.scope }
func (s *stubExtractor) Close() error            { s.closed = true; return nil }
func (s *stubExtractor) Extract(context.Context, *types.TokenRequest) (string, error) {
	return "", nil
}

func TestExtractorRegistry_ForScopeKeepsOrder(t *testing.T) {
	reg := NewExtractorRegistry()
	markup := &stubExtractor{name: "markup", scope: types.ScopePage}
	api := &stubExtractor{name: "api", scope: types.ScopeQuality}
	links := &stubExtractor{name: "links", scope: types.ScopePage}

	reg.Register(markup)
	reg.Register(api)
	reg.Register(links)
	reg.Register(nil)

	page := reg.ForScope(types.ScopePage)
	if assert.Len(t, page, 2) {
		assert.Equal(t, "markup", page[0].Name())
		assert.Equal(t, "links", page[1].Name())
	}
	assert.True(t, reg.HasScope(types.ScopeQuality))
	assert.Len(t, reg.All(), 3)

	got, ok := reg.GetByName("api")
	assert.True(t, ok)
	assert.Same(t, api, got)

	_, ok = reg.GetByName("missing")
	assert.False(t, ok)
}

func TestExtractorRegistry_Close(t *testing.T) {
	reg := NewExtractorRegistry()
	a := &stubExtractor{name: "a", scope: types.ScopePage}
	reg.Register(a)

	assert.NoError(t, reg.Close())
	assert.True(t, a.closed)
	assert.False(t, NewExtractorRegistry().HasScope(types.ScopeQuality))
}
