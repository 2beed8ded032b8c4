// Package registry provides an ordered registry of token extractors.
package registry

import (
	"sync"

	"stremio-sos-go/pkg/interfaces"
	"stremio-sos-go/pkg/types"
)

// ExtractorRegistry manages token extractors in registration order.
// Order matters: it is the fallback order the resolver tries them in.
type ExtractorRegistry struct {
	mu         sync.RWMutex
	extractors []interfaces.TokenExtractor
	byName     map[string]interfaces.TokenExtractor
}

// NewExtractorRegistry creates a new extractor registry.
func NewExtractorRegistry() *ExtractorRegistry {
	return &ExtractorRegistry{
		extractors: make([]interfaces.TokenExtractor, 0),
		byName:     make(map[string]interfaces.TokenExtractor),
	}
}

// Register adds an extractor to the registry. A nil extractor is ignored so
// optional strategies can be registered unconditionally.
func (r *ExtractorRegistry) Register(extractor interfaces.TokenExtractor) {
	if extractor == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors = append(r.extractors, extractor)
	r.byName[extractor.Name()] = extractor
}

// ForScope returns the extractors of the given scope, in registration order.
func (r *ExtractorRegistry) ForScope(scope types.TokenScope) []interfaces.TokenExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []interfaces.TokenExtractor
	for _, e := range r.extractors {
		if e.Scope() == scope {
			result = append(result, e)
		}
	}
	return result
}

// HasScope reports whether any extractor of the given scope is registered.
func (r *ExtractorRegistry) HasScope(scope types.TokenScope) bool {
	return len(r.ForScope(scope)) > 0
}

// GetByName returns an extractor by its name.
func (r *ExtractorRegistry) GetByName(name string) (interfaces.TokenExtractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byName[name]
	return e, ok
}

// All returns all registered extractors.
func (r *ExtractorRegistry) All() []interfaces.TokenExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]interfaces.TokenExtractor, len(r.extractors))
	copy(result, r.extractors)
	return result
}

// Close closes all registered extractors.
func (r *ExtractorRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.extractors {
		_ = e.Close()
	}
	return nil
}
