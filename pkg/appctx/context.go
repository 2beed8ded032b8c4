// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"stremio-sos-go/pkg/cache"
	"stremio-sos-go/pkg/config"
	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/metrics"
	"stremio-sos-go/pkg/services"
)

// Context holds all application runtime dependencies.
// Pass this single struct to components instead of individual parameters.
type Context struct {
	Config        *config.Config
	Log           *logging.Logger
	StreamService *services.StreamService
	Cache         *cache.Cache
	Metrics       *metrics.Metrics
	// BaseURL is the public address of the add-on. Empty means derive it
	// from the incoming request.
	BaseURL string
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	return &Context{
		Config:  cfg,
		Log:     log,
		BaseURL: cfg.BaseURL,
	}
}

// WithStreamService sets the stream service.
func (c *Context) WithStreamService(s *services.StreamService) *Context {
	c.StreamService = s
	return c
}

// WithCache sets the lookup cache.
func (c *Context) WithCache(lc *cache.Cache) *Context {
	c.Cache = lc
	return c
}

// WithMetrics sets the metrics collectors. nil disables /metrics.
func (c *Context) WithMetrics(m *metrics.Metrics) *Context {
	c.Metrics = m
	return c
}
