// Package app provides the main application setup and dependency injection.
package app

import (
	"context"
	"fmt"
	"os"

	"stremio-sos-go/pkg/appctx"
	"stremio-sos-go/pkg/cache"
	"stremio-sos-go/pkg/catalog"
	"stremio-sos-go/pkg/config"
	"stremio-sos-go/pkg/extractors"
	"stremio-sos-go/pkg/flaresolverr"
	"stremio-sos-go/pkg/httpclient"
	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/metadata"
	"stremio-sos-go/pkg/metrics"
	"stremio-sos-go/pkg/registry"
	"stremio-sos-go/pkg/resolver"
	"stremio-sos-go/pkg/server"
	"stremio-sos-go/pkg/services"
	"stremio-sos-go/pkg/signer"
	"stremio-sos-go/pkg/stremio"
)

// App is the main application container.
type App struct {
	Ctx          *appctx.Context
	Server       *server.Server
	HTTPClient   *httpclient.Client
	ExtractorReg *registry.ExtractorRegistry
}

// New creates and initializes the application.
func New() (*App, error) {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	log.Info("initializing stremio-sos", "port", cfg.Port, "log_level", cfg.LogLevel)
	if cfg.OptionsFileError != nil {
		log.Warn("options file ignored", "error", cfg.OptionsFileError)
	}

	// Create application context
	ctx := appctx.New(cfg, log)

	// Create HTTP client
	httpClient := httpclient.New(cfg, log)

	creds := signer.Credentials{
		User:     cfg.StreamujUser,
		Pass:     cfg.StreamujPass,
		Location: cfg.StreamujLocation,
		UID:      cfg.StreamujUID,
	}
	if creds.Configured() {
		log.Info("premium credentials configured", "user", creds.User)
	}

	// Load the lookup cache
	lookups := cache.New(cache.Options{
		Path:        cfg.CacheFile,
		PositiveTTL: cfg.PositiveTTL(),
		NegativeTTL: cfg.NegativeTTL(),
	}, log)
	lookups.Load()
	ctx.WithCache(lookups)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		ctx.WithMetrics(m)
	}

	// Create FlareSolverr client if configured
	var flareClient *flaresolverr.Client
	if cfg.FlareSolverrURL != "" {
		flareClient = flaresolverr.NewClient(cfg.FlareSolverrURL, cfg.FlareSolverrTimeout, log)
		log.Info("FlareSolverr client enabled", "url", cfg.FlareSolverrURL)
	}

	// Register token extractors
	extractorReg := registry.NewExtractorRegistry()
	registerExtractors(extractorReg, httpClient, log, cfg.ResolverHost, creds)

	meta, err := metadata.New(httpClient, metadata.Options{
		Host:      cfg.MetaHost,
		CacheSize: cfg.MetadataCacheSize,
		CacheTTL:  cfg.MetadataCacheTTL,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("metadata client: %w", err)
	}

	matcher := catalog.NewMatcher(httpClient, cfg.CatalogHost, log)
	res := resolver.New(httpClient, extractorReg, resolver.Options{
		Host:        cfg.ResolverHost,
		Credentials: creds,
		Solver:      flareClient,
	}, log)

	ctx.WithStreamService(services.NewStreamService(lookups, meta, matcher, res, m, cfg.StreamHardTimeout, log))

	// Create HTTP server; the last cache snapshot is flushed after draining
	srv := server.New(cfg, log)
	srv.OnShutdown(func() {
		if err := extractorReg.Close(); err != nil {
			log.Warn("closing extractors", "error", err)
		}
	})
	srv.OnShutdown(lookups.Wait)

	// Register Stremio addon routes
	stremio.NewHandlers(ctx).RegisterRoutes(srv.Router())

	return &App{
		Ctx:          ctx,
		Server:       srv,
		HTTPClient:   httpClient,
		ExtractorReg: extractorReg,
	}, nil
}

// Run serves until SIGINT/SIGTERM, then drains requests and flushes the cache.
func (a *App) Run(ctx context.Context) error {
	a.Ctx.Log.Info("starting stremio-sos server", "port", a.Ctx.Config.Port)
	return a.Server.Run(ctx)
}

// registerExtractors registers the token extractors in fallback order.
// Add new extractors here by:
// 1. Creating a new extractor in pkg/extractors/
// 2. Registering it below
func registerExtractors(
	reg *registry.ExtractorRegistry,
	client *httpclient.Client,
	log *logging.Logger,
	resolverHost string,
	creds signer.Credentials,
) {
	// Page scope: raw markup first, then links in the parsed DOM
	reg.Register(extractors.NewMarkupExtractor(log))
	reg.Register(extractors.NewLinkExtractor(log))

	// Quality scope: only with premium credentials
	if api := extractors.NewAPIExtractor(client, resolverHost, creds, log); api != nil {
		reg.Register(api)
	}

	_, api := reg.GetByName(extractors.APIExtractorName)
	log.Info("registered extractors", "count", len(reg.All()), "api_strategy", api)
}
