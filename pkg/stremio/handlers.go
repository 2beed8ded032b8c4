package stremio

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"stremio-sos-go/pkg/appctx"
	"stremio-sos-go/pkg/logging"
)

// Handlers contains all Stremio addon handlers.
type Handlers struct {
	ctx *appctx.Context
	log *logging.Logger
}

// NewHandlers creates a new Stremio Handlers instance.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx: ctx,
		log: ctx.Log.WithComponent("stremio"),
	}
}

// RegisterRoutes registers all Stremio addon routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleHome)
	mux.HandleFunc("GET /manifest.json", h.handleManifest)
	mux.HandleFunc("GET /stream/{type}/{id}", h.handleStream)
	mux.HandleFunc("GET /health", h.handleHealth)
	if h.ctx.Metrics != nil {
		mux.Handle("GET /metrics", h.ctx.Metrics.Handler())
	}
}

var homeTemplate = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Name}} - Stremio Addon</title>
    <style>
        body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; background: #16213e; color: #fff;
               display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; }
        .container { text-align: center; max-width: 500px; padding: 2rem; }
        .install-btn { display: inline-block; background: #7b2cbf; color: #fff; padding: 1rem 2.5rem;
                       border-radius: 50px; text-decoration: none; }
        code { display: block; margin-top: 2rem; color: #58a6ff; word-break: break-all; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Name}}</h1>
        <p>{{.Description}}</p>
        <a href="{{.StremioURL}}" class="install-btn">Install Addon</a>
        <code>{{.ManifestURL}}</code>
    </div>
</body>
</html>`))

// handleHome serves the addon installation page.
func (h *Handlers) handleHome(w http.ResponseWriter, r *http.Request) {
	baseURL := h.ctx.BaseURL
	if baseURL == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		baseURL = scheme + "://" + r.Host
	}
	host := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")

	data := struct {
		Name        string
		Description string
		ManifestURL string
		StremioURL  template.URL
	}{
		Name:        Manifest.Name,
		Description: Manifest.Description,
		ManifestURL: baseURL + "/manifest.json",
		StremioURL:  template.URL("stremio://" + host + "/manifest.json"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := homeTemplate.Execute(w, data); err != nil {
		h.log.Error("failed to render home page", "error", err)
	}
}

// handleManifest returns the Stremio addon manifest.
func (h *Handlers) handleManifest(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, Manifest)
}

// handleStream answers /stream/{type}/{id}.json. The status is always 200;
// anything short of a resolved stream is an empty list.
func (h *Handlers) handleStream(w http.ResponseWriter, r *http.Request) {
	streamType := r.PathValue("type")
	streamID := strings.TrimSuffix(r.PathValue("id"), ".json")

	result := h.ctx.StreamService.Streams(r.Context(), streamType, streamID)

	streams := make([]Stream, 0, len(result.Streams))
	for _, rs := range result.Streams {
		streams = append(streams, toStream(rs, result.Title))
	}

	h.jsonResponseNoCache(w, StreamsResponse{Streams: streams})
}

// handleHealth reports liveness and which optional features are enabled.
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	cacheEntries := 0
	if h.ctx.Cache != nil {
		cacheEntries = h.ctx.Cache.Len()
	}

	h.jsonResponseNoCache(w, map[string]any{
		"status":        "ok",
		"cache_entries": cacheEntries,
		"credentials":   h.ctx.Config.HasCredentials(),
		"flaresolverr":  h.ctx.Config.FlareSolverrURL != "",
		"metrics":       h.ctx.Metrics != nil,
	})
}

// jsonResponse writes a JSON response.
func (h *Handlers) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Debug("failed to write response", "error", err)
	}
}

// jsonResponseNoCache writes a JSON response with no-cache headers.
func (h *Handlers) jsonResponseNoCache(w http.ResponseWriter, data any) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	h.jsonResponse(w, data)
}
