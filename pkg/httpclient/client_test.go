package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stremio-sos-go/pkg/config"
	"stremio-sos-go/pkg/logging"
)

func TestGetClientForURL(t *testing.T) {
	log := logging.Discard()

	tests := []struct {
		name          string
		cfg           *config.Config
		targetURL     string
		expectUTLS    bool
		expectDefault bool
	}{
		{
			name: "uses global proxy when no transport routes match",
			cfg: &config.Config{
				GlobalProxies: []string{"socks5://proxy.example.com:1080"},
			},
			targetURL: "https://cdn.example.com/video.mp4",
		},
		{
			name: "uses transport route when URL matches",
			cfg: &config.Config{
				GlobalProxies: []string{"socks5://global-proxy.example.com:1080"},
				TransportRoutes: []config.TransportRoute{
					{URLPattern: "streamuj.tv", Proxy: "socks5://specific-proxy.example.com:1080"},
				},
			},
			targetURL: "https://www.streamuj.tv/video/abc",
		},
		{
			name:          "uses default client when no proxy configured",
			cfg:           &config.Config{},
			targetURL:     "https://cdn.example.com/video.mp4",
			expectDefault: true,
		},
		{
			name: "direct route bypasses global proxy",
			cfg: &config.Config{
				GlobalProxies: []string{"socks5://global-proxy.example.com:1080"},
				TransportRoutes: []config.TransportRoute{
					{URLPattern: "v3-cinemeta.strem.io", Direct: true},
				},
			},
			targetURL:     "https://v3-cinemeta.strem.io/meta/movie/tt1.json",
			expectDefault: true,
		},
		{
			name: "utls domains take precedence",
			cfg: &config.Config{
				UTLSDomains:   []string{"sosac."},
				GlobalProxies: []string{"socks5://global-proxy.example.com:1080"},
			},
			targetURL:  "https://tv.sosac.to/search?q=x",
			expectUTLS: true,
		},
		{
			name: "utls is never used for plain http",
			cfg: &config.Config{
				UTLSDomains: []string{"sosac."},
			},
			targetURL:     "http://tv.sosac.to/search?q=x",
			expectDefault: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(tt.cfg, log)
			httpClient := client.getClientForURL(tt.targetURL)

			assert.Equal(t, tt.expectUTLS, httpClient == client.utlsClient)
			assert.Equal(t, tt.expectDefault, httpClient == client.defaultClient)
		})
	}
}

func TestRequest_SetsBrowserHeaders(t *testing.T) {
	var gotUA, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
	}))
	defer srv.Close()

	client := New(&config.Config{}, logging.Discard())
	resp, err := client.Get(context.Background(), srv.URL, map[string]string{"Referer": "https://www.streamuj.tv/"})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, UserAgent, gotUA)
	assert.Equal(t, "https://www.streamuj.tv/", gotReferer)
}

func TestRequest_PerCallTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := New(&config.Config{HTTPTimeout: 50 * time.Millisecond}, logging.Discard())
	assert.Equal(t, 50*time.Millisecond, client.Timeout())

	start := time.Now()
	_, err := client.Get(context.Background(), srv.URL, nil)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRequest_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := New(&config.Config{}, logging.Discard())
	resp, err := client.Request(context.Background(), http.MethodHead, srv.URL+"/start", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "/final", resp.Request.URL.Path)
}
