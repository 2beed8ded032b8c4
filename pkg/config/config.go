// Package config handles application configuration from environment variables
// and an optional add-on options file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultOptionsFile is where the Home Assistant supervisor mounts add-on options.
const DefaultOptionsFile = "/data/options.json"

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// ShutdownTimeout bounds draining in-flight requests on SIGTERM.
	ShutdownTimeout time.Duration

	// Upstream hosts
	MetaHost     string
	CatalogHost  string
	ResolverHost string

	// Premium credentials for the resolver site
	StreamujUser     string
	StreamujPass     string
	StreamujLocation string
	StreamujUID      string

	// Cache settings
	CacheFile        string
	PositiveTTLDays  int
	NegativeTTLHours int

	// Latency budgets
	HTTPTimeout       time.Duration
	StreamHardTimeout time.Duration

	// Proxy settings
	GlobalProxies   []string
	TransportRoutes []TransportRoute
	UTLSDomains     []string

	// Metadata lookups
	MetadataCacheSize int
	MetadataCacheTTL  time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Metrics
	MetricsEnabled bool

	// FlareSolverr settings (for Cloudflare bypass)
	FlareSolverrURL     string
	FlareSolverrTimeout time.Duration

	// OptionsFileError is set when the options file exists but could not be used.
	OptionsFileError error
}

// TransportRoute defines URL-specific proxy routing.
type TransportRoute struct {
	URLPattern string
	Proxy      string
	DisableSSL bool
	Direct     bool // If true, bypass global proxy and connect directly
}

// PositiveTTL returns the lifetime of a "found" cache entry.
func (c *Config) PositiveTTL() time.Duration {
	return time.Duration(c.PositiveTTLDays) * 24 * time.Hour
}

// NegativeTTL returns the lifetime of a "not found" cache entry.
func (c *Config) NegativeTTL() time.Duration {
	return time.Duration(c.NegativeTTLHours) * time.Hour
}

// HasCredentials reports whether premium credentials are configured.
func (c *Config) HasCredentials() bool {
	return c.StreamujUser != "" && c.StreamujPass != ""
}

// source resolves keys from the environment first, then from the options file.
type source struct {
	file map[string]string
}

// flareSolverrHeadroom is kept free of the stream deadline when capping
// FLARESOLVERR_TIMEOUT.
const flareSolverrHeadroom = 4 * time.Second

// Load reads configuration from environment variables with sensible defaults.
// Values missing from the environment are looked up in the options file named
// by CONFIG_FILE (JSON or YAML, flat key/value).
func Load() *Config {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = DefaultOptionsFile
	}
	return loadFile(path)
}

// loadFile loads configuration with path as the options file. A missing file
// is not an error; any other read or parse failure is kept in
// OptionsFileError and the file is ignored.
func loadFile(path string) *Config {
	file, err := readOptionsFile(path)
	cfg := load(source{file: file})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		cfg.OptionsFileError = err
	}
	return cfg
}

func load(s source) *Config {
	port := s.getInt("PORT", 7000)
	cfg := &Config{
		Port:                port,
		BaseURL:             strings.TrimRight(s.getString("BASE_URL", ""), "/"),
		ReadTimeout:         s.getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        s.getDuration("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:         s.getDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:     s.getDuration("SHUTDOWN_TIMEOUT", 20*time.Second),
		MetaHost:            strings.TrimRight(s.getString("META_HOST", "https://v3-cinemeta.strem.io"), "/"),
		CatalogHost:         strings.TrimRight(s.getString("CATALOG_HOST", "https://tv.sosac.to"), "/"),
		ResolverHost:        strings.TrimRight(s.getString("RESOLVER_HOST", "https://www.streamuj.tv"), "/"),
		StreamujUser:        s.getString("STREAMUJ_USER", ""),
		StreamujPass:        s.getString("STREAMUJ_PASS", ""),
		StreamujLocation:    s.getString("STREAMUJ_LOCATION", ""),
		StreamujUID:         s.getString("STREAMUJ_UID", ""),
		CacheFile:           s.getString("CACHE_FILE", "/data/sosac-cache.json"),
		PositiveTTLDays:     s.getInt("CACHE_POSITIVE_TTL_DAYS", 14),
		NegativeTTLHours:    s.getInt("CACHE_NEGATIVE_TTL_HOURS", 12),
		HTTPTimeout:         s.getDuration("HTTP_TIMEOUT", 8*time.Second),
		StreamHardTimeout:   s.getDuration("STREAM_HARD_TIMEOUT", 18*time.Second),
		GlobalProxies:       s.getStringSlice("GLOBAL_PROXIES", nil),
		UTLSDomains:         s.getStringSlice("UTLS_DOMAINS", nil),
		MetadataCacheSize:   s.getInt("METADATA_CACHE_SIZE", 512),
		MetadataCacheTTL:    s.getDuration("METADATA_CACHE_TTL", 6*time.Hour),
		LogLevel:            s.getString("LOG_LEVEL", "info"),
		LogFormat:           strings.ToLower(s.getString("LOG_FORMAT", "text")),
		MetricsEnabled:      s.getBool("METRICS_ENABLED", true),
		FlareSolverrURL:     strings.TrimRight(s.getString("FLARESOLVERR_URL", ""), "/"),
		FlareSolverrTimeout: s.getDuration("FLARESOLVERR_TIMEOUT", 12*time.Second),
	}

	// LOG_JSON predates LOG_FORMAT
	if s.getBool("LOG_JSON", false) {
		cfg.LogFormat = "json"
	}

	// a solver call plus its round trip must fit inside the stream deadline
	if limit := cfg.StreamHardTimeout - flareSolverrHeadroom; limit > 0 && cfg.FlareSolverrTimeout > limit {
		cfg.FlareSolverrTimeout = limit
	}

	cfg.TransportRoutes = parseTransportRoutes(s.lookup("TRANSPORT_ROUTES"))

	// Legacy single proxy support
	if globalProxy := s.lookup("GLOBAL_PROXY"); globalProxy != "" && len(cfg.GlobalProxies) == 0 {
		cfg.GlobalProxies = []string{globalProxy}
	}

	return cfg
}

// readOptionsFile parses a flat options document. Keys are upper-cased so that
// Home Assistant style lower-case options match the env names.
func readOptionsFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		switch val := v.(type) {
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			out[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			out[strings.ToUpper(k)] = fmt.Sprint(val)
		}
	}
	return out, nil
}

// parseTransportRoutes parses the TRANSPORT_ROUTES env var.
// Format: {URL=pattern, PROXY=url, DISABLE_SSL=true}, {URL=pattern2}
func parseTransportRoutes(s string) []TransportRoute {
	if s == "" {
		return nil
	}

	var routes []TransportRoute
	s = strings.TrimSpace(s)

	parts := strings.Split(s, "}, {")
	for _, part := range parts {
		part = strings.Trim(part, "{} ")
		if part == "" {
			continue
		}

		route := TransportRoute{}
		for _, field := range strings.Split(part, ", ") {
			kv := strings.SplitN(field, "=", 2)
			if len(kv) != 2 {
				continue
			}
			value := strings.TrimSpace(kv[1])

			switch strings.ToUpper(strings.TrimSpace(kv[0])) {
			case "URL":
				route.URLPattern = value
			case "PROXY":
				route.Proxy = value
			case "DISABLE_SSL":
				route.DisableSSL = strings.ToLower(value) == "true"
			case "DIRECT":
				route.Direct = strings.ToLower(value) == "true"
			}
		}
		if route.URLPattern != "" {
			routes = append(routes, route)
		}
	}

	return routes
}

func (s source) lookup(key string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return s.file[key]
}

func (s source) getString(key, defaultVal string) string {
	if val := s.lookup(key); val != "" {
		return val
	}
	return defaultVal
}

func (s source) getInt(key string, defaultVal int) int {
	if val := s.lookup(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func (s source) getBool(key string, defaultVal bool) bool {
	if val := s.lookup(key); val != "" {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func (s source) getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := s.lookup(key); val != "" {
		// Try parsing as milliseconds first; add-on options are usually *_MS style numbers
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func (s source) getStringSlice(key string, defaultVal []string) []string {
	if val := s.lookup(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultVal
}
