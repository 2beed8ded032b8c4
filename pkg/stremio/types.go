// Package stremio serves the add-on's Stremio protocol endpoints.
package stremio

import (
	"strings"

	"stremio-sos-go/pkg/types"
)

// AddonManifest is the Stremio addon manifest.
type AddonManifest struct {
	ID          string   `json:"id"`
	Version     string   `json:"version"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Resources   []string `json:"resources"`
	Types       []string `json:"types"`
	Catalogs    []any    `json:"catalogs"`
	IDPrefixes  []string `json:"idPrefixes"`
}

// Manifest is the static descriptor served at /manifest.json.
var Manifest = AddonManifest{
	ID:          "org.stremio.sos",
	Version:     "1.0.0",
	Name:        "SOS",
	Description: "Czech and Slovak dubbed movies resolved on demand",
	Resources:   []string{"stream"},
	Types:       []string{"movie", "series"},
	Catalogs:    []any{},
	IDPrefixes:  []string{"tt"},
}

// Stream is a Stremio stream object.
type Stream struct {
	Name          string         `json:"name"`
	Title         string         `json:"title"`
	URL           string         `json:"url"`
	BehaviorHints *BehaviorHints `json:"behaviorHints,omitempty"`
}

// BehaviorHints tells Stremio how to play a stream.
type BehaviorHints struct {
	NotWebReady  bool          `json:"notWebReady"`
	BindingGroup string        `json:"bindingGroup,omitempty"`
	ProxyHeaders *ProxyHeaders `json:"proxyHeaders,omitempty"`
}

// ProxyHeaders are sent by the Stremio streaming server when fetching the URL.
type ProxyHeaders struct {
	Request map[string]string `json:"request,omitempty"`
}

// StreamsResponse is the body of /stream. Streams is never nil.
type StreamsResponse struct {
	Streams []Stream `json:"streams"`
}

// toStream converts a resolved stream for the Stremio client.
func toStream(rs types.ResolvedStream, title string) Stream {
	quality := strings.ToUpper(string(rs.Quality))
	if quality == "" {
		quality = "?"
	}

	label := quality
	if title != "" {
		label = title + "\n" + quality
	}

	s := Stream{
		Name:  "SOS\n" + quality,
		Title: label,
		URL:   rs.URL,
		BehaviorHints: &BehaviorHints{
			NotWebReady:  true,
			BindingGroup: "sos-" + string(rs.Quality),
		},
	}
	if len(rs.Headers) > 0 {
		s.BehaviorHints.ProxyHeaders = &ProxyHeaders{Request: rs.Headers}
	}
	return s
}
