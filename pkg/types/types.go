// Package types defines core domain types used throughout the application.
package types

import (
	"errors"
	"strings"
)

// Sentinel errors shared by the resolver pipeline.
var (
	// ErrUpstream marks transient upstream failures (non-2xx, malformed body).
	// These must never be cached as negative results.
	ErrUpstream = errors.New("upstream failure")

	// ErrMissingTitle is returned when a catalog lookup is attempted without a title.
	ErrMissingTitle = errors.New("title is required")

	// ErrNoToken is logged when no authorize token could be recovered.
	ErrNoToken = errors.New("authorize token not found")
)

// Quality is a coarse playback quality label.
type Quality string

const (
	QualityOriginal Quality = "original"
	QualityHD       Quality = "hd"
	QualitySD       Quality = "sd"
)

// StandardQualities is the fixed preference order tried by the resolver.
var StandardQualities = []Quality{QualityOriginal, QualityHD, QualitySD}

// IsStandard reports whether q is one of original/hd/sd.
func (q Quality) IsStandard() bool {
	for _, s := range StandardQualities {
		if q == s {
			return true
		}
	}
	return false
}

// NormalizeQuality maps a free-text quality label to original/hd/sd, or
// returns the lower-cased label when nothing matches.
func NormalizeQuality(raw string) Quality {
	q := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case q == "":
		return ""
	case strings.Contains(q, "orig"):
		return QualityOriginal
	case strings.Contains(q, "hd"), strings.Contains(q, "720"), strings.Contains(q, "1080"),
		strings.Contains(q, "2160"), strings.Contains(q, "4k"):
		return QualityHD
	case strings.Contains(q, "sd"), strings.Contains(q, "480"), strings.Contains(q, "360"),
		strings.Contains(q, "dvd"):
		return QualitySD
	default:
		return Quality(q)
	}
}

// UpstreamMatch is one normalized hit from the catalog search API.
type UpstreamMatch struct {
	ExternalTitle string  `json:"externalTitle"`
	ExternalID    string  `json:"externalId,omitempty"`
	UpstreamID    string  `json:"upstreamId"`
	Year          int     `json:"year,omitempty"`
	Quality       Quality `json:"quality,omitempty"`
}

// ResolvedStream is a directly playable media URL.
type ResolvedStream struct {
	URL     string            `json:"url"`
	Quality Quality           `json:"quality"`
	Headers map[string]string `json:"headers,omitempty"`
}

// TokenScope says whether an extractor works on a whole detail page or per quality tier.
type TokenScope string

const (
	ScopePage    TokenScope = "page"
	ScopeQuality TokenScope = "quality"
)

// TokenRequest carries everything a token extractor may look at.
type TokenRequest struct {
	PageURL string
	HTML    string
	Quality Quality
}

// Token is a recovered authorize token and the extractor that found it.
type Token struct {
	Value  string
	Source string
}

// MovieMeta is the subset of metadata-service fields the resolver needs.
type MovieMeta struct {
	IMDbID string
	Name   string
	Year   int
}
