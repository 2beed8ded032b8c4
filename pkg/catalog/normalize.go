package catalog

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"stremio-sos-go/pkg/types"
)

// Field names seen in search rows, in lookup order. The site has served both
// the long names and single-letter keys over time.
var (
	upstreamIDFields = []string{"upstreamId", "_id", "l", "link", "url", "id"}
	externalIDFields = []string{"imdb", "imdb_id", "imdbId", "imdbID", "externalId", "m", "id"}
	titleFields      = []string{"n", "name", "title", "nazev"}
	originalFields   = []string{"o", "original_name", "originalTitle", "en"}
	yearFields       = []string{"y", "year", "rok"}
	qualityFields    = []string{"q", "quality", "kvalita"}
)

// preferredLanguages is the order localized names are picked for display.
var preferredLanguages = []string{"cs", "sk", "en"}

var (
	imdbLikeRe = regexp.MustCompile(`(?i)^tt\d+$`)
	yearRe     = regexp.MustCompile(`\b(1[89]\d{2}|2\d{3})\b`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// row is one loosely typed search result.
type row map[string]any

// candidate is a normalized row plus every title variant it carries.
type candidate struct {
	match  types.UpstreamMatch
	titles []string
}

// decodeRows accepts a bare array or an {"items": [...]} envelope.
func decodeRows(body []byte) ([]row, error) {
	var rows []row
	if err := json.Unmarshal(body, &rows); err == nil {
		return rows, nil
	}

	var envelope struct {
		Items []row `json:"items"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if envelope.Items == nil {
		return nil, fmt.Errorf("decode search response: no items array")
	}
	return envelope.Items, nil
}

// normalizeRow maps whatever the site sent into a candidate.
func normalizeRow(r row) candidate {
	c := candidate{}

	for _, f := range upstreamIDFields {
		if s := scalarString(r[f]); s != "" {
			c.match.UpstreamID = lastPathSegment(s)
			break
		}
	}

	for _, f := range externalIDFields {
		s := scalarString(r[f])
		if s == "" {
			continue
		}
		// a bare "id" only counts when it looks like an IMDB id
		if f == "id" && !imdbLikeRe.MatchString(s) {
			continue
		}
		c.match.ExternalID = s
		break
	}

	var display string
	for _, f := range titleFields {
		if v, ok := r[f]; ok {
			d, all := localized(v)
			if display == "" {
				display = d
			}
			c.titles = append(c.titles, all...)
		}
	}
	for _, f := range originalFields {
		if v, ok := r[f]; ok {
			d, all := localized(v)
			if display == "" {
				display = d
			}
			c.titles = append(c.titles, all...)
		}
	}
	c.match.ExternalTitle = strings.TrimSpace(display)

	for _, f := range yearFields {
		if y := parseYear(r[f]); y > 0 {
			c.match.Year = y
			break
		}
	}

	for _, f := range qualityFields {
		if q := joinStrings(r[f]); q != "" {
			c.match.Quality = types.NormalizeQuality(q)
			break
		}
	}

	return c
}

// localized returns the display variant and all variants of a name that is
// either a plain string or a language -> string map.
func localized(v any) (string, []string) {
	switch val := v.(type) {
	case string:
		if val == "" {
			return "", nil
		}
		return val, []string{val}
	case map[string]any:
		var all []string
		var display string
		for _, lang := range preferredLanguages {
			if s, ok := val[lang].(string); ok && s != "" {
				if display == "" {
					display = s
				}
			}
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := val[k].(string); ok && s != "" {
				all = append(all, s)
				if display == "" {
					display = s
				}
			}
		}
		return display, all
	default:
		return "", nil
	}
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func joinStrings(v any) string {
	switch val := v.(type) {
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			if s := scalarString(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return scalarString(v)
	}
}

func parseYear(v any) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case string:
		if m := yearRe.FindString(val); m != "" {
			y, _ := strconv.Atoi(m)
			return y
		}
	}
	return 0
}

func lastPathSegment(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// NormalizeExternalID lower-cases an IMDB-style id and strips the optional
// "tt" prefix and leading zeros, so "tt0133093", "TT133093" and 133093 agree.
func NormalizeExternalID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.TrimPrefix(id, "tt")
	id = strings.TrimLeft(id, "0")
	return id
}

// NormalizeTitle makes titles comparable: diacritics folded, lower case,
// whitespace collapsed.
func NormalizeTitle(title string) string {
	// transformers carry state, so build one per call
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, title)
	if err != nil {
		folded = title
	}
	folded = strings.ToLower(folded)
	return strings.TrimSpace(spaceRe.ReplaceAllString(folded, " "))
}
