package urlutil

import "testing"

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name    string
		urlStr  string
		baseURL string
		want    string
	}{
		{
			name:    "absolute URL unchanged",
			urlStr:  "https://cdn.example.com/player.js?authorize=abc",
			baseURL: "https://www.streamuj.tv/video/123",
			want:    "https://cdn.example.com/player.js?authorize=abc",
		},
		{
			name:    "protocol relative",
			urlStr:  "//cdn.example.com/embed.js",
			baseURL: "https://www.streamuj.tv/video/123",
			want:    "https://cdn.example.com/embed.js",
		},
		{
			name:    "absolute path",
			urlStr:  "/js/player.js",
			baseURL: "https://www.streamuj.tv/video/123",
			want:    "https://www.streamuj.tv/js/player.js",
		},
		{
			name:    "relative path",
			urlStr:  "embed?x=1",
			baseURL: "https://www.streamuj.tv/video/123?lang=cz",
			want:    "https://www.streamuj.tv/video/embed?x=1",
		},
		{
			name:    "preserves special characters",
			urlStr:  "segment(1).ts",
			baseURL: "https://cdn.example.com/stream(1)/manifest.m3u8",
			want:    "https://cdn.example.com/stream(1)/segment(1).ts",
		},
		{
			name:    "trims whitespace",
			urlStr:  "  https://example.com/a ",
			baseURL: "https://www.streamuj.tv/",
			want:    "https://example.com/a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveURL(tt.urlStr, tt.baseURL); got != tt.want {
				t.Errorf("ResolveURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetSchemeHost(t *testing.T) {
	tests := []struct {
		urlStr string
		want   string
	}{
		{"https://www.streamuj.tv/video/abc?x=1", "https://www.streamuj.tv"},
		{"http://127.0.0.1:8080/video/abc", "http://127.0.0.1:8080"},
		{"not a url", ""},
	}

	for _, tt := range tests {
		if got := GetSchemeHost(tt.urlStr); got != tt.want {
			t.Errorf("GetSchemeHost(%q) = %q, want %q", tt.urlStr, got, tt.want)
		}
	}
}

func TestSamePage(t *testing.T) {
	page := "https://www.streamuj.tv/video/abc"

	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"identical", page, true},
		{"with query", page + "?streamuj=hd&authorize=00ff", true},
		{"trailing slash", page + "/", true},
		{"nested path", page + "/error", true},
		{"host case", "https://WWW.streamuj.tv/video/abc", true},
		{"different path", "https://www.streamuj.tv/video/abcd", false},
		{"cdn", "https://s12.cdn.example.net/abc.mp4?h=1", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SamePage(tt.candidate, page); got != tt.want {
				t.Errorf("SamePage(%q) = %v, want %v", tt.candidate, got, tt.want)
			}
		})
	}
}
