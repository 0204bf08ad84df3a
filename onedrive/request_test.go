package onedrive

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURL_EncodesSegments(t *testing.T) {
	tests := []struct {
		name     string
		segments []string
		want     string
	}{
		{"plain", []string{"drive", "items", "abc123"}, "https://api.example.com/v1.0/drive/items/abc123"},
		{"spaces", []string{"drive", "root:", "my file.txt"}, "https://api.example.com/v1.0/drive/root:/my%20file.txt"},
		{"reserved", []string{"items", "a#b?c"}, "https://api.example.com/v1.0/items/a%23b%3Fc"},
		{"unicode", []string{"items", "päivä.txt"}, "https://api.example.com/v1.0/items/p%C3%A4iv%C3%A4.txt"},
		{"embedded slash splits", []string{"drive/items/abc"}, "https://api.example.com/v1.0/drive/items/abc"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := BuildURL("https://api.example.com/v1.0", tc.segments, nil)
			assert.Equal(t, tc.want, got)

			// Every built URL must parse back, with the original segment
			// text recoverable from the path.
			parsed, err := url.Parse(got)
			require.NoError(t, err)
			assert.NotEmpty(t, parsed.Path)
		})
	}
}

func TestBuildURL_EncodingRoundTrip(t *testing.T) {
	// Percent-encoding must round-trip arbitrary segment text.
	segments := []string{"a b", "ö#ä", "100%"}

	parsed, err := url.Parse(BuildURL("https://api.example.com", segments, nil))
	require.NoError(t, err)

	got := strings.Split(strings.TrimPrefix(parsed.EscapedPath(), "/"), "/")
	require.Len(t, got, len(segments))

	for i, want := range segments {
		seg, unescapeErr := url.PathUnescape(got[i])
		require.NoError(t, unescapeErr)
		assert.Equal(t, want, seg)
	}
}

func TestBuildURL_QueryOrderPreserved(t *testing.T) {
	got := BuildURL("https://api.example.com", []string{"items"}, []QueryOption{
		{Name: "select", Value: "id,name"},
		{Name: "top", Value: "10"},
		{Name: "q", Value: "a b"},
	})

	assert.Equal(t, "https://api.example.com/items?select=id%2Cname&top=10&q=a+b", got)
}

func TestNewRequest_StampsStandardHeaders(t *testing.T) {
	req := NewRequest(http.MethodGet, "https://api.example.com", "drive")

	var stats, requestID string

	for _, h := range req.Headers() {
		switch h.Name {
		case requestStatsHeader:
			stats = h.Value
		case requestIDHeader:
			requestID = h.Value
		}
	}

	assert.Equal(t, "SDK-Version=Go-v"+SDKVersion, stats)
	assert.NotEmpty(t, requestID)

	// Every request gets its own correlation id.
	other := NewRequest(http.MethodGet, "https://api.example.com", "drive")
	assert.NotEqual(t, requestID, other.Headers()[1].Value)
}
