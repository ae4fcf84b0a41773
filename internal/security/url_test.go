package security

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsPublicURLs(t *testing.T) {
	g := NewURLGuard()

	for _, rawURL := range []string{
		"https://www.virustotal.com/api/v3/urls",
		"http://example.com/path?q=1",
		"https://8.8.8.8/lookup",
	} {
		assert.NoError(t, g.Validate(rawURL), rawURL)
	}
}

func TestValidateBlocksDangerousTargets(t *testing.T) {
	tests := []struct {
		name   string
		rawURL string
	}{
		{"loopback ip", "http://127.0.0.1/admin"},
		{"loopback mapped", "http://[::ffff:127.0.0.1]/"},
		{"private 10", "http://10.0.0.5/"},
		{"private 172", "http://172.16.1.1/"},
		{"private 192", "http://192.168.1.1/router"},
		{"link local", "http://169.254.169.254/latest/meta-data/"},
		{"unspecified", "http://0.0.0.0/"},
		{"localhost", "http://localhost:8000/"},
		{"gcp metadata", "http://metadata.google.internal/computeMetadata/"},
		{"file scheme", "file:///etc/passwd"},
		{"gopher scheme", "gopher://example.com/"},
		{"empty host", "http:///path"},
	}

	g := NewURLGuard()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, g.Validate(tt.rawURL))
		})
	}
}

func TestCheckRedirect(t *testing.T) {
	g := NewURLGuard()

	redirect := func(rawURL string) *http.Request {
		u, err := url.Parse(rawURL)
		require.NoError(t, err)
		return &http.Request{URL: u}
	}

	// A safe hop passes.
	assert.NoError(t, g.CheckRedirect(redirect("https://example.com/next"), nil))

	// A hop into a private network is blocked.
	assert.Error(t, g.CheckRedirect(redirect("http://192.168.0.1/"), nil))

	// Chains are capped at ten hops.
	via := make([]*http.Request, 10)
	for i := range via {
		via[i] = redirect("https://example.com/")
	}
	assert.ErrorContains(t, g.CheckRedirect(redirect("https://example.com/"), via), "10 redirects")
}
