package httpclient

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	client := New(30 * time.Second)

	require.NotNil(t, client)
	assert.Equal(t, 30*time.Second, client.Timeout)
	assert.Equal(t, 10, client.maxRedirects)
	assert.True(t, client.blockPrivateIP)
	assert.Equal(t, []string{"https"}, client.allowedSchemes)
}

func TestValidateURL(t *testing.T) {
	client := New(30 * time.Second)

	tests := []struct {
		name        string
		url         string
		errContains string
	}{
		{"valid https URL", "https://registry.gitvan.dev/packs/foo", ""},
		{"http blocked by default", "http://example.com", "scheme"},
		{"file scheme blocked", "file:///etc/passwd", "scheme"},
		{"gopher scheme blocked", "gopher://example.com", "scheme"},
		{"localhost blocked", "https://localhost/admin", "localhost"},
		{"loopback blocked", "https://127.0.0.1/", "private IP"},
		{"localhost subdomain blocked", "https://admin.localhost/", "localhost"},
		{"10.x blocked", "https://10.0.0.1/", "private IP"},
		{"192.168.x blocked", "https://192.168.1.1/", "private IP"},
		{"172.16.x blocked", "https://172.16.0.1/", "private IP"},
		{"cloud metadata endpoint blocked", "https://169.254.169.254/metadata", "private IP"},
		{"credential injection blocked", "https://evil.com@localhost/", "@"},
		{"empty hostname", "https:///path", "hostname"},
		{"public IP allowed", "https://8.8.8.8/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ValidateURL(tt.url)
			if tt.errContains == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{
		"10.0.0.1", "10.255.255.255",
		"192.168.0.1", "172.16.0.1", "172.31.255.255",
		"127.0.0.1", "169.254.169.254",
		"0.0.0.0", "224.0.0.1", "240.0.0.1",
		"::1", "fe80::1", "fc00::1",
	}
	public := []string{"8.8.8.8", "1.1.1.1", "93.184.216.34"}

	for _, s := range private {
		ip := net.ParseIP(s)
		require.NotNil(t, ip, s)
		assert.True(t, isPrivateIP(ip), s)
	}
	for _, s := range public {
		ip := net.ParseIP(s)
		require.NotNil(t, ip, s)
		assert.False(t, isPrivateIP(ip), s)
	}
}

func TestIsLocalhost(t *testing.T) {
	assert.True(t, isLocalhost("localhost"))
	assert.True(t, isLocalhost("LOCALHOST"))
	assert.True(t, isLocalhost("localhost.localdomain"))
	assert.True(t, isLocalhost("admin.localhost"))
	assert.False(t, isLocalhost("example.com"))
	assert.False(t, isLocalhost("local.host"))
}

func TestRedirectBlocked(t *testing.T) {
	// Initial request hits the test server on localhost, so private IP
	// blocking is disabled up front and re-enabled before the redirect.
	off := false
	client := NewWithOptions(5*time.Second, Options{
		AllowedSchemes: []string{"http", "https"},
		BlockPrivateIP: &off,
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://localhost/admin", http.StatusFound)
	}))
	defer server.Close()

	client.blockPrivateIP = true

	resp, err := client.Get(server.URL)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect blocked")
}

func TestMaxRedirects(t *testing.T) {
	off := false
	client := NewWithOptions(5*time.Second, Options{
		AllowedSchemes: []string{"http", "https"},
		BlockPrivateIP: &off,
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/redirect", http.StatusFound)
	}))
	defer server.Close()

	resp, err := client.Get(server.URL)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirects")
}

func TestDo_BlocksLocalhost(t *testing.T) {
	client := New(5 * time.Second)

	req, err := http.NewRequest(http.MethodGet, "https://localhost/", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSRF protection")
}

func TestWrapClient_ServesLocalTestServers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := WrapClient(server.Client())
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
