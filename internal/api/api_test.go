// Package api_test provides behavior tests for the API package.
package api_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/hydrablock/internal/api"
	"github.com/jroosing/hydrablock/internal/api/models"
	"github.com/jroosing/hydrablock/internal/blocker"
	"github.com/jroosing/hydrablock/internal/config"
	"github.com/jroosing/hydrablock/internal/filtering"
	"github.com/jroosing/hydrablock/internal/messaging"
	"github.com/jroosing/hydrablock/internal/metrics"
)

func createTestConfig() *config.Config {
	cfg := config.Default()
	cfg.Filtering.ListsDir = ""
	return &cfg
}

func performRequest(r http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// wiredDeps starts an in-memory coordinator with its dispatcher and metrics.
func wiredDeps(t *testing.T, listsDir string) api.Deps {
	t.Helper()
	fc := filtering.DefaultConfig()
	fc.ListsDir = listsDir
	m := metrics.New()
	b, err := blocker.New(blocker.Config{Filtering: fc, Enabled: true}, blocker.Options{Metrics: m})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Close() })

	d := messaging.NewDispatcher(nil, m)
	b.Register(d)
	return api.Deps{Blocker: b, Dispatcher: d, Metrics: m}
}

// ============================================================================
// Server Creation Tests
// ============================================================================

func TestNew_CreatesServer(t *testing.T) {
	server := api.New(createTestConfig(), nil, api.Deps{})

	assert.NotNil(t, server)
	assert.NotNil(t, server.Engine())
	assert.NotNil(t, server.Handler())
}

func TestNew_PanicsOnNilConfig(t *testing.T) {
	assert.Panics(t, func() {
		api.New(nil, nil, api.Deps{})
	})
}

func TestServer_Addr(t *testing.T) {
	cfg := createTestConfig()
	cfg.API.Host = "0.0.0.0"
	cfg.API.Port = 9090

	server := api.New(cfg, nil, api.Deps{})

	assert.Equal(t, "0.0.0.0:9090", server.Addr())
}

// ============================================================================
// Routes Tests
// ============================================================================

func TestRoutes_HealthEndpoint(t *testing.T) {
	server := api.New(createTestConfig(), nil, api.Deps{})

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRoutes_WithoutComponents(t *testing.T) {
	server := api.New(createTestConfig(), nil, api.Deps{})

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(server.Engine(), http.MethodGet, "/api/v1/filtering/whitelist", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = performRequest(server.Engine(), http.MethodPost, "/api/v1/messages", `{"action":"getStats"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// No metrics collector, no /metrics route.
	w = performRequest(server.Engine(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_MessageRoundTrip(t *testing.T) {
	server := api.New(createTestConfig(), nil, wiredDeps(t, ""))

	w := performRequest(server.Engine(), http.MethodPost, "/api/v1/messages", `{"action":"addCustomFilter","filter":"/ad-frame."}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	w = performRequest(server.Engine(), http.MethodGet, "/api/v1/filtering/custom", "")
	require.Equal(t, http.StatusOK, w.Code)
	var filters models.FilterListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &filters))
	assert.Equal(t, []string{"/ad-frame."}, filters.Filters)

	w = performRequest(server.Engine(), http.MethodPost, "/api/v1/messages", `{"action":"checkUrl","url":"https://cdn.example.com/ad-frame.html"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var check messaging.CheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
	assert.True(t, check.Blocked)
}

func TestRoutes_Metrics(t *testing.T) {
	deps := wiredDeps(t, "")
	server := api.New(createTestConfig(), nil, deps)

	performRequest(server.Engine(), http.MethodPost, "/api/v1/messages", `{"action":"getEnabled"}`)
	w := performRequest(server.Engine(), http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hydrablock_messages_total")
}

func TestRoutes_Lists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "easylist.txt"), []byte("||ads.example.com^\n"), 0o644))
	cfg := createTestConfig()
	cfg.Filtering.ListsDir = dir
	server := api.New(cfg, nil, api.Deps{})

	w := performRequest(server.Engine(), http.MethodGet, "/lists/easylist.txt", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "||ads.example.com^\n", w.Body.String())

	w = performRequest(server.Engine(), http.MethodGet, "/lists/missing.txt", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_ListsNotMountedWithoutDir(t *testing.T) {
	cfg := createTestConfig()
	cfg.Filtering.ListsDir = filepath.Join(t.TempDir(), "nope")
	server := api.New(cfg, nil, api.Deps{})

	w := performRequest(server.Engine(), http.MethodGet, "/lists/easylist.txt", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ============================================================================
// API Key Protection Tests
// ============================================================================

func TestRoutes_APIKey(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x\n"), 0o644))

	tests := []struct {
		name   string
		key    string
		header string
		path   string
		want   int
	}{
		{"valid key", "secret-key", "secret-key", "/api/v1/health", http.StatusOK},
		{"invalid key", "secret-key", "wrong-key", "/api/v1/health", http.StatusUnauthorized},
		{"missing key", "secret-key", "", "/api/v1/health", http.StatusUnauthorized},
		{"no key configured", "", "", "/api/v1/health", http.StatusOK},
		{"metrics protected", "secret-key", "", "/metrics", http.StatusUnauthorized},
		{"lists protected", "secret-key", "", "/lists/a.txt", http.StatusUnauthorized},
		{"lists with key", "secret-key", "secret-key", "/lists/a.txt", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestConfig()
			cfg.API.APIKey = tt.key
			cfg.Filtering.ListsDir = dir
			server := api.New(cfg, nil, api.Deps{Metrics: metrics.New()})

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("X-Api-Key", tt.header)
			}
			w := httptest.NewRecorder()
			server.Engine().ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRoutes_RateLimited(t *testing.T) {
	cfg := createTestConfig()
	cfg.API.RateLimit = config.RateLimitConfig{ClientQPS: 0.001, ClientBurst: 2, MaxClients: 8}
	server := api.New(cfg, nil, api.Deps{})

	for range 2 {
		assert.Equal(t, http.StatusOK, performRequest(server.Engine(), http.MethodGet, "/api/v1/health", "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, performRequest(server.Engine(), http.MethodGet, "/api/v1/health", "").Code)
}

// ============================================================================
// Server Lifecycle Tests
// ============================================================================

func TestServer_Shutdown(t *testing.T) {
	server := api.New(createTestConfig(), nil, api.Deps{})

	// Shutdown should not error even if never started
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, server.Shutdown(ctx))
}

func TestServer_Serve(t *testing.T) {
	server := api.New(createTestConfig(), nil, api.Deps{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- server.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/v1/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}

// ============================================================================
// Swagger and Not Found Tests
// ============================================================================

func TestRoutes_SwaggerEndpoint(t *testing.T) {
	server := api.New(createTestConfig(), nil, api.Deps{})

	w := performRequest(server.Engine(), http.MethodGet, "/swagger/index.html", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(server.Engine(), http.MethodGet, "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/filtering/check")
}

func TestRoutes_NotFound(t *testing.T) {
	server := api.New(createTestConfig(), nil, api.Deps{})

	w := performRequest(server.Engine(), http.MethodGet, "/api/v1/nonexistent", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}
