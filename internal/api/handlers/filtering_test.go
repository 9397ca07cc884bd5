package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/hydrablock/internal/api/models"
	"github.com/jroosing/hydrablock/internal/interceptor"
	"github.com/jroosing/hydrablock/internal/messaging"
)

// ============================================================================
// Whitelist Endpoint Tests
// ============================================================================

func TestWhitelist_AddListRemove(t *testing.T) {
	h, b := createWiredHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodPost, "/filtering/whitelist", `{"domains":["example.com","news.org","example.com"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[models.ListChangeResponse](t, w).Changed)

	w = performRequest(router, http.MethodGet, "/filtering/whitelist", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[models.DomainListResponse](t, w)
	assert.Equal(t, 2, list.Count)
	assert.ElementsMatch(t, []string{"example.com", "news.org"}, list.Domains)

	// Whitelisting the parent domain lets its ad host through.
	assert.False(t, b.Intercept(interceptor.Request{URL: "https://ads.example.com/x", ResourceType: interceptor.TypeImage}).Blocked())

	w = performRequest(router, http.MethodDelete, "/filtering/whitelist", `{"domains":["example.com","missing.net"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.ListChangeResponse](t, w).Changed)
	assert.Equal(t, []string{"news.org"}, b.Whitelist())
}

func TestWhitelist_InvalidRequest(t *testing.T) {
	h, _ := createWiredHandler(t)
	router := setupTestRouter(h)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{bad`},
		{"missing domains", `{}`},
		{"empty domains", `{"domains":[]}`},
		{"blank domain", `{"domains":["  "]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(router, http.MethodPost, "/filtering/whitelist", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

// ============================================================================
// Custom Filter Endpoint Tests
// ============================================================================

func TestCustomFilters_AddListRemove(t *testing.T) {
	h, b := createWiredHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodPost, "/filtering/custom", `{"filters":["tracker.example.net","/pixel.gif"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[models.ListChangeResponse](t, w).Changed)
	assert.True(t, b.Intercept(interceptor.Request{URL: "https://tracker.example.net/t.js", ResourceType: interceptor.TypeScript}).Blocked())

	w = performRequest(router, http.MethodGet, "/filtering/custom", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[models.FilterListResponse](t, w).Count)

	w = performRequest(router, http.MethodDelete, "/filtering/custom", `{"filters":["tracker.example.net"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.ListChangeResponse](t, w).Changed)
	assert.False(t, b.Intercept(interceptor.Request{URL: "https://tracker.example.net/t.js", ResourceType: interceptor.TypeScript}).Blocked())
}

func TestCustomFilters_EmptyPattern(t *testing.T) {
	h, _ := createWiredHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodPost, "/filtering/custom", `{"filters":["   "]}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ============================================================================
// Enabled, Cosmetic and Check Endpoint Tests
// ============================================================================

func TestSetFilteringEnabled(t *testing.T) {
	h, b := createWiredHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodPut, "/filtering/enabled", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, b.Enabled())
	assert.False(t, b.Intercept(interceptor.Request{URL: "https://ads.example.com/x", ResourceType: interceptor.TypeImage}).Blocked())

	w = performRequest(router, http.MethodPut, "/filtering/enabled", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, b.Enabled())
}

func TestSetFilteringEnabled_InvalidRequest(t *testing.T) {
	h, _ := createWiredHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodPut, "/filtering/enabled", `{"enabled":"maybe"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCosmetic(t *testing.T) {
	h, _ := createWiredHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodGet, "/filtering/cosmetic", "")
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[models.CosmeticResponse](t, w).Cosmetic
	assert.Contains(t, all["*"], ".sponsored")
	assert.Contains(t, all["example.org"], ".banner")

	w = performRequest(router, http.MethodGet, "/filtering/cosmetic?domain=example.org", "")
	require.Equal(t, http.StatusOK, w.Code)
	narrowed := decode[models.CosmeticResponse](t, w).Cosmetic
	require.Len(t, narrowed, 1)
	assert.Contains(t, narrowed["example.org"], ".banner")
}

func TestCheckURL(t *testing.T) {
	h, b := createWiredHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodPost, "/filtering/check", `{"url":"https://ads.example.com/banner.png","type":"IMAGE"}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[messaging.CheckResponse](t, w)
	assert.True(t, resp.Blocked)
	assert.Positive(t, resp.RuleID)

	w = performRequest(router, http.MethodPost, "/filtering/check", `{"url":"https://example.net/"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[messaging.CheckResponse](t, w).Blocked)

	// Dry runs are neither counted nor logged.
	assert.Zero(t, b.Stats().RequestsAnalyzed)
	assert.Zero(t, b.Stats().LogSize)
}

func TestCheckURL_MissingURL(t *testing.T) {
	h, _ := createWiredHandler(t)
	router := setupTestRouter(h)

	w := performRequest(router, http.MethodPost, "/filtering/check", `{"type":"script"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
