package browser_test

import (
	"context"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/hydrablock/internal/browser"
	"github.com/jroosing/hydrablock/internal/cosmetic"
	"github.com/jroosing/hydrablock/internal/interceptor"
)

func TestResourceTypeFor(t *testing.T) {
	tests := []struct {
		in   proto.NetworkResourceType
		want interceptor.ResourceType
	}{
		{proto.NetworkResourceTypeDocument, interceptor.TypeMainFrame},
		{proto.NetworkResourceTypeScript, interceptor.TypeScript},
		{proto.NetworkResourceTypeImage, interceptor.TypeImage},
		{proto.NetworkResourceTypeXHR, interceptor.TypeXMLHTTPRequest},
		{proto.NetworkResourceTypeFetch, interceptor.TypeXMLHTTPRequest},
		{proto.NetworkResourceTypePing, interceptor.TypePing},
		{proto.NetworkResourceTypeWebSocket, interceptor.TypeWebSocket},
		{proto.NetworkResourceTypeManifest, interceptor.TypeOther},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, browser.ResourceTypeFor(tt.in))
		})
	}
}

func TestCosmeticScript(t *testing.T) {
	js, err := browser.CosmeticScript([]string{"#ad", `div[data-x="1"]`})
	require.NoError(t, err)
	assert.Contains(t, js, `const selectors = ["#ad","div[data-x=\"1\"]"];`)
	assert.Contains(t, js, cosmetic.BlockedAttr)

	js, err = browser.CosmeticScript(nil)
	require.NoError(t, err)
	assert.Contains(t, js, "const selectors = [];")
}

func TestPickerScript(t *testing.T) {
	start, err := browser.PickerScript(true)
	require.NoError(t, err)
	assert.Contains(t, start, browser.PickBinding)
	assert.Contains(t, start, cosmetic.PickerOverlayID)
	assert.Contains(t, start, cosmetic.HighlightStyle)
	assert.NotContains(t, start, "return false;")

	stop, err := browser.PickerScript(false)
	require.NoError(t, err)
	assert.Contains(t, stop, "return false;")
}

func TestHost_NotStarted(t *testing.T) {
	h := browser.NewHost(browser.Config{}, nil, nil, nil)

	_, err := h.Open(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, browser.ErrNotStarted)

	err = h.StartPicker(context.Background(), 1)
	assert.ErrorIs(t, err, browser.ErrUnknownTab)
	err = h.StopPicker(context.Background(), 7)
	assert.ErrorIs(t, err, browser.ErrUnknownTab)
	assert.ErrorIs(t, h.CloseTab(1), browser.ErrUnknownTab)

	assert.Empty(t, h.Tabs())
	assert.NoError(t, h.Close())
}
