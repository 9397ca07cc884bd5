package browser

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/jroosing/hydrablock/internal/cosmetic"
)

//go:embed cosmetic.js.tmpl
var cosmeticSource string

//go:embed picker.js.tmpl
var pickerSource string

var (
	cosmeticTemplate = template.Must(template.New("cosmetic").Parse(cosmeticSource))
	pickerTemplate   = template.Must(template.New("picker").Parse(pickerSource))
)

// PickBinding is the page function the picker calls with the picked
// element's domain and selector.
const PickBinding = "__hydrablockPick"

// CosmeticScript renders the page script that hides selectors and keeps
// hiding them as nodes are inserted.
func CosmeticScript(selectors []string) (string, error) {
	if selectors == nil {
		selectors = []string{}
	}
	raw, err := json.Marshal(selectors)
	if err != nil {
		return "", fmt.Errorf("failed to encode selectors: %w", err)
	}
	return render(cosmeticTemplate, map[string]any{
		"Selectors":   string(raw),
		"HiddenStyle": cosmetic.HiddenStyle,
		"BlockedAttr": cosmetic.BlockedAttr,
	})
}

// PickerScript renders the script that starts (start=true) or stops the
// element picker.
func PickerScript(start bool) (string, error) {
	return render(pickerTemplate, map[string]any{
		"Start":     start,
		"Binding":   PickBinding,
		"OverlayID": cosmetic.PickerOverlayID,
		"Highlight": cosmetic.HighlightStyle,
	})
}

func render(t *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s script: %w", t.Name(), err)
	}
	return buf.String(), nil
}
