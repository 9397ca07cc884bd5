package shim

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
)

//go:embed bootstrap.js.tmpl
var bootstrapSource string

var bootstrapTemplate = template.Must(template.New("bootstrap").Parse(bootstrapSource))

var bootstrap = sync.OnceValues(renderBootstrap)

// Bootstrap returns the page script that installs the same interceptors in a
// live browser. It is evaluated before any page script runs.
func Bootstrap() (string, error) {
	return bootstrap()
}

func renderBootstrap() (string, error) {
	data := map[string]any{
		"MaxWaitMs":        MaxWait.Milliseconds(),
		"MaxConsoleClears": maxConsoleClears,
		"MaxUnloadPrompts": maxUnloadPrompts,
	}
	for key, v := range map[string]any{
		"Detectors": DetectorGlobals,
		"Pinned":    PinnedGlobals,
		"Endpoints": TrackerEndpoints,
		"Cloaking":  CloakingHosts,
		"Detection": jsPattern(DetectionPattern),
		"Wait":      jsPattern(WaitPattern),
		"Warning":   jsPattern(WarningPattern),
	} {
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode %s: %w", key, err)
		}
		data[key] = string(raw)
	}

	var buf bytes.Buffer
	if err := bootstrapTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render bootstrap script: %w", err)
	}
	return buf.String(), nil
}

// jsPattern converts a case-insensitive Go pattern to a JS RegExp source.
// The JS side passes the "i" flag itself.
func jsPattern(re *regexp.Regexp) string {
	return strings.TrimPrefix(re.String(), "(?i)")
}
