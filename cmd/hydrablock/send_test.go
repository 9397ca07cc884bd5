package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPayload(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		pairs   []string
		want    string
		wantErr bool
	}{
		{"empty", "", nil, `{}`, false},
		{"string value", "", []string{"domain=example.com"}, `{"domain":"example.com"}`, false},
		{"typed values", "", []string{"limit=20", "enabled=false"}, `{"enabled":false,"limit":20}`, false},
		{"data merged", `{"pattern":"ads."}`, []string{"resourceTypes=[\"script\"]"}, `{"pattern":"ads.","resourceTypes":["script"]}`, false},
		{"pair overrides data", `{"limit":1}`, []string{"limit=5"}, `{"limit":5}`, false},
		{"bad pair", "", []string{"nokey"}, "", true},
		{"empty key", "", []string{"=v"}, "", true},
		{"data not object", `[1]`, nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildPayload(tt.data, tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			raw, err := json.Marshal(got)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "browse", "send", "check", "filter-html"} {
		assert.True(t, names[want], want)
	}
}
