package messaging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jroosing/hydrablock/internal/interceptor"
	"github.com/jroosing/hydrablock/internal/stats"
)

// Action names understood by the coordinator.
const (
	ActionGetStats            = "getStats"
	ActionToggleEnabled       = "toggleEnabled"
	ActionGetEnabled          = "getEnabled"
	ActionAddToWhitelist      = "addToWhitelist"
	ActionRemoveFromWhitelist = "removeFromWhitelist"
	ActionGetWhitelist        = "getWhitelist"
	ActionAddCustomFilter     = "addCustomFilter"
	ActionRemoveCustomFilter  = "removeCustomFilter"
	ActionUpdateCustomFilters = "updateCustomFilters"
	ActionGetCustomFilters    = "getCustomFilters"
	ActionAddDynamicRule      = "addDynamicRule"
	ActionRemoveDynamicRule   = "removeDynamicRule"
	ActionGetDynamicRules     = "getDynamicRules"
	ActionBlockDomain         = "blockDomain"
	ActionUnblockDomain       = "unblockDomain"
	ActionGetBlockedDomains   = "getBlockedDomains"
	ActionGetFilters          = "getFilters"
	ActionBlockElement        = "blockElement"
	ActionStartPicker         = "startPicker"
	ActionStopPicker          = "stopPicker"
	ActionResetStats          = "resetStats"
	ActionExportData          = "exportData"
	ActionImportData          = "importData"
	ActionToggleLogging       = "toggleLogging"
	ActionGetRequestLog       = "getRequestLog"
	ActionClearLog            = "clearLog"
	ActionCheckURL            = "checkUrl"
)

// UnknownActionError is the error text returned for unregistered actions.
const UnknownActionError = "Unknown action"

// =============================================================================
// Inputs
// =============================================================================

// DomainRequest carries a domain (whitelist, unblockDomain).
type DomainRequest struct {
	Domain string `json:"domain"`
}

// FilterRequest carries one custom filter.
type FilterRequest struct {
	Filter string `json:"filter"`
}

// FiltersRequest replaces the custom filter list.
type FiltersRequest struct {
	Filters []string `json:"filters"`
}

// DynamicRuleRequest installs a dynamic rule.
type DynamicRuleRequest struct {
	Pattern       string                     `json:"pattern"`
	ResourceTypes []interceptor.ResourceType `json:"resourceTypes,omitempty"`
	Action        string                     `json:"ruleAction,omitempty"`
}

// RuleIDRequest names a dynamic rule.
type RuleIDRequest struct {
	RuleID int `json:"ruleId"`
}

// URLRequest carries a page or request URL.
type URLRequest struct {
	URL          string                   `json:"url"`
	ResourceType interceptor.ResourceType `json:"resourceType,omitempty"`
}

// CosmeticRequest optionally narrows getFilters to one domain.
type CosmeticRequest struct {
	Domain string `json:"domain,omitempty"`
}

// BlockElementRequest persists a picker-derived selector.
type BlockElementRequest struct {
	Domain   string `json:"domain"`
	Selector string `json:"selector"`
}

// PickerRequest targets a tab for picker control.
type PickerRequest struct {
	TabID int `json:"tabId,omitempty"`
}

// LogRequest limits getRequestLog.
type LogRequest struct {
	Limit int `json:"limit,omitempty"`
}

// ImportRequest carries a previously exported state.
type ImportRequest struct {
	Data ExportData `json:"data"`
}

// =============================================================================
// Outputs
// =============================================================================

// SuccessResponse is the generic acknowledgement.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse is returned when an action fails or is unknown.
type ErrorResponse struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error"`
}

// EnabledResponse reports the interceptor state.
type EnabledResponse struct {
	Enabled bool `json:"enabled"`
}

// LoggingResponse reports the request-log state.
type LoggingResponse struct {
	LoggingEnabled bool `json:"loggingEnabled"`
}

// WhitelistResponse lists whitelist entries.
type WhitelistResponse struct {
	Whitelist []string `json:"whitelist"`
}

// FiltersResponse lists custom filters.
type FiltersResponse struct {
	Filters []string `json:"filters"`
}

// RuleResponse acknowledges addDynamicRule.
type RuleResponse struct {
	Success bool `json:"success"`
	ID      int  `json:"id,omitempty"`
}

// DynamicRulesResponse lists dynamic rules.
type DynamicRulesResponse struct {
	Rules []interceptor.DynamicRule `json:"rules"`
}

// DomainResponse acknowledges blockDomain.
type DomainResponse struct {
	Success bool   `json:"success"`
	Domain  string `json:"domain,omitempty"`
	RuleID  int    `json:"ruleId,omitempty"`
}

// BlockedDomain is the metadata kept for a blockDomain action.
type BlockedDomain struct {
	RuleID    int       `json:"ruleId"`
	AddedAt   time.Time `json:"addedAt"`
	SourceURL string    `json:"sourceUrl,omitempty"`
}

// BlockedDomainEntry pairs a domain with its metadata. It is encoded as a
// two-element array: ["example.com", {"ruleId": 1000001, ...}].
type BlockedDomainEntry struct {
	Domain string
	BlockedDomain
}

// MarshalJSON encodes the entry as a [domain, metadata] pair.
func (e BlockedDomainEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Domain, e.BlockedDomain})
}

// UnmarshalJSON decodes a [domain, metadata] pair. The object form
// {"domain": ..., "ruleId": ...} written by earlier versions is also accepted.
func (e *BlockedDomainEntry) UnmarshalJSON(b []byte) error {
	if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 && trimmed[0] == '{' {
		var legacy struct {
			Domain string `json:"domain"`
			BlockedDomain
		}
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return err
		}
		*e = BlockedDomainEntry{Domain: legacy.Domain, BlockedDomain: legacy.BlockedDomain}
		return nil
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("blocked domain entry: want [domain, metadata], got %d elements", len(pair))
	}
	var out BlockedDomainEntry
	if err := json.Unmarshal(pair[0], &out.Domain); err != nil {
		return fmt.Errorf("blocked domain entry: %w", err)
	}
	if err := json.Unmarshal(pair[1], &out.BlockedDomain); err != nil {
		return fmt.Errorf("blocked domain entry: %w", err)
	}
	*e = out
	return nil
}

// BlockedDomainsResponse lists blocked domains.
type BlockedDomainsResponse struct {
	Domains []BlockedDomainEntry `json:"blockedDomains"`
}

// CosmeticResponse maps domains to selectors.
type CosmeticResponse struct {
	Cosmetic map[string][]string `json:"cosmetic"`
}

// LogResponse returns request log entries, newest first.
type LogResponse struct {
	Log []stats.Entry `json:"log"`
}

// CheckResponse is a dry-run verdict.
type CheckResponse struct {
	URL      string `json:"url"`
	Blocked  bool   `json:"blocked"`
	Decision string `json:"decision"`
	RuleID   int    `json:"ruleId,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Category string `json:"category,omitempty"`
}

// ExportResponse wraps exported state.
type ExportResponse struct {
	Data ExportData `json:"data"`
}

// ExportData is the portable form of every persisted key.
type ExportData struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`

	// Fields left out of an import payload (nil) keep their current value.
	Stats          *stats.Counters           `json:"stats,omitempty"`
	Whitelist      []string                  `json:"whitelist"`
	CustomFilters  []string                  `json:"customFilters"`
	Enabled        *bool                     `json:"enabled,omitempty"`
	LoggingEnabled *bool                     `json:"loggingEnabled,omitempty"`
	DynamicRules   []interceptor.DynamicRule `json:"dynamicRules"`
	BlockedDomains []BlockedDomainEntry      `json:"blockedDomains"`
	CosmeticRules  map[string][]string       `json:"cosmeticRules"`
}

// ExportVersion is the current ExportData layout.
const ExportVersion = 1
