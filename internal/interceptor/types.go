package interceptor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jroosing/hydrablock/internal/stats"
)

// ResourceType is the browser's classification of a request.
type ResourceType string

// Resource types reported by the browser hosts.
const (
	TypeMainFrame      ResourceType = "main_frame"
	TypeSubFrame       ResourceType = "sub_frame"
	TypeStylesheet     ResourceType = "stylesheet"
	TypeScript         ResourceType = "script"
	TypeImage          ResourceType = "image"
	TypeFont           ResourceType = "font"
	TypeObject         ResourceType = "object"
	TypeXMLHTTPRequest ResourceType = "xmlhttprequest"
	TypePing           ResourceType = "ping"
	TypeBeacon         ResourceType = "beacon"
	TypeMedia          ResourceType = "media"
	TypeWebSocket      ResourceType = "websocket"
	TypeOther          ResourceType = "other"
)

// NormalizeType lower-cases and trims a resource type name.
func NormalizeType(s string) ResourceType {
	return ResourceType(strings.ToLower(strings.TrimSpace(s)))
}

// CategoryFor maps a resource type to the stats bucket it is counted in.
// Unlisted types count as ads.
func CategoryFor(rt ResourceType) stats.Category {
	switch rt {
	case TypeScript:
		return stats.CategoryScripts
	case TypeImage, TypeMedia:
		return stats.CategoryAds
	case TypeXMLHTTPRequest, TypeBeacon, TypePing:
		return stats.CategoryTrackers
	default:
		return stats.CategoryAds
	}
}

// Request is one outbound request seen by the browser.
type Request struct {
	URL          string       `json:"url"`
	ResourceType ResourceType `json:"resourceType"`
	TabID        int          `json:"tabId"`
}

// Decision is the interceptor's verdict for a request.
type Decision int

const (
	// Allow lets the request proceed.
	Allow Decision = iota
	// Block aborts the request.
	Block
)

// String returns a string representation of the decision.
func (d Decision) String() string {
	if d == Block {
		return "block"
	}
	return "allow"
}

// MarshalJSON encodes the decision by name.
func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Reasons reported in Result.
const (
	ReasonDisabled    = "disabled"
	ReasonWhitelist   = "whitelist"
	ReasonDynamicRule = "dynamic_rule"
)

// Result describes why a decision was made.
type Result struct {
	Decision Decision       `json:"decision"`
	RuleID   int            `json:"ruleId,omitempty"`
	Pattern  string         `json:"pattern,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Category stats.Category `json:"category,omitempty"`
}

// Blocked reports whether the request is blocked.
func (r Result) Blocked() bool {
	return r.Decision == Block
}

// Action is what a dynamic rule does on match.
type Action int

const (
	// ActionBlock blocks matching requests.
	ActionBlock Action = iota
	// ActionAllow allows matching requests, overriding static lists.
	ActionAllow
)

// String returns a string representation of the action.
func (a Action) String() string {
	if a == ActionAllow {
		return "allow"
	}
	return "block"
}

// ParseAction converts "block"/"allow" to an Action. Empty means block.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return ActionBlock, nil
	case "allow":
		return ActionAllow, nil
	default:
		return ActionBlock, fmt.Errorf("invalid action %q (must be block or allow)", s)
	}
}

// MarshalJSON encodes the action by name.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes an action name.
func (a *Action) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// DynamicRule is a runtime rule layered above the static lists.
type DynamicRule struct {
	ID            int            `json:"id"`
	Pattern       string         `json:"pattern"`
	ResourceTypes []ResourceType `json:"resourceTypes,omitempty"`
	Action        Action         `json:"action"`
}

// appliesTo reports whether the rule covers rt. An empty set covers all types.
func (r DynamicRule) appliesTo(rt ResourceType) bool {
	if len(r.ResourceTypes) == 0 {
		return true
	}
	for _, t := range r.ResourceTypes {
		if t == rt {
			return true
		}
	}
	return false
}
