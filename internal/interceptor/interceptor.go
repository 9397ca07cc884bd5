// Package interceptor decides, per outbound request, whether it is blocked.
//
// An Interceptor is either Enabled or Disabled and only changes state on an
// explicit toggle. When enabled it consults, in order: the whitelist, the
// dynamic rules (highest id first) and finally the static pattern store.
// Blocks are counted in the stats ledger before Intercept returns.
package interceptor

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jroosing/hydrablock/internal/filtering"
	"github.com/jroosing/hydrablock/internal/stats"
)

// DynamicRuleIDBase is the first dynamic rule id. Static and custom rule ids
// stay below it.
const DynamicRuleIDBase = 1_000_000

// ErrEmptyPattern is returned for patterns that normalize to nothing.
var ErrEmptyPattern = errors.New("pattern is empty after normalization")

// Matcher answers static block decisions.
type Matcher interface {
	Match(url string) filtering.Verdict
	IsWhitelisted(host string) bool
}

// Ledger receives block counts and log entries.
type Ledger interface {
	Increment(category stats.Category)
	Record(e stats.Entry)
	Analyzed()
}

// Observer is notified of every decision (metrics).
type Observer interface {
	ObserveDecision(req Request, res Result)
}

// Config configures an Interceptor.
type Config struct {
	Matcher Matcher
	Ledger  Ledger

	// Logger is used for interceptor log output. If nil, the default logger is used.
	Logger *slog.Logger

	// Observer, if set, sees every decision.
	Observer Observer

	// OnBlock runs after a block has been counted, e.g. to schedule persistence.
	OnBlock func()

	// Enabled is the initial state.
	Enabled bool

	// LogRequests enables the request log initially.
	LogRequests bool
}

// Interceptor is the request-level filter.
//
// Thread-safe for concurrent use.
type Interceptor struct {
	matcher  Matcher
	ledger   Ledger
	logger   *slog.Logger
	observer Observer
	onBlock  func()

	enabled atomic.Bool
	logging atomic.Bool

	mu     sync.RWMutex
	rules  []DynamicRule // sorted by descending id
	norm   map[int]string
	nextID int
}

// New creates an Interceptor.
func New(cfg Config) *Interceptor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ic := &Interceptor{
		matcher:  cfg.Matcher,
		ledger:   cfg.Ledger,
		logger:   logger,
		observer: cfg.Observer,
		onBlock:  cfg.OnBlock,
		norm:     make(map[int]string),
		nextID:   DynamicRuleIDBase,
	}
	ic.enabled.Store(cfg.Enabled)
	ic.logging.Store(cfg.LogRequests)
	return ic
}

// Intercept decides req and applies the block side effects: the ledger is
// incremented, the request log appended (when logging is on), the observer
// notified and OnBlock invoked, all before returning.
func (ic *Interceptor) Intercept(req Request) Result {
	res := ic.Evaluate(req)

	if res.Reason != ReasonDisabled && ic.ledger != nil {
		ic.ledger.Analyzed()
	}

	if res.Blocked() {
		if ic.ledger != nil {
			ic.ledger.Increment(res.Category)
			if ic.logging.Load() {
				ic.ledger.Record(stats.Entry{
					Timestamp:     time.Now(),
					URL:           req.URL,
					Type:          string(req.ResourceType),
					MatchedRuleID: res.RuleID,
					TabID:         req.TabID,
				})
			}
		}
		ic.logger.Debug("Request blocked",
			"url", req.URL,
			"type", req.ResourceType,
			"rule_id", res.RuleID,
			"reason", res.Reason)
	}

	if ic.observer != nil {
		ic.observer.ObserveDecision(req, res)
	}
	if res.Blocked() && ic.onBlock != nil {
		ic.onBlock()
	}
	return res
}

// Evaluate computes the decision for req without side effects.
func (ic *Interceptor) Evaluate(req Request) Result {
	if !ic.enabled.Load() {
		return Result{Decision: Allow, Reason: ReasonDisabled}
	}
	req.ResourceType = NormalizeType(string(req.ResourceType))

	if ic.matcher != nil && ic.matcher.IsWhitelisted(filtering.Hostname(req.URL)) {
		return Result{Decision: Allow, Reason: ReasonWhitelist}
	}

	if rule, ok := ic.matchDynamic(req); ok {
		res := Result{Decision: Allow, RuleID: rule.ID, Pattern: rule.Pattern, Reason: ReasonDynamicRule}
		if rule.Action == ActionBlock {
			res.Decision = Block
			res.Category = CategoryFor(req.ResourceType)
		}
		return res
	}

	if ic.matcher == nil {
		return Result{Decision: Allow}
	}
	v := ic.matcher.Match(req.URL)
	if !v.Block {
		return Result{Decision: Allow, RuleID: v.RuleID, Pattern: v.Pattern, Reason: v.Reason}
	}
	return Result{
		Decision: Block,
		RuleID:   v.RuleID,
		Pattern:  v.Pattern,
		Reason:   v.Reason,
		Category: CategoryFor(req.ResourceType),
	}
}

func (ic *Interceptor) matchDynamic(req Request) (DynamicRule, bool) {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	if len(ic.rules) == 0 {
		return DynamicRule{}, false
	}

	lower := strings.ToLower(req.URL)
	for _, r := range ic.rules {
		if r.appliesTo(req.ResourceType) && strings.Contains(lower, ic.norm[r.ID]) {
			return r, true
		}
	}
	return DynamicRule{}, false
}

// =============================================================================
// State
// =============================================================================

// Enabled reports whether filtering is on.
func (ic *Interceptor) Enabled() bool {
	return ic.enabled.Load()
}

// SetEnabled switches filtering on or off.
func (ic *Interceptor) SetEnabled(enabled bool) {
	ic.enabled.Store(enabled)
}

// Toggle flips the enabled state and returns the new state.
func (ic *Interceptor) Toggle() bool {
	for {
		old := ic.enabled.Load()
		if ic.enabled.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// LoggingEnabled reports whether blocked requests are appended to the log.
func (ic *Interceptor) LoggingEnabled() bool {
	return ic.logging.Load()
}

// SetLogging switches the request log on or off.
func (ic *Interceptor) SetLogging(enabled bool) {
	ic.logging.Store(enabled)
}

// ToggleLogging flips the request-log state and returns the new state.
func (ic *Interceptor) ToggleLogging() bool {
	for {
		old := ic.logging.Load()
		if ic.logging.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// =============================================================================
// Dynamic rules
// =============================================================================

// AddDynamicRule installs a rule and returns it with its assigned id.
func (ic *Interceptor) AddDynamicRule(pattern string, types []ResourceType, action Action) (DynamicRule, error) {
	normalized := filtering.Normalize(pattern)
	if normalized == "" {
		return DynamicRule{}, ErrEmptyPattern
	}

	ic.mu.Lock()
	defer ic.mu.Unlock()

	r := DynamicRule{
		ID:            ic.nextID,
		Pattern:       strings.TrimSpace(pattern),
		ResourceTypes: normalizeTypes(types),
		Action:        action,
	}
	ic.nextID++
	ic.insertLocked(r, normalized)
	return r, nil
}

// RemoveDynamicRule removes exactly the rule with id. It reports whether a
// rule was removed.
func (ic *Interceptor) RemoveDynamicRule(id int) bool {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	for i, r := range ic.rules {
		if r.ID == id {
			ic.rules = append(ic.rules[:i], ic.rules[i+1:]...)
			delete(ic.norm, id)
			return true
		}
	}
	return false
}

// DynamicRules returns the installed rules in ascending id order.
func (ic *Interceptor) DynamicRules() []DynamicRule {
	ic.mu.RLock()
	defer ic.mu.RUnlock()

	out := make([]DynamicRule, len(ic.rules))
	for i, r := range ic.rules {
		r.ResourceTypes = append([]ResourceType(nil), r.ResourceTypes...)
		out[len(ic.rules)-1-i] = r
	}
	return out
}

// SetDynamicRules replaces every dynamic rule, keeping their ids. Rules with
// empty patterns or duplicate ids are dropped. The id counter continues above
// the highest restored id.
func (ic *Interceptor) SetDynamicRules(rules []DynamicRule) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	ic.rules = ic.rules[:0]
	ic.norm = make(map[int]string, len(rules))
	ic.nextID = DynamicRuleIDBase

	for _, r := range rules {
		normalized := filtering.Normalize(r.Pattern)
		if normalized == "" {
			continue
		}
		if _, dup := ic.norm[r.ID]; dup {
			continue
		}
		r.ResourceTypes = normalizeTypes(r.ResourceTypes)
		ic.insertLocked(r, normalized)
		if r.ID >= ic.nextID {
			ic.nextID = r.ID + 1
		}
	}
}

func (ic *Interceptor) insertLocked(r DynamicRule, normalized string) {
	ic.norm[r.ID] = normalized
	ic.rules = append(ic.rules, r)
	sort.Slice(ic.rules, func(i, j int) bool { return ic.rules[i].ID > ic.rules[j].ID })
}

func normalizeTypes(types []ResourceType) []ResourceType {
	if len(types) == 0 {
		return nil
	}
	out := make([]ResourceType, 0, len(types))
	seen := make(map[ResourceType]struct{}, len(types))
	for _, t := range types {
		t = NormalizeType(string(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
