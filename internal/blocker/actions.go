package blocker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/publicsuffix"

	"github.com/jroosing/hydrablock/internal/filtering"
	"github.com/jroosing/hydrablock/internal/interceptor"
	"github.com/jroosing/hydrablock/internal/messaging"
	"github.com/jroosing/hydrablock/internal/stats"
	"github.com/jroosing/hydrablock/internal/storage"
)

var (
	// ErrInvalidURL is returned when a URL carries no hostname.
	ErrInvalidURL = errors.New("url has no hostname")

	// ErrEmptyDomain is returned for blank domains.
	ErrEmptyDomain = errors.New("domain is empty")

	// ErrEmptyFilter is returned for filters that normalize to nothing.
	ErrEmptyFilter = errors.New("filter is empty after normalization")

	// ErrInvalidSelector is returned for selectors that do not parse.
	ErrInvalidSelector = errors.New("invalid css selector")

	// ErrNoPicker is returned by picker actions when no page host is attached.
	ErrNoPicker = errors.New("no page host attached for the element picker")

	// ErrExportVersion is returned when importing data from a newer layout.
	ErrExportVersion = errors.New("unsupported export version")
)

// PickerHost starts and stops the element picker in a page.
type PickerHost interface {
	StartPicker(ctx context.Context, tabID int) error
	StopPicker(ctx context.Context, tabID int) error
}

// SetPickerHost attaches the page host used by startPicker and stopPicker.
func (b *Blocker) SetPickerHost(h PickerHost) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.picker = h
}

// =============================================================================
// State and stats
// =============================================================================

// Stats returns the ledger view.
func (b *Blocker) Stats() stats.View {
	return b.ledger.Snapshot()
}

// ToggleEnabled flips filtering and persists the new state.
func (b *Blocker) ToggleEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	enabled := b.interceptor.Toggle()
	b.saveLocked(storage.KeyEnabled)
	b.logger.Info("Filtering toggled", "enabled", enabled)
	return enabled
}

// SetEnabled sets filtering on or off and persists it.
func (b *Blocker) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interceptor.SetEnabled(enabled)
	b.saveLocked(storage.KeyEnabled)
}

// Enabled reports whether filtering is on.
func (b *Blocker) Enabled() bool {
	return b.interceptor.Enabled()
}

// ResetStats zeroes the counters and clears the log.
func (b *Blocker) ResetStats() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ledger.Reset()
	b.saveLocked(storage.KeyStats, storage.KeyRequestLog)
}

// ToggleLogging flips the request log and persists the new state.
func (b *Blocker) ToggleLogging() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	on := b.interceptor.ToggleLogging()
	b.saveLocked(storage.KeyLoggingEnabled)
	return on
}

// RequestLog returns up to limit entries, newest first.
func (b *Blocker) RequestLog(limit int) []stats.Entry {
	return b.ledger.Log(limit)
}

// ClearLog drops the request log.
func (b *Blocker) ClearLog() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ledger.ClearLog()
	b.saveLocked(storage.KeyRequestLog)
}

// CheckURL evaluates url without counting or logging it.
func (b *Blocker) CheckURL(rawURL string, rt interceptor.ResourceType) messaging.CheckResponse {
	res := b.interceptor.Evaluate(interceptor.Request{URL: rawURL, ResourceType: rt})
	return messaging.CheckResponse{
		URL:      rawURL,
		Blocked:  res.Blocked(),
		Decision: res.Decision.String(),
		RuleID:   res.RuleID,
		Pattern:  res.Pattern,
		Reason:   res.Reason,
		Category: string(res.Category),
	}
}

// =============================================================================
// Whitelist and custom filters
// =============================================================================

// AddToWhitelist adds domain. It reports whether the whitelist changed.
func (b *Blocker) AddToWhitelist(domain string) (bool, error) {
	if strings.TrimSpace(domain) == "" {
		return false, ErrEmptyDomain
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	changed := b.store.AddToWhitelist(domain)
	if changed {
		b.saveLocked(storage.KeyWhitelist)
	}
	return changed, nil
}

// RemoveFromWhitelist removes domain. It reports whether the whitelist changed.
func (b *Blocker) RemoveFromWhitelist(domain string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed := b.store.RemoveFromWhitelist(domain)
	if changed {
		b.saveLocked(storage.KeyWhitelist)
	}
	return changed
}

// Whitelist returns the whitelist.
func (b *Blocker) Whitelist() []string {
	return b.store.Whitelist()
}

// AddCustomFilter adds one user pattern. Adding a present pattern is a no-op.
func (b *Blocker) AddCustomFilter(pattern string) (bool, error) {
	if filtering.Normalize(pattern) == "" {
		return false, ErrEmptyFilter
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, changed := b.store.AddCustomFilter(pattern)
	if changed {
		b.saveLocked(storage.KeyCustomFilters)
	}
	return changed, nil
}

// RemoveCustomFilter removes one user pattern.
func (b *Blocker) RemoveCustomFilter(pattern string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed := b.store.RemoveCustomFilter(pattern)
	if changed {
		b.saveLocked(storage.KeyCustomFilters)
	}
	return changed
}

// UpdateCustomFilters replaces the user patterns.
func (b *Blocker) UpdateCustomFilters(patterns []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store.SetCustomFilters(patterns)
	b.saveLocked(storage.KeyCustomFilters)
}

// CustomFilters returns the user patterns in insertion order.
func (b *Blocker) CustomFilters() []string {
	return b.store.CustomFilters()
}

// =============================================================================
// Dynamic rules and blocked domains
// =============================================================================

// AddDynamicRule installs a rule.
func (b *Blocker) AddDynamicRule(pattern string, types []interceptor.ResourceType, action interceptor.Action) (interceptor.DynamicRule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.interceptor.AddDynamicRule(pattern, types, action)
	if err != nil {
		return interceptor.DynamicRule{}, err
	}
	b.saveLocked(storage.KeyDynamicRules)
	return r, nil
}

// RemoveDynamicRule removes exactly the rule with id, together with any
// blocked-domain entry it backs.
func (b *Blocker) RemoveDynamicRule(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.interceptor.RemoveDynamicRule(id) {
		return false
	}
	for d, meta := range b.blocked {
		if meta.RuleID == id {
			delete(b.blocked, d)
		}
	}
	b.saveLocked(storage.KeyDynamicRules, storage.KeyBlockedDomains)
	return true
}

// DynamicRules returns the installed rules in ascending id order.
func (b *Blocker) DynamicRules() []interceptor.DynamicRule {
	return b.interceptor.DynamicRules()
}

// RegistrableDomain returns the eTLD+1 of rawURL's host, or the host itself
// when it has no public suffix (IP addresses, localhost).
func RegistrableDomain(rawURL string) (string, error) {
	host := filtering.Hostname(rawURL)
	if host == "" {
		return "", ErrInvalidURL
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil
	}
	return domain, nil
}

// BlockDomain blocks every request to the registrable domain of rawURL with a
// "||domain^" dynamic rule. Blocking an already blocked domain returns the
// existing rule.
func (b *Blocker) BlockDomain(rawURL string) (string, int, error) {
	domain, err := RegistrableDomain(rawURL)
	if err != nil {
		return "", 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if meta, ok := b.blocked[domain]; ok {
		return domain, meta.RuleID, nil
	}

	r, err := b.interceptor.AddDynamicRule("||"+domain+"^", nil, interceptor.ActionBlock)
	if err != nil {
		return "", 0, fmt.Errorf("failed to block %s: %w", domain, err)
	}
	b.blocked[domain] = messaging.BlockedDomain{
		RuleID:    r.ID,
		AddedAt:   time.Now().UTC(),
		SourceURL: rawURL,
	}
	b.saveLocked(storage.KeyDynamicRules, storage.KeyBlockedDomains)
	b.logger.Info("Domain blocked", "domain", domain, "rule_id", r.ID)
	return domain, r.ID, nil
}

// UnblockDomain removes a blocked domain and its rule.
func (b *Blocker) UnblockDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))

	b.mu.Lock()
	defer b.mu.Unlock()
	meta, ok := b.blocked[domain]
	if !ok {
		return false
	}
	b.interceptor.RemoveDynamicRule(meta.RuleID)
	delete(b.blocked, domain)
	b.saveLocked(storage.KeyDynamicRules, storage.KeyBlockedDomains)
	return true
}

// BlockedDomains returns the blocked domains sorted by name.
func (b *Blocker) BlockedDomains() []messaging.BlockedDomainEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blockedEntriesLocked()
}

// =============================================================================
// Cosmetic rules and picker
// =============================================================================

// CosmeticFilters returns the cosmetic map. With a domain it returns only the
// selectors that apply to that domain, keyed by it.
func (b *Blocker) CosmeticFilters(domain string) map[string][]string {
	if domain == "" {
		return b.store.CosmeticMap()
	}
	return map[string][]string{domain: b.store.CosmeticSelectorsFor(domain)}
}

// BlockElement persists a picker-derived selector for domain.
func (b *Blocker) BlockElement(domain, selector string) error {
	selector = strings.TrimSpace(selector)
	if _, err := cascadia.ParseGroup(selector); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSelector, selector, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.store.AddCosmetic(domain, selector) {
		b.saveLocked(storage.KeyCosmeticRules)
	}
	return nil
}

// StartPicker asks the page host to start the picker in tabID.
func (b *Blocker) StartPicker(ctx context.Context, tabID int) error {
	b.mu.Lock()
	h := b.picker
	b.mu.Unlock()
	if h == nil {
		return ErrNoPicker
	}
	return h.StartPicker(ctx, tabID)
}

// StopPicker asks the page host to stop the picker in tabID.
func (b *Blocker) StopPicker(ctx context.Context, tabID int) error {
	b.mu.Lock()
	h := b.picker
	b.mu.Unlock()
	if h == nil {
		return ErrNoPicker
	}
	return h.StopPicker(ctx, tabID)
}

// =============================================================================
// Export and import
// =============================================================================

// Export returns every persisted setting and the counters.
func (b *Blocker) Export() messaging.ExportData {
	b.mu.Lock()
	defer b.mu.Unlock()
	counters := b.ledger.Snapshot().Counters
	enabled := b.interceptor.Enabled()
	logging := b.interceptor.LoggingEnabled()
	return messaging.ExportData{
		Version:        messaging.ExportVersion,
		ExportedAt:     time.Now().UTC(),
		Stats:          &counters,
		Whitelist:      b.store.Whitelist(),
		CustomFilters:  b.store.CustomFilters(),
		Enabled:        &enabled,
		LoggingEnabled: &logging,
		DynamicRules:   b.interceptor.DynamicRules(),
		BlockedDomains: b.blockedEntriesLocked(),
		CosmeticRules:  b.store.UserCosmetic(),
	}
}

// Import applies the sections present in data and persists them. Absent
// sections keep their current value.
func (b *Blocker) Import(data messaging.ExportData) error {
	if data.Version > messaging.ExportVersion {
		return fmt.Errorf("%w: %d", ErrExportVersion, data.Version)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var keys []string
	if data.Stats != nil {
		b.ledger.Restore(*data.Stats)
		keys = append(keys, storage.KeyStats)
	}
	if data.Whitelist != nil {
		b.store.SetWhitelist(data.Whitelist)
		keys = append(keys, storage.KeyWhitelist)
	}
	if data.CustomFilters != nil {
		b.store.SetCustomFilters(data.CustomFilters)
		keys = append(keys, storage.KeyCustomFilters)
	}
	if data.Enabled != nil {
		b.interceptor.SetEnabled(*data.Enabled)
		keys = append(keys, storage.KeyEnabled)
	}
	if data.LoggingEnabled != nil {
		b.interceptor.SetLogging(*data.LoggingEnabled)
		keys = append(keys, storage.KeyLoggingEnabled)
	}
	if data.DynamicRules != nil {
		b.interceptor.SetDynamicRules(data.DynamicRules)
		keys = append(keys, storage.KeyDynamicRules)
	}
	if data.BlockedDomains != nil || data.DynamicRules != nil {
		entries := data.BlockedDomains
		if entries == nil {
			entries = b.blockedEntriesLocked()
		}
		// Re-applied after rule changes so entries without a rule drop out.
		b.setBlockedLocked(entries)
		keys = append(keys, storage.KeyBlockedDomains)
	}
	if data.CosmeticRules != nil {
		b.store.SetUserCosmetic(data.CosmeticRules)
		keys = append(keys, storage.KeyCosmeticRules)
	}
	b.saveLocked(keys...)

	b.logger.Info("Imported state", "keys", keys)
	return nil
}
