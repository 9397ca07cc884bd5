package blocker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/jroosing/hydrablock/internal/interceptor"
	"github.com/jroosing/hydrablock/internal/messaging"
	"github.com/jroosing/hydrablock/internal/stats"
	"github.com/jroosing/hydrablock/internal/storage"
)

// restore loads every persisted key. Missing keys fall back to the
// configured defaults, and so do keys that cannot be read or decoded: a bad
// value is logged and overwritten by the next save.
func (b *Blocker) restore() {
	if b.db == nil {
		b.store.SetWhitelist(b.cfg.Filtering.Whitelist)
		b.store.SetCustomFilters(b.cfg.Filtering.CustomFilters)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var counters stats.Counters
	if load(b, storage.KeyStats, &counters) {
		b.ledger.Restore(counters)
	}

	var log []stats.Entry
	if load(b, storage.KeyRequestLog, &log) {
		b.ledger.RestoreLog(log)
	}

	whitelist := slices.Clone(b.cfg.Filtering.Whitelist)
	load(b, storage.KeyWhitelist, &whitelist)
	b.store.SetWhitelist(whitelist)

	custom := slices.Clone(b.cfg.Filtering.CustomFilters)
	load(b, storage.KeyCustomFilters, &custom)
	b.store.SetCustomFilters(custom)

	enabled := b.cfg.Enabled
	load(b, storage.KeyEnabled, &enabled)
	b.interceptor.SetEnabled(enabled)

	logging := b.cfg.LogRequests
	load(b, storage.KeyLoggingEnabled, &logging)
	b.interceptor.SetLogging(logging)

	var rules []interceptor.DynamicRule
	load(b, storage.KeyDynamicRules, &rules)
	b.interceptor.SetDynamicRules(rules)

	var domains []messaging.BlockedDomainEntry
	load(b, storage.KeyBlockedDomains, &domains)
	b.setBlockedLocked(domains)

	var cosmetic map[string][]string
	load(b, storage.KeyCosmeticRules, &cosmetic)
	b.store.SetUserCosmetic(cosmetic)

	b.logger.Info("Restored persisted state",
		"whitelist", len(whitelist),
		"custom_filters", len(custom),
		"dynamic_rules", len(rules),
		"blocked_domains", len(domains),
		"enabled", enabled)
}

// load reads key into dst and reports whether it did. dst is left untouched
// when the key is absent or unreadable.
func load[T any](b *Blocker, key string, dst *T) bool {
	var v T
	err := b.db.Get(key, &v)
	switch {
	case err == nil:
		*dst = v
		return true
	case errors.Is(err, storage.ErrNotFound):
		return false
	default:
		b.logger.Warn("Ignoring unreadable persisted value", "key", key, "error", err)
		return false
	}
}

// setBlockedLocked replaces the blocked-domain map, dropping entries whose
// dynamic rule no longer exists.
func (b *Blocker) setBlockedLocked(entries []messaging.BlockedDomainEntry) {
	rules := make(map[int]struct{})
	for _, r := range b.interceptor.DynamicRules() {
		rules[r.ID] = struct{}{}
	}
	b.blocked = make(map[string]messaging.BlockedDomain, len(entries))
	for _, e := range entries {
		if _, ok := rules[e.RuleID]; !ok || e.Domain == "" {
			continue
		}
		b.blocked[e.Domain] = e.BlockedDomain
	}
}

func (b *Blocker) blockedEntriesLocked() []messaging.BlockedDomainEntry {
	out := make([]messaging.BlockedDomainEntry, 0, len(b.blocked))
	for d, meta := range b.blocked {
		out = append(out, messaging.BlockedDomainEntry{Domain: d, BlockedDomain: meta})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// valueLocked returns the current state for a persisted key. Callers hold b.mu.
func (b *Blocker) valueLocked(key string) any {
	switch key {
	case storage.KeyStats:
		return b.ledger.Snapshot().Counters
	case storage.KeyRequestLog:
		return b.ledger.Log(0)
	case storage.KeyWhitelist:
		return b.store.Whitelist()
	case storage.KeyCustomFilters:
		return b.store.CustomFilters()
	case storage.KeyEnabled:
		return b.interceptor.Enabled()
	case storage.KeyLoggingEnabled:
		return b.interceptor.LoggingEnabled()
	case storage.KeyDynamicRules:
		return b.interceptor.DynamicRules()
	case storage.KeyBlockedDomains:
		return b.blockedEntriesLocked()
	case storage.KeyCosmeticRules:
		return b.store.UserCosmetic()
	default:
		return nil
	}
}

// saveLocked writes keys immediately. Failures are logged; the in-memory
// state stays authoritative.
func (b *Blocker) saveLocked(keys ...string) {
	b.publishRuleCounts()
	if b.db == nil || len(keys) == 0 {
		return
	}
	values := make(map[string]any, len(keys))
	for _, k := range keys {
		values[k] = b.valueLocked(k)
	}
	if err := b.db.SetMany(values); err != nil {
		b.logger.Warn("Failed to persist settings", "keys", keys, "error", err)
	}
}

// flushStats is the debounced writer for counters and the request log.
func (b *Blocker) flushStats(_ context.Context) error {
	if b.db == nil {
		return nil
	}
	err := b.db.SetMany(map[string]any{
		storage.KeyStats:      b.ledger.Snapshot().Counters,
		storage.KeyRequestLog: b.ledger.Log(0),
	})
	if b.metrics != nil {
		b.metrics.ObserveFlush(err)
	}
	if err != nil {
		return fmt.Errorf("failed to persist stats: %w", err)
	}
	return nil
}
