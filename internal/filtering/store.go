package filtering

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// CustomRuleIDBase is the first id handed to user custom filters. Static list
// rules are numbered from 1 and stay below it.
const CustomRuleIDBase = 500_000

// Verdict reasons.
const (
	ReasonNone      = ""
	ReasonWhitelist = "whitelist"
	ReasonAllowRule = "allow_rule"
	ReasonPattern   = "pattern"
	ReasonCustom    = "custom"
)

// Verdict is the outcome of matching one URL.
type Verdict struct {
	Block   bool
	RuleID  int
	Pattern string
	Reason  string
}

// Source is one filter list input. Exactly one of Text, Path or URL is used,
// in that order of preference.
type Source struct {
	Name   string
	Text   string
	Path   string
	URL    string
	Format ListFormat
}

// location returns a printable origin for logging.
func (s Source) location() string {
	switch {
	case s.Text != "":
		return "inline"
	case s.Path != "":
		return s.Path
	default:
		return s.URL
	}
}

// ListSource tracks metadata about a loaded filter list.
type ListSource struct {
	Name       string    `json:"name"`
	Location   string    `json:"location"`
	Format     string    `json:"format"`
	LastUpdate time.Time `json:"last_update"`
	LastError  string    `json:"last_error,omitempty"`
	RuleCount  int       `json:"rule_count"`
	Skipped    int       `json:"skipped"`
}

// LoadResult summarises a Load call.
type LoadResult struct {
	Rules    int
	Cosmetic int
	Skipped  int
	Failed   []string
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Logger is used for store log output. If nil, the default logger is used.
	Logger *slog.Logger

	// Parser is used to read sources. If nil, NewParser() is used.
	Parser *Parser

	// CacheSize is the maximum number of memoised verdicts. Zero disables
	// the verdict cache.
	CacheSize int64
}

// Store owns compiled block/allow patterns, the whitelist and the cosmetic
// selector map, and answers per-URL block decisions.
//
// Thread-safe for concurrent use.
type Store struct {
	logger *slog.Logger
	parser *Parser
	cache  *ristretto.Cache

	mu sync.RWMutex

	static      map[string]FilterRule
	allow       map[string]FilterRule
	custom      map[string]FilterRule
	customOrder []string
	nextCustom  int

	whitelist      map[string]struct{}
	whitelistOrder []string

	cosmetic     map[string]map[string]struct{}
	userCosmetic map[string]map[string]struct{}

	listSources map[string]ListSource

	// generation changes on every mutation; cached verdicts are keyed by it.
	generation uint64
	idx        indexSet
	dirty      bool
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parser := cfg.Parser
	if parser == nil {
		parser = NewParser()
	}

	s := &Store{
		logger:       logger,
		parser:       parser,
		static:       make(map[string]FilterRule),
		allow:        make(map[string]FilterRule),
		custom:       make(map[string]FilterRule),
		nextCustom:   CustomRuleIDBase,
		whitelist:    make(map[string]struct{}),
		cosmetic:     make(map[string]map[string]struct{}),
		userCosmetic: make(map[string]map[string]struct{}),
		listSources:  make(map[string]ListSource),
	}

	if cfg.CacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: cfg.CacheSize * 10,
			MaxCost:     cfg.CacheSize,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create verdict cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

// Load parses every source and replaces the static rule set with the result.
// A source that cannot be read is skipped and logged; it never aborts the
// load. Static rule ids are assigned from 1 in load order and duplicates
// keep the first id.
func (s *Store) Load(ctx context.Context, sources []Source) LoadResult {
	var res LoadResult
	static := make(map[string]FilterRule)
	allow := make(map[string]FilterRule)
	cosmetic := make(map[string]map[string]struct{})
	infos := make(map[string]ListSource, len(sources))
	nextID := 1

	for i, src := range sources {
		name := src.Name
		if name == "" {
			name = "source-" + strconv.Itoa(i+1)
		}
		info := ListSource{
			Name:       name,
			Location:   src.location(),
			Format:     src.Format.String(),
			LastUpdate: time.Now(),
		}

		parsed, err := s.read(ctx, src)
		if err != nil {
			info.LastError = err.Error()
			infos[name] = info
			res.Failed = append(res.Failed, name)
			s.logger.Warn("Failed to load filter list",
				"name", name,
				"location", info.Location,
				"error", err)
			continue
		}

		for _, r := range parsed.Rules {
			r.Source = name
			switch r.Kind {
			case KindCosmetic:
				set, ok := cosmetic[r.Domain]
				if !ok {
					set = make(map[string]struct{})
					cosmetic[r.Domain] = set
				}
				if _, dup := set[r.Selector]; !dup {
					set[r.Selector] = struct{}{}
					res.Cosmetic++
				}
				continue
			case KindAllow:
				if _, dup := allow[r.Normalized]; dup {
					continue
				}
				r.ID = nextID
				allow[r.Normalized] = r
			default:
				if _, dup := static[r.Normalized]; dup {
					continue
				}
				r.ID = nextID
				static[r.Normalized] = r
			}
			nextID++
			res.Rules++
		}

		info.RuleCount = len(parsed.Rules)
		info.Skipped = parsed.Skipped
		infos[name] = info
		res.Skipped += parsed.Skipped
		s.logger.Info("Loaded filter list",
			"name", name,
			"rules", len(parsed.Rules),
			"skipped", parsed.Skipped)
	}

	s.mu.Lock()
	s.static = static
	s.allow = allow
	s.cosmetic = cosmetic
	s.listSources = infos
	s.invalidateLocked()
	s.mu.Unlock()

	return res
}

func (s *Store) read(ctx context.Context, src Source) (ParseResult, error) {
	switch {
	case src.Text != "":
		return s.parser.ParseString(src.Text, src.Format), nil
	case src.Path != "":
		return s.parser.ParseFile(src.Path, src.Format)
	case src.URL != "":
		return s.parser.ParseURL(ctx, src.URL, src.Format)
	default:
		return ParseResult{}, ErrEmptySource
	}
}

// invalidateLocked marks the indexes stale and retires cached verdicts.
// Callers must hold s.mu for writing.
func (s *Store) invalidateLocked() {
	s.generation++
	s.dirty = true
}

// indexSet holds the automata a verdict is computed from. block covers
// static and custom rules; custom repeats the custom rules alone so they can
// override allow rules.
type indexSet struct {
	block  *substringIndex
	allow  *substringIndex
	custom *substringIndex
}

// indexes returns up-to-date automata, rebuilding them if a mutation has
// happened since the last build.
func (s *Store) indexes() (idx indexSet, gen uint64) {
	s.mu.RLock()
	if !s.dirty {
		idx, gen = s.idx, s.generation
		s.mu.RUnlock()
		return idx, gen
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		rules := make([]FilterRule, 0, len(s.static)+len(s.custom))
		for _, r := range s.static {
			rules = append(rules, r)
		}
		customRules := make([]FilterRule, 0, len(s.custom))
		for p, r := range s.custom {
			customRules = append(customRules, r)
			if _, dup := s.static[p]; dup {
				continue
			}
			rules = append(rules, r)
		}
		allowRules := make([]FilterRule, 0, len(s.allow))
		for _, r := range s.allow {
			allowRules = append(allowRules, r)
		}
		s.idx = indexSet{
			block:  newSubstringIndex(rules),
			allow:  newSubstringIndex(allowRules),
			custom: newSubstringIndex(customRules),
		}
		s.dirty = false
	}
	return s.idx, s.generation
}

// ShouldBlock reports whether a request to rawURL should be blocked.
func (s *Store) ShouldBlock(rawURL string) bool {
	return s.Match(rawURL).Block
}

// Match evaluates rawURL. It blocks iff the URL's host is not whitelisted
// and the lower-cased URL contains either a custom pattern, or a static block
// pattern and no allow pattern. Allow rules only exempt static matches.
func (s *Store) Match(rawURL string) Verdict {
	idx, gen := s.indexes()

	key := strconv.FormatUint(gen, 10) + "\x00" + rawURL
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.(Verdict)
		}
	}

	v := s.evaluate(rawURL, idx)
	if s.cache != nil {
		s.cache.Set(key, v, 1)
	}
	return v
}

func (s *Store) evaluate(rawURL string, idx indexSet) Verdict {
	if s.IsWhitelisted(Hostname(rawURL)) {
		return Verdict{Reason: ReasonWhitelist}
	}

	lower := strings.ToLower(rawURL)
	pattern, id, ok := idx.block.first(lower)
	if !ok {
		return Verdict{}
	}
	if id >= CustomRuleIDBase {
		return Verdict{Block: true, RuleID: id, Pattern: pattern, Reason: ReasonCustom}
	}
	if ap, aid, allowed := idx.allow.first(lower); allowed {
		if cp, cid, custom := idx.custom.first(lower); custom {
			return Verdict{Block: true, RuleID: cid, Pattern: cp, Reason: ReasonCustom}
		}
		return Verdict{RuleID: aid, Pattern: ap, Reason: ReasonAllowRule}
	}
	return Verdict{Block: true, RuleID: id, Pattern: pattern, Reason: ReasonPattern}
}

// IsWhitelisted reports whether host contains any whitelist entry. This is
// substring containment, so "example.com" also covers "notexample.com.evil".
func (s *Store) IsWhitelisted(host string) bool {
	if host == "" {
		return false
	}
	host = strings.ToLower(host)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for entry := range s.whitelist {
		if strings.Contains(host, entry) {
			return true
		}
	}
	return false
}

// Hostname extracts the lower-cased host of rawURL. Scheme-less input such as
// "ads.example.com/x" is accepted. Unparseable input yields "".
func Hostname(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// =============================================================================
// Custom filters
// =============================================================================

// AddCustomFilter adds a user block pattern. It reports false when the pattern
// normalizes to nothing or is already present.
func (s *Store) AddCustomFilter(pattern string) (FilterRule, bool) {
	normalized := Normalize(pattern)
	if normalized == "" {
		return FilterRule{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.custom[normalized]; ok {
		return r, false
	}
	r := FilterRule{
		ID:         s.nextCustom,
		Raw:        strings.TrimSpace(pattern),
		Normalized: normalized,
		Kind:       KindBlock,
		Source:     "custom",
	}
	s.nextCustom++
	s.custom[normalized] = r
	s.customOrder = append(s.customOrder, r.Raw)
	s.invalidateLocked()
	return r, true
}

// RemoveCustomFilter removes a user block pattern by its raw or normalized
// form. It reports whether anything was removed.
func (s *Store) RemoveCustomFilter(pattern string) bool {
	normalized := Normalize(pattern)

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.custom[normalized]
	if !ok {
		return false
	}
	delete(s.custom, normalized)
	for i, raw := range s.customOrder {
		if raw == r.Raw {
			s.customOrder = append(s.customOrder[:i], s.customOrder[i+1:]...)
			break
		}
	}
	s.invalidateLocked()
	return true
}

// SetCustomFilters replaces the custom subset.
func (s *Store) SetCustomFilters(patterns []string) {
	s.mu.Lock()
	s.custom = make(map[string]FilterRule, len(patterns))
	s.customOrder = s.customOrder[:0]
	s.invalidateLocked()
	s.mu.Unlock()

	for _, p := range patterns {
		s.AddCustomFilter(p)
	}
}

// CustomFilters returns the raw custom patterns in insertion order.
func (s *Store) CustomFilters() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.customOrder))
	copy(out, s.customOrder)
	return out
}

// =============================================================================
// Whitelist
// =============================================================================

// AddToWhitelist adds a domain. It reports whether the whitelist changed.
func (s *Store) AddToWhitelist(domain string) bool {
	domain = normalizeDomain(domain)
	if domain == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.whitelist[domain]; ok {
		return false
	}
	s.whitelist[domain] = struct{}{}
	s.whitelistOrder = append(s.whitelistOrder, domain)
	s.invalidateLocked()
	return true
}

// RemoveFromWhitelist removes a domain. It reports whether the whitelist
// changed.
func (s *Store) RemoveFromWhitelist(domain string) bool {
	domain = normalizeDomain(domain)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.whitelist[domain]; !ok {
		return false
	}
	delete(s.whitelist, domain)
	for i, d := range s.whitelistOrder {
		if d == domain {
			s.whitelistOrder = append(s.whitelistOrder[:i], s.whitelistOrder[i+1:]...)
			break
		}
	}
	s.invalidateLocked()
	return true
}

// SetWhitelist replaces the whitelist.
func (s *Store) SetWhitelist(domains []string) {
	s.mu.Lock()
	s.whitelist = make(map[string]struct{}, len(domains))
	s.whitelistOrder = s.whitelistOrder[:0]
	s.invalidateLocked()
	s.mu.Unlock()

	for _, d := range domains {
		s.AddToWhitelist(d)
	}
}

// Whitelist returns the whitelist entries in insertion order.
func (s *Store) Whitelist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.whitelistOrder))
	copy(out, s.whitelistOrder)
	return out
}

// =============================================================================
// Cosmetic rules
// =============================================================================

// CosmeticSelectorsFor returns the union of wildcard selectors and selectors
// keyed by exactly domain, sorted. Parent domains are not consulted.
func (s *Store) CosmeticSelectorsFor(domain string) []string {
	domain = normalizeDomain(domain)

	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{})
	for _, m := range []map[string]map[string]struct{}{s.cosmetic, s.userCosmetic} {
		for sel := range m[WildcardDomain] {
			set[sel] = struct{}{}
		}
		if domain != "" && domain != WildcardDomain {
			for sel := range m[domain] {
				set[sel] = struct{}{}
			}
		}
	}
	return sortedKeys(set)
}

// AddCosmetic records a user cosmetic rule. An empty domain means every
// domain. It reports whether the rule is new.
func (s *Store) AddCosmetic(domain, selector string) bool {
	domain = normalizeDomain(domain)
	if domain == "" {
		domain = WildcardDomain
	}
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.userCosmetic[domain]
	if !ok {
		set = make(map[string]struct{})
		s.userCosmetic[domain] = set
	}
	if _, dup := set[selector]; dup {
		return false
	}
	set[selector] = struct{}{}
	return true
}

// RemoveCosmetic deletes a user cosmetic rule.
func (s *Store) RemoveCosmetic(domain, selector string) bool {
	domain = normalizeDomain(domain)
	if domain == "" {
		domain = WildcardDomain
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.userCosmetic[domain]
	if !ok {
		return false
	}
	if _, ok := set[selector]; !ok {
		return false
	}
	delete(set, selector)
	if len(set) == 0 {
		delete(s.userCosmetic, domain)
	}
	return true
}

// CosmeticMap returns a copy of every domain's selectors, list and user rules
// merged.
func (s *Store) CosmeticMap() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	merged := make(map[string]map[string]struct{})
	for _, m := range []map[string]map[string]struct{}{s.cosmetic, s.userCosmetic} {
		for d, sels := range m {
			set, ok := merged[d]
			if !ok {
				set = make(map[string]struct{})
				merged[d] = set
			}
			for sel := range sels {
				set[sel] = struct{}{}
			}
		}
	}
	return toSortedMap(merged)
}

// UserCosmetic returns a copy of the user cosmetic rules only.
func (s *Store) UserCosmetic() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return toSortedMap(s.userCosmetic)
}

// SetUserCosmetic replaces the user cosmetic rules.
func (s *Store) SetUserCosmetic(rules map[string][]string) {
	s.mu.Lock()
	s.userCosmetic = make(map[string]map[string]struct{}, len(rules))
	s.mu.Unlock()

	for d, sels := range rules {
		for _, sel := range sels {
			s.AddCosmetic(d, sel)
		}
	}
}

// =============================================================================
// Introspection
// =============================================================================

// StoreStats contains rule counts.
type StoreStats struct {
	StaticRules   int    `json:"static_rules"`
	AllowRules    int    `json:"allow_rules"`
	CustomRules   int    `json:"custom_rules"`
	CosmeticRules int    `json:"cosmetic_rules"`
	WhitelistSize int    `json:"whitelist_size"`
	Generation    uint64 `json:"generation"`
}

// Stats returns current rule counts.
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cosmetic := 0
	for _, m := range []map[string]map[string]struct{}{s.cosmetic, s.userCosmetic} {
		for _, sels := range m {
			cosmetic += len(sels)
		}
	}
	return StoreStats{
		StaticRules:   len(s.static),
		AllowRules:    len(s.allow),
		CustomRules:   len(s.custom),
		CosmeticRules: cosmetic,
		WhitelistSize: len(s.whitelist),
		Generation:    s.generation,
	}
}

// Patterns returns every normalized block pattern, sorted.
func (s *Store) Patterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{}, len(s.static)+len(s.custom))
	for p := range s.static {
		set[p] = struct{}{}
	}
	for p := range s.custom {
		set[p] = struct{}{}
	}
	return sortedKeys(set)
}

// ListInfo returns information about the last loaded lists, sorted by name.
func (s *Store) ListInfo() []ListSource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make([]ListSource, 0, len(s.listSources))
	for _, ls := range s.listSources {
		sources = append(sources, ls)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources
}

// Close releases the verdict cache.
func (s *Store) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	return nil
}

// String returns a summary of the store state.
func (s *Store) String() string {
	st := s.Stats()
	return fmt.Sprintf("Store{static=%d, custom=%d, allow=%d, cosmetic=%d, whitelist=%d}",
		st.StaticRules, st.CustomRules, st.AllowRules, st.CosmeticRules, st.WhitelistSize)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func toSortedMap(m map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(m))
	for d, sels := range m {
		out[d] = sortedKeys(sels)
	}
	return out
}
