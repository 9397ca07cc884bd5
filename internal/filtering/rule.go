package filtering

import (
	"strings"
)

// RuleKind classifies a parsed filter line.
type RuleKind int

const (
	// KindBlock blocks requests whose URL contains the pattern.
	KindBlock RuleKind = iota
	// KindAllow exempts requests whose URL contains the pattern (@@ lines).
	KindAllow
	// KindCosmetic hides elements matching a CSS selector (## lines).
	KindCosmetic
)

// String returns a string representation of the kind.
func (k RuleKind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindAllow:
		return "allow"
	case KindCosmetic:
		return "cosmetic"
	default:
		return "unknown"
	}
}

// WildcardDomain is the cosmetic key for selectors that apply everywhere.
const WildcardDomain = "*"

// FilterRule is a single compiled filter line.
//
// Rules are immutable once created. Network rules are keyed by Normalized;
// cosmetic rules carry one Selector per scoped domain.
type FilterRule struct {
	ID         int
	Raw        string
	Normalized string
	Kind       RuleKind
	// Domain is empty for global rules and the scoping domain otherwise.
	// Global cosmetic rules use WildcardDomain.
	Domain   string
	Selector string
	Source   string
}

// Global reports whether the rule applies to every domain.
func (r FilterRule) Global() bool {
	return r.Domain == "" || r.Domain == WildcardDomain
}

// Normalize converts raw adblock network syntax into the plain substring
// used for matching: the $options suffix is cut, the trailing ^ separator and
// leading || / | anchors are stripped, and the result is lower-cased.
//
// Normalize(Normalize(s)) == Normalize(s) for every s.
func Normalize(raw string) string {
	p := strings.TrimSpace(raw)
	if idx := strings.IndexByte(p, '$'); idx >= 0 {
		p = p[:idx]
	}
	for {
		q := strings.TrimSpace(p)
		q = strings.TrimRight(q, "^")
		q = strings.TrimLeft(q, "|")
		if q == p {
			break
		}
		p = q
	}
	return strings.ToLower(p)
}

// ParseRule compiles one filter line. Comments, blank lines and unsupported
// cosmetic variants return ok=false. A cosmetic line scoped to several
// domains yields one rule per domain.
func ParseRule(line string) (rules []FilterRule, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "!") || strings.HasPrefix(line, "[") {
		return nil, false
	}

	if idx := strings.Index(line, "#@#"); idx >= 0 {
		// Cosmetic exceptions are not supported.
		return nil, false
	}
	if idx := strings.Index(line, "##"); idx >= 0 {
		return parseCosmetic(line, idx)
	}

	kind := KindBlock
	body := line
	if strings.HasPrefix(body, "@@") {
		kind = KindAllow
		body = body[2:]
	}

	normalized := Normalize(body)
	if normalized == "" {
		return nil, false
	}

	return []FilterRule{{
		Raw:        line,
		Normalized: normalized,
		Kind:       kind,
	}}, true
}

// parseCosmetic handles "domains##selector" lines.
func parseCosmetic(line string, sepIdx int) ([]FilterRule, bool) {
	selector := strings.TrimSpace(line[sepIdx+2:])
	if selector == "" {
		return nil, false
	}
	// Scriptlets, HTML filters and procedural selectors need a page runtime.
	if strings.HasPrefix(selector, "+js(") || strings.HasPrefix(selector, "^") || isProcedural(selector) {
		return nil, false
	}

	domains := parseDomainList(line[:sepIdx])
	if len(domains) == 0 {
		domains = []string{WildcardDomain}
	}

	rules := make([]FilterRule, 0, len(domains))
	for _, d := range domains {
		rules = append(rules, FilterRule{
			Raw:        line,
			Normalized: d + "##" + selector,
			Kind:       KindCosmetic,
			Domain:     d,
			Selector:   selector,
		})
	}
	return rules, true
}

func isProcedural(selector string) bool {
	for _, p := range []string{":has-text(", ":xpath(", ":matches-css(", ":upward(", ":remove(", ":style(", ":min-text-length("} {
		if strings.Contains(selector, p) {
			return true
		}
	}
	return false
}

// parseDomainList splits "a.com,b.com,~c.com". Negated entries are dropped.
func parseDomainList(s string) []string {
	var out []string
	for _, d := range strings.Split(s, ",") {
		d = normalizeDomain(d)
		if d == "" || strings.HasPrefix(d, "~") {
			continue
		}
		out = append(out, d)
	}
	return out
}

// normalizeDomain converts a domain to lowercase and removes trailing dots.
func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimSuffix(domain, ".")
	return domain
}
