package filtering

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ListFormat represents the format of a filter list file.
type ListFormat int

const (
	// FormatAuto attempts to auto-detect the format.
	FormatAuto ListFormat = iota
	// FormatDomains is a plain list of domains, one per line.
	FormatDomains
	// FormatHosts is the hosts file format (IP address followed by domain).
	FormatHosts
	// FormatAdblock is the Adblock Plus / uBlock format (||domain^, ##selector).
	FormatAdblock
)

// String returns the config name of the format.
func (f ListFormat) String() string {
	switch f {
	case FormatDomains:
		return "domains"
	case FormatHosts:
		return "hosts"
	case FormatAdblock:
		return "adblock"
	default:
		return "auto"
	}
}

// ParseFormat converts a config string to a ListFormat. Unknown values map to
// FormatAuto.
func ParseFormat(s string) ListFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "domains":
		return FormatDomains
	case "hosts":
		return FormatHosts
	case "adblock", "abp", "ublock":
		return FormatAdblock
	default:
		return FormatAuto
	}
}

// ParseResult holds the rules compiled from one list.
type ParseResult struct {
	Rules []FilterRule
	// Skipped counts non-empty, non-comment lines that produced no rule.
	Skipped int
}

// Parser provides methods to parse filter lists.
type Parser struct {
	// Timeout is the HTTP request timeout in milliseconds. Default is 60000 (60s).
	Timeout int
	// Client overrides the HTTP client used by ParseURL.
	Client *http.Client
}

// NewParser creates a new parser with default settings.
func NewParser() *Parser {
	return &Parser{
		Timeout: 60000,
	}
}

// SetTimeout sets the HTTP timeout in milliseconds.
func (p *Parser) SetTimeout(ms int) {
	p.Timeout = ms
}

// ParseFile parses a filter list file.
func (p *Parser) ParseFile(path string, format ListFormat) (ParseResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return ParseResult{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.Parse(file, format)
}

// ParseURL fetches and parses a filter list from a URL.
func (p *Parser) ParseURL(ctx context.Context, url string, format ListFormat) (ParseResult, error) {
	client := p.Client
	if client == nil {
		timeout := time.Duration(p.Timeout) * time.Millisecond
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ParseResult{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return ParseResult{}, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ParseResult{}, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	return p.Parse(resp.Body, format)
}

// ParseString parses inline filter text.
func (p *Parser) ParseString(text string, format ListFormat) ParseResult {
	// strings.Reader never fails and lines are bounded by the text itself.
	res, _ := p.Parse(strings.NewReader(text), format)
	return res
}

// Parse parses a filter list from a reader.
func (p *Parser) Parse(r io.Reader, format ListFormat) (ParseResult, error) {
	var res ParseResult
	scanner := bufio.NewScanner(r)

	// Some published lists carry very long lines.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isComment(line) {
			continue
		}

		lineFormat := format
		if format == FormatAuto {
			// Published lists mix styles, so each line is classified alone.
			lineFormat = detectFormat(line)
		}

		rules, ok := parseLine(line, lineFormat)
		if !ok {
			res.Skipped++
			continue
		}
		res.Rules = append(res.Rules, rules...)
	}

	if err := scanner.Err(); err != nil {
		return ParseResult{}, fmt.Errorf("error reading input: %w", err)
	}

	return res, nil
}

func isComment(line string) bool {
	return strings.HasPrefix(line, "!") || strings.HasPrefix(line, "[") ||
		(strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "##") && !strings.HasPrefix(line, "#@#"))
}

// detectFormat determines the format of a single line.
func detectFormat(line string) ListFormat {
	if strings.HasPrefix(line, "0.0.0.0") || strings.HasPrefix(line, "127.0.0.1") {
		return FormatHosts
	}
	if isValidDomain(normalizeDomain(line)) {
		return FormatDomains
	}
	return FormatAdblock
}

// parseLine compiles a line according to the list format.
func parseLine(line string, format ListFormat) ([]FilterRule, bool) {
	switch format {
	case FormatHosts:
		return parseHostsLine(line)
	case FormatDomains:
		return parseDomainsLine(line)
	default:
		return ParseRule(line)
	}
}

// parseHostsLine parses a hosts file format line.
// Format: 0.0.0.0 domain or 127.0.0.1 domain
func parseHostsLine(line string) ([]FilterRule, bool) {
	if idx := strings.Index(line, "#"); idx >= 0 {
		line = line[:idx]
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, false
	}

	ip := fields[0]
	if ip != "0.0.0.0" && ip != "127.0.0.1" {
		return nil, false
	}

	domain := normalizeDomain(fields[1])
	if !isValidDomain(domain) || domain == "localhost.localdomain" {
		return nil, false
	}

	return []FilterRule{{Raw: line, Normalized: domain, Kind: KindBlock}}, true
}

// parseDomainsLine parses a simple domains list format.
func parseDomainsLine(line string) ([]FilterRule, bool) {
	if idx := strings.Index(line, "#"); idx >= 0 {
		line = line[:idx]
	}

	domain := normalizeDomain(line)
	if !isValidDomain(domain) {
		return nil, false
	}

	return []FilterRule{{Raw: line, Normalized: domain, Kind: KindBlock}}, true
}

// isValidDomain performs basic validation of a domain name.
func isValidDomain(domain string) bool {
	if domain == "" || len(domain) > 253 {
		return false
	}

	// Must have at least one dot (TLD)
	if !strings.Contains(domain, ".") {
		return false
	}

	for _, label := range strings.Split(domain, ".") {
		if label == "" || len(label) > 63 {
			return false
		}

		if !isAlphaNum(label[0]) || !isAlphaNum(label[len(label)-1]) {
			return false
		}

		for _, c := range label {
			if !isAlphaNum(byte(c)) && c != '-' && c != '_' {
				return false
			}
		}
	}

	return true
}

func isAlphaNum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
