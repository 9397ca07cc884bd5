package cosmetic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jroosing/hydrablock/internal/messaging"
)

// RuleSource supplies the selectors that apply to a domain.
type RuleSource interface {
	Selectors(ctx context.Context, domain string) ([]string, error)
}

// ChannelSource fetches selectors with a getFilters message.
type ChannelSource struct {
	Channel messaging.Channel
}

// Selectors implements RuleSource. The reply's wildcard and domain entries
// are merged.
func (s ChannelSource) Selectors(ctx context.Context, domain string) ([]string, error) {
	var resp messaging.CosmeticResponse
	if err := s.Channel.Send(ctx, messaging.ActionGetFilters, messaging.CosmeticRequest{Domain: domain}, &resp); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, key := range []string{"*", domain} {
		for _, sel := range resp.Cosmetic[key] {
			if _, ok := seen[sel]; ok {
				continue
			}
			seen[sel] = struct{}{}
			out = append(out, sel)
		}
	}
	return out, nil
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Source RuleSource

	// Logger is used for engine log output. If nil, the default logger is used.
	Logger *slog.Logger

	// OnHidden, if set, is called with the number of newly hidden elements
	// after every pass that hid something.
	OnHidden func(n int)
}

// Engine applies cosmetic selectors to one document and keeps applying them
// as the document grows.
type Engine struct {
	source   RuleSource
	logger   *slog.Logger
	onHidden func(int)

	mu        sync.Mutex
	doc       Document
	selectors []string
	invalid   map[string]struct{}
	cancel    func()
	hidden    int
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		source:   cfg.Source,
		logger:   logger,
		onHidden: cfg.OnHidden,
		invalid:  make(map[string]struct{}),
	}
}

// Start fetches the selectors for doc's host, hides every match and
// subscribes to insertions. A failing rule source leaves the page untouched.
func (e *Engine) Start(ctx context.Context, doc Document) error {
	if e.source == nil {
		return errors.New("cosmetic engine has no rule source")
	}
	selectors, err := e.source.Selectors(ctx, doc.Hostname())
	if err != nil {
		return fmt.Errorf("failed to fetch cosmetic rules for %s: %w", doc.Hostname(), err)
	}

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.doc = doc
	e.selectors = selectors
	e.mu.Unlock()

	n := e.Apply()
	e.logger.Debug("Cosmetic rules applied", "host", doc.Hostname(), "selectors", len(selectors), "hidden", n)

	cancel := doc.Observe(func([]Element) { e.Apply() })
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	return nil
}

// Refresh re-fetches the selectors and re-applies them.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	doc := e.doc
	e.mu.Unlock()
	if doc == nil {
		return nil
	}
	selectors, err := e.source.Selectors(ctx, doc.Hostname())
	if err != nil {
		return fmt.Errorf("failed to refresh cosmetic rules: %w", err)
	}
	e.mu.Lock()
	e.selectors = selectors
	e.mu.Unlock()
	e.Apply()
	return nil
}

// Apply hides every element of the document matched by a selector and not
// hidden yet. It returns how many elements it hid. Invalid selectors are
// skipped and reported once.
func (e *Engine) Apply() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return 0
	}

	n := 0
	for _, sel := range e.selectors {
		if _, bad := e.invalid[sel]; bad {
			continue
		}
		els, err := e.doc.QueryAll(sel)
		if err != nil {
			e.invalid[sel] = struct{}{}
			e.logger.Warn("Invalid cosmetic selector", "selector", sel, "error", err)
			continue
		}
		for _, el := range els {
			if el.Hidden() {
				continue
			}
			el.Hide()
			n++
		}
	}
	e.hidden += n
	if n > 0 && e.onHidden != nil {
		e.onHidden(n)
	}
	return n
}

// Stop unsubscribes from the document.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Selectors returns the active selectors.
func (e *Engine) Selectors() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.selectors...)
}

// Hidden returns the number of elements hidden so far.
func (e *Engine) Hidden() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hidden
}
