// Package browser hosts the filter inside a real Chrome driven over CDP.
//
// Every tab routes its requests through the interceptor, gets the
// anti-detection shim before any page script runs, and keeps cosmetic rules
// applied while the DOM changes. The element picker is started in a tab on
// request and reports picked selectors back through an ElementBlocker.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/jroosing/hydrablock/internal/cosmetic"
	"github.com/jroosing/hydrablock/internal/interceptor"
	"github.com/jroosing/hydrablock/internal/scheduler"
	"github.com/jroosing/hydrablock/internal/shim"
)

var (
	// ErrNotStarted is returned when the browser has not been started.
	ErrNotStarted = errors.New("browser is not running")
	// ErrUnknownTab is returned for tab ids the host does not know.
	ErrUnknownTab = errors.New("unknown tab")
)

// RequestFilter decides outbound requests.
type RequestFilter interface {
	Intercept(req interceptor.Request) interceptor.Result
}

// Config configures a Host.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome.
	// Empty launches a local Chrome.
	RemoteURL string

	// Headless runs the launched Chrome without a window.
	Headless bool

	// Stealth opens pages with go-rod/stealth evasions applied.
	Stealth bool

	// NavigateTimeout bounds Open. Default: 30s.
	NavigateTimeout time.Duration

	// CosmeticWindow coalesces DOM insertions before cosmetic rules are
	// re-applied. Default: 250ms.
	CosmeticWindow time.Duration

	// Logger is used for browser log output. If nil, the default logger is used.
	Logger *slog.Logger

	// Shim, if set, is told about every faked tracker response.
	Shim shim.Observer
}

func (c *Config) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.CosmeticWindow <= 0 {
		c.CosmeticWindow = 250 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Host owns one Chrome instance and its tabs.
//
// Thread-safe for concurrent use.
type Host struct {
	cfg     Config
	filter  RequestFilter
	rules   cosmetic.RuleSource
	blocker cosmetic.ElementBlocker
	logger  *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	tabs    map[int]*Tab
	nextTab int
}

// NewHost creates a host. Call Start to launch or connect to Chrome.
func NewHost(cfg Config, filter RequestFilter, rules cosmetic.RuleSource, blocker cosmetic.ElementBlocker) *Host {
	cfg.defaults()
	return &Host{
		cfg:     cfg,
		filter:  filter,
		rules:   rules,
		blocker: blocker,
		logger:  cfg.Logger,
		tabs:    make(map[int]*Tab),
		nextTab: 1,
	}
}

// Start launches Chrome, or connects to Config.RemoteURL.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.browser != nil {
		return nil
	}

	wsURL := h.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(h.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("failed to launch chrome: %w", err)
		}
		wsURL = u
		h.lnch = l
		h.logger.Info("Launched local chrome", "url", wsURL, "headless", h.cfg.Headless)
	} else {
		h.logger.Info("Connecting to remote chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		h.cleanupLocked()
		return fmt.Errorf("failed to connect to chrome: %w", err)
	}
	h.browser = b
	return nil
}

// Open creates a tab with filtering installed and navigates it to pageURL.
func (h *Host) Open(ctx context.Context, pageURL string) (*Tab, error) {
	h.mu.Lock()
	b := h.browser
	h.mu.Unlock()
	if b == nil {
		return nil, ErrNotStarted
	}

	var page *rod.Page
	var err error
	if h.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create tab: %w", err)
	}

	h.mu.Lock()
	id := h.nextTab
	h.nextTab++
	h.mu.Unlock()

	tab := &Tab{ID: id, Page: page, host: h, logger: h.logger.With("tab", id)}
	if err := tab.install(ctx); err != nil {
		_ = page.Close()
		return nil, err
	}

	h.mu.Lock()
	h.tabs[id] = tab
	h.mu.Unlock()

	navCtx, cancel := context.WithTimeout(ctx, h.cfg.NavigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		_ = h.CloseTab(id)
		return nil, fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		tab.logger.Warn("Page load wait timed out", "url", pageURL, "error", err)
	}
	tab.applyCosmetic(ctx)
	return tab, nil
}

// Tab returns the tab with id.
func (h *Host) Tab(id int) (*Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTab, id)
	}
	return t, nil
}

// Tabs returns the open tab ids.
func (h *Host) Tabs() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]int, 0, len(h.tabs))
	for id := range h.tabs {
		ids = append(ids, id)
	}
	return ids
}

// CloseTab closes one tab.
func (h *Host) CloseTab(id int) error {
	h.mu.Lock()
	t, ok := h.tabs[id]
	delete(h.tabs, id)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTab, id)
	}
	return t.close()
}

// StartPicker starts the element picker in tab tabID.
func (h *Host) StartPicker(ctx context.Context, tabID int) error {
	t, err := h.Tab(tabID)
	if err != nil {
		return err
	}
	return t.picker(ctx, true)
}

// StopPicker stops the element picker in tab tabID.
func (h *Host) StopPicker(ctx context.Context, tabID int) error {
	t, err := h.Tab(tabID)
	if err != nil {
		return err
	}
	return t.picker(ctx, false)
}

// Close closes every tab and shuts Chrome down.
func (h *Host) Close() error {
	h.mu.Lock()
	tabs := h.tabs
	h.tabs = make(map[int]*Tab)
	h.mu.Unlock()

	var errs []error
	for _, t := range tabs {
		if err := t.close(); err != nil {
			errs = append(errs, err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.cleanupLocked(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (h *Host) cleanupLocked() error {
	var err error
	if h.browser != nil {
		err = h.browser.Close()
		h.browser = nil
	}
	if h.lnch != nil {
		h.lnch.Cleanup()
		h.lnch = nil
	}
	return err
}

// decide runs the interceptor for one hijacked request. Blocked requests to
// tracker endpoints are answered with an empty 200 so page scripts checking
// the status keep working.
func (h *Host) decide(tabID int, u *url.URL, rt proto.NetworkResourceType) (interceptor.Result, bool) {
	res := h.filter.Intercept(interceptor.Request{
		URL:          u.String(),
		ResourceType: ResourceTypeFor(rt),
		TabID:        tabID,
	})
	return res, res.Blocked() && shim.IsTrackerEndpoint(u)
}

// Tab is one filtered page.
type Tab struct {
	ID   int
	Page *rod.Page

	host   *Host
	logger *slog.Logger

	router   *rod.HijackRouter
	cosmetic *scheduler.Debouncer
	cancel   context.CancelFunc
	closers  []func() error
}

func (t *Tab) install(ctx context.Context) error {
	script, err := shim.Bootstrap()
	if err != nil {
		return err
	}
	remove, err := t.Page.EvalOnNewDocument(script)
	if err != nil {
		return fmt.Errorf("failed to install anti-detection shim: %w", err)
	}
	t.closers = append(t.closers, remove)

	stop, err := t.Page.Expose(PickBinding, t.picked)
	if err != nil {
		return fmt.Errorf("failed to expose picker binding: %w", err)
	}
	t.closers = append(t.closers, stop)

	t.router = t.Page.HijackRequests()
	t.router.MustAdd("*", t.hijack)
	go t.router.Run()

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.cosmetic = scheduler.New(scheduler.Config{Window: t.host.cfg.CosmeticWindow, Logger: t.logger}, func(ctx context.Context) error {
		t.applyCosmetic(ctx)
		return nil
	})
	if err := (proto.DOMEnable{}).Call(t.Page); err != nil {
		t.logger.Warn("Failed to enable DOM events", "error", err)
		return nil
	}
	go t.Page.Context(watchCtx).EachEvent(func(*proto.DOMChildNodeInserted) {
		t.cosmetic.Trigger()
	}, func(*proto.DOMDocumentUpdated) {
		t.cosmetic.Trigger()
	})()
	return nil
}

func (t *Tab) hijack(ctx *rod.Hijack) {
	u := ctx.Request.URL()
	res, fake := t.host.decide(t.ID, u, ctx.Request.Type())
	switch {
	case fake:
		faked := shim.FakeResponse(&http.Request{Method: ctx.Request.Method(), URL: u})
		ctx.Response.Payload().ResponseCode = faked.StatusCode
		for k := range faked.Header {
			ctx.Response.SetHeader(k, faked.Header.Get(k))
		}
		ctx.Response.SetBody("")
		if t.host.cfg.Shim != nil {
			t.host.cfg.Shim.ObserveShim(shim.NetworkFaker{}.Name())
		}
	case res.Blocked():
		ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
	default:
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	}
}

// applyCosmetic fetches the selectors for the tab's host and hides matches.
func (t *Tab) applyCosmetic(ctx context.Context) {
	info, err := t.Page.Info()
	if err != nil {
		t.logger.Debug("Failed to read page info", "error", err)
		return
	}
	u, err := url.Parse(info.URL)
	if err != nil || u.Hostname() == "" {
		return
	}
	selectors, err := t.host.rules.Selectors(ctx, u.Hostname())
	if err != nil {
		t.logger.Warn("Failed to fetch cosmetic filters", "host", u.Hostname(), "error", err)
		return
	}
	script, err := CosmeticScript(selectors)
	if err != nil {
		t.logger.Warn("Failed to render cosmetic script", "error", err)
		return
	}
	obj, err := t.Page.Context(ctx).Eval(script)
	if err != nil {
		t.logger.Debug("Failed to apply cosmetic filters", "error", err)
		return
	}
	if n := obj.Value.Int(); n > 0 {
		t.logger.Debug("Hid elements", "host", u.Hostname(), "count", n)
	}
}

func (t *Tab) picker(ctx context.Context, start bool) error {
	script, err := PickerScript(start)
	if err != nil {
		return err
	}
	if _, err := t.Page.Context(ctx).Eval(script); err != nil {
		return fmt.Errorf("failed to toggle element picker: %w", err)
	}
	return nil
}

// picked receives {domain, selector} from the page picker.
func (t *Tab) picked(arg gson.JSON) (any, error) {
	domain := arg.Get("domain").Str()
	selector := arg.Get("selector").Str()
	if err := t.host.blocker.BlockElement(context.Background(), domain, selector); err != nil {
		t.logger.Warn("Failed to persist picked element", "domain", domain, "selector", selector, "error", err)
		return false, err
	}
	t.logger.Info("Element blocked", "domain", domain, "selector", selector)
	return true, nil
}

func (t *Tab) close() error {
	if t.cancel != nil {
		t.cancel()
	}
	var errs []error
	if t.cosmetic != nil {
		if err := t.cosmetic.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if t.router != nil {
		if err := t.router.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range t.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.Page.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
