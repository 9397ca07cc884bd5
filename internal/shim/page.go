package shim

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// DetectorGlobals are the globals detection libraries install.
var DetectorGlobals = []string{
	"FuckAdBlock",
	"fuckAdBlock",
	"BlockAdBlock",
	"blockAdBlock",
	"sniffAdBlock",
}

// PinnedGlobals are the flags pages read to decide whether ads ran.
var PinnedGlobals = map[string]any{
	"canRunAds":       true,
	"isAdBlockActive": false,
	"adBlockEnabled":  false,
	"adBlockDetected": false,
}

// AdSlotGlobal is pinned to an empty queue; pushes are discarded.
const AdSlotGlobal = "adsbygoogle"

// WarningPattern matches markup that asks the reader to disable blocking.
var WarningPattern = regexp.MustCompile(`(?i)ad\s*-?block|disable\s+(your\s+)?ad|whitelist\s+(this|our)\s+site|turn\s+off\s+(your\s+)?ad`)

// CloakingHosts are link shorteners that wrap clicks in interstitial ads.
// Entries without a dot match anywhere in the hostname.
var CloakingHosts = []string{"adf.ly", "bc.vc", "linkbucks", "sh.st", "ouo.io", "adfly"}

const (
	maxConsoleClears = 5
	maxUnloadPrompts = 2
)

// GlobalsGuard removes detector globals and pins the ad flags.
type GlobalsGuard struct{}

// Name implements Interceptor.
func (GlobalsGuard) Name() string { return "globals" }

// Install implements Interceptor.
func (GlobalsGuard) Install(env *Env, hit func()) {
	if env.Globals == nil {
		return
	}
	for _, name := range env.Globals.Names() {
		if isDetector(name) {
			env.Globals.Delete(name)
			hit()
		}
	}
	env.Globals = &pinnedGlobals{next: env.Globals, hit: hit}
}

func isDetector(name string) bool {
	return slices.Contains(DetectorGlobals, name)
}

type pinnedGlobals struct {
	next Globals
	hit  func()
}

func (p *pinnedGlobals) Get(name string) (any, bool) {
	if v, ok := PinnedGlobals[name]; ok {
		return v, true
	}
	if name == AdSlotGlobal {
		return []any{}, true
	}
	if isDetector(name) {
		return nil, false
	}
	return p.next.Get(name)
}

func (p *pinnedGlobals) Set(name string, v any) {
	if _, ok := PinnedGlobals[name]; ok || name == AdSlotGlobal || isDetector(name) {
		p.hit()
		return
	}
	p.next.Set(name, v)
}

func (p *pinnedGlobals) Delete(name string) {
	if _, ok := PinnedGlobals[name]; ok || name == AdSlotGlobal {
		return
	}
	p.next.Delete(name)
}

func (p *pinnedGlobals) Names() []string {
	var names []string
	for _, n := range p.next.Names() {
		if !isDetector(n) {
			names = append(names, n)
		}
	}
	for n := range PinnedGlobals {
		if !slices.Contains(names, n) {
			names = append(names, n)
		}
	}
	if !slices.Contains(names, AdSlotGlobal) {
		names = append(names, AdSlotGlobal)
	}
	slices.Sort(names)
	return names
}

// WriteGuard drops document.write calls carrying blocker warnings.
type WriteGuard struct{}

// Name implements Interceptor.
func (WriteGuard) Name() string { return "docwrite" }

// Install implements Interceptor.
func (WriteGuard) Install(env *Env, hit func()) {
	if env.Writer == nil {
		return
	}
	env.Writer = guardedWriter{next: env.Writer, hit: hit}
}

type guardedWriter struct {
	next Writer
	hit  func()
}

func (w guardedWriter) Write(markup string) {
	if check(func() bool { return WarningPattern.MatchString(markup) }) {
		w.hit()
		return
	}
	w.next.Write(markup)
}

// PopupGuard suppresses window.open without a trusted gesture.
type PopupGuard struct{}

// Name implements Interceptor.
func (PopupGuard) Name() string { return "popup" }

// Install implements Interceptor.
func (PopupGuard) Install(env *Env, hit func()) {
	if env.Opener == nil {
		return
	}
	env.Opener = guardedOpener{next: env.Opener, hit: hit}
}

type guardedOpener struct {
	next Opener
	hit  func()
}

func (o guardedOpener) Open(url string, trusted bool) *Window {
	if !trusted {
		o.hit()
		return nil
	}
	return o.next.Open(url, trusted)
}

// RedirectGuard cancels click navigations to CloakingHosts.
type RedirectGuard struct{}

// Name implements Interceptor.
func (RedirectGuard) Name() string { return "redirect" }

// Install implements Interceptor.
func (RedirectGuard) Install(env *Env, hit func()) {
	if env.Navigator == nil {
		return
	}
	env.Navigator = guardedNavigator{next: env.Navigator, hit: hit}
}

type guardedNavigator struct {
	next Navigator
	hit  func()
}

func (n guardedNavigator) Navigate(href string, fromClick bool) bool {
	if fromClick && check(func() bool { return IsCloakingLink(href) }) {
		n.hit()
		return false
	}
	return n.next.Navigate(href, fromClick)
}

// IsCloakingLink reports whether href points at a CloakingHosts entry.
func IsCloakingLink(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, h := range CloakingHosts {
		if !strings.Contains(h, ".") {
			if strings.Contains(host, h) {
				return true
			}
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// ConsoleGuard ignores console.clear after the fifth call.
type ConsoleGuard struct{}

// Name implements Interceptor.
func (ConsoleGuard) Name() string { return "console" }

// Install implements Interceptor.
func (ConsoleGuard) Install(env *Env, hit func()) {
	if env.Console == nil {
		return
	}
	env.Console = &guardedConsole{next: env.Console, hit: hit}
}

type guardedConsole struct {
	next Console
	hit  func()

	mu    sync.Mutex
	count int
}

func (c *guardedConsole) Clear() {
	c.mu.Lock()
	c.count++
	over := c.count > maxConsoleClears
	c.mu.Unlock()
	if over {
		c.hit()
		return
	}
	c.next.Clear()
}

// UnloadGuard suppresses beforeunload prompts after the second.
type UnloadGuard struct{}

// Name implements Interceptor.
func (UnloadGuard) Name() string { return "beforeunload" }

// Install implements Interceptor.
func (UnloadGuard) Install(env *Env, hit func()) {
	if env.Unload == nil {
		return
	}
	env.Unload = &guardedUnload{next: env.Unload, hit: hit}
}

type guardedUnload struct {
	next Unload
	hit  func()

	mu    sync.Mutex
	count int
}

func (u *guardedUnload) Prompt(message string) bool {
	u.mu.Lock()
	u.count++
	over := u.count > maxUnloadPrompts
	u.mu.Unlock()
	if over {
		u.hit()
		return false
	}
	return u.next.Prompt(message)
}
