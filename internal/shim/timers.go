package shim

import (
	"regexp"
	"time"
)

// MaxWait is the longest delay a wait wall is allowed to keep.
const MaxWait = time.Second

var (
	// DetectionPattern matches callbacks that probe for a content blocker.
	DetectionPattern = regexp.MustCompile(`(?i)adblock|ublock|antiblock|blockadblock|adblocker`)

	// WaitPattern matches countdown and download walls.
	WaitPattern = regexp.MustCompile(`(?i)countdown|wait|download|timer|seconds|skip`)
)

// TimerGuard rewrites timers. A callback whose source matches
// DetectionPattern becomes a no-op scheduled with the original delay. A
// callback longer than MaxWait whose source or page text matches WaitPattern
// keeps its function and arguments but runs after MaxWait.
type TimerGuard struct{}

// Name implements Interceptor.
func (TimerGuard) Name() string { return "timers" }

// Install implements Interceptor.
func (TimerGuard) Install(env *Env, hit func()) {
	if env.Timers == nil {
		return
	}
	env.Timers = &guardedTimers{next: env.Timers, page: env.PageText, hit: hit}
}

type guardedTimers struct {
	next Timers
	page func() string
	hit  func()
}

func (g *guardedTimers) SetTimeout(cb Callback, delay time.Duration, args ...any) int {
	cb, delay = g.rewrite(cb, delay)
	return g.next.SetTimeout(cb, delay, args...)
}

func (g *guardedTimers) SetInterval(cb Callback, delay time.Duration, args ...any) int {
	cb, delay = g.rewrite(cb, delay)
	return g.next.SetInterval(cb, delay, args...)
}

func (g *guardedTimers) rewrite(cb Callback, delay time.Duration) (Callback, time.Duration) {
	if check(func() bool { return DetectionPattern.MatchString(cb.Source) }) {
		g.hit()
		return Callback{Source: cb.Source, Fn: func(...any) {}}, delay
	}
	if delay > MaxWait && check(func() bool { return g.isWaitWall(cb.Source) }) {
		g.hit()
		return cb, MaxWait
	}
	return cb, delay
}

func (g *guardedTimers) isWaitWall(source string) bool {
	if WaitPattern.MatchString(source) {
		return true
	}
	return g.page != nil && WaitPattern.MatchString(g.page())
}
