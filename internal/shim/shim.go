// Package shim neutralises the tricks pages use to detect content blocking.
//
// A page exposes its primitives (timers, network transport, document.write,
// window.open, navigation, globals, console and unload prompts) through an
// Env. A Chain of interceptors wraps each primitive once per page. Every
// wrapper keeps the primitive it replaced and falls back to it whenever its
// own check fails.
package shim

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Callback is a scheduled function together with the source text a page
// handed to the timer.
type Callback struct {
	Source string
	Fn     func(args ...any)
}

// Timers schedules deferred callbacks.
type Timers interface {
	SetTimeout(cb Callback, delay time.Duration, args ...any) int
	SetInterval(cb Callback, delay time.Duration, args ...any) int
}

// Writer is document.write.
type Writer interface {
	Write(markup string)
}

// Window is a handle to an opened window.
type Window struct {
	URL string
}

// Opener is window.open. trusted reports whether the call originated from a
// trusted user gesture.
type Opener interface {
	Open(url string, trusted bool) *Window
}

// Navigator performs top-level navigations. It returns false when the
// navigation was cancelled.
type Navigator interface {
	Navigate(href string, fromClick bool) bool
}

// Globals is the page's global object.
type Globals interface {
	Get(name string) (any, bool)
	Set(name string, v any)
	Delete(name string)
	Names() []string
}

// Console is the subset of console the shim guards.
type Console interface {
	Clear()
}

// Unload shows beforeunload prompts. It returns false when the prompt was
// not shown.
type Unload interface {
	Prompt(message string) bool
}

// Env holds one page's primitives. Nil fields are left alone.
type Env struct {
	Timers    Timers
	Transport http.RoundTripper
	Writer    Writer
	Opener    Opener
	Navigator Navigator
	Globals   Globals
	Console   Console
	Unload    Unload

	// PageText returns the visible text of the page.
	PageText func() string
}

// Interceptor wraps one or more primitives of an Env. hit must be called
// every time the interceptor changes page behaviour.
type Interceptor interface {
	Name() string
	Install(env *Env, hit func())
}

// Observer is notified when an interceptor fires.
type Observer interface {
	ObserveShim(name string)
}

// Chain installs interceptors into a page.
type Chain struct {
	interceptors []Interceptor
	logger       *slog.Logger
	observer     Observer
}

// NewChain creates a chain. With no interceptors the Default set is used.
func NewChain(logger *slog.Logger, observer Observer, interceptors ...Interceptor) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	if len(interceptors) == 0 {
		interceptors = Default()
	}
	return &Chain{interceptors: interceptors, logger: logger, observer: observer}
}

// Default returns every interceptor with its standard tables.
func Default() []Interceptor {
	return []Interceptor{
		GlobalsGuard{},
		TimerGuard{},
		NetworkFaker{},
		WriteGuard{},
		PopupGuard{},
		RedirectGuard{},
		ConsoleGuard{},
		UnloadGuard{},
	}
}

// Install wraps env's primitives in order and returns the names of the
// interceptors that installed. An interceptor that panics while installing
// leaves env as it found it.
func (c *Chain) Install(env *Env) []string {
	var installed []string
	for _, ic := range c.interceptors {
		if err := c.installOne(env, ic); err != nil {
			c.logger.Warn("Shim interceptor failed to install", "interceptor", ic.Name(), "error", err)
			continue
		}
		installed = append(installed, ic.Name())
	}
	c.logger.Debug("Anti-detection shim installed", "interceptors", installed)
	return installed
}

func (c *Chain) installOne(env *Env, ic Interceptor) (err error) {
	next := *env
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	name := ic.Name()
	ic.Install(&next, func() {
		c.logger.Debug("Shim intercepted", "interceptor", name)
		if c.observer != nil {
			c.observer.ObserveShim(name)
		}
	})
	*env = next
	return nil
}

// check runs fn and reports false if it panics.
func check(fn func() bool) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return fn()
}
