// Package scheduler provides deferred, coalescing execution of work.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWindow is the coalescing window used when none is configured.
const DefaultWindow = time.Second

// FlushFunc persists whatever state is current at call time.
type FlushFunc func(ctx context.Context) error

// Config controls a Debouncer.
type Config struct {
	// Window is the time between the first trigger and the flush. Default: 1s.
	Window time.Duration
	// Timeout bounds a single flush. Default: 10s.
	Timeout time.Duration
	// Logger receives flush failures. If nil, the default logger is used.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Debouncer coalesces triggers into one trailing flush.
//
// The first Trigger after a flush arms a timer for Window; later triggers in
// the same window only mark the state pending. The flush reads state at flush
// time, so every trigger that happened before it is covered. A trigger that
// races with a running flush arms a new timer. A failed flush leaves the
// state pending. Close performs the final flush.
//
// Thread-safe for concurrent use.
type Debouncer struct {
	cfg Config
	fn  FlushFunc

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	closed  bool

	// runMu serialises flush executions.
	runMu sync.Mutex

	flushes  atomic.Uint64
	failures atomic.Uint64
}

// New creates a Debouncer that calls fn.
func New(cfg Config, fn FlushFunc) *Debouncer {
	cfg.defaults()
	return &Debouncer{cfg: cfg, fn: fn}
}

// Trigger marks the state dirty and schedules a flush if none is scheduled.
// After Close it flushes synchronously.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	d.pending = true
	if d.closed {
		d.mu.Unlock()
		d.run()
		return
	}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.cfg.Window, d.fire)
	}
	d.mu.Unlock()
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	d.timer = nil
	d.mu.Unlock()
	d.run()
}

// Pending reports whether a flush is outstanding.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Flush cancels the scheduled timer and flushes now if anything is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.run()
}

// Close stops the timer and performs a final flush if one is pending.
// Triggers after Close flush synchronously.
func (d *Debouncer) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.Flush()
	return nil
}

// Flushes returns how many flushes ran.
func (d *Debouncer) Flushes() uint64 {
	return d.flushes.Load()
}

// Failures returns how many flushes returned an error.
func (d *Debouncer) Failures() uint64 {
	return d.failures.Load()
}

func (d *Debouncer) run() {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	d.flushes.Add(1)
	if err := d.safeCall(ctx); err != nil {
		d.failures.Add(1)
		d.cfg.Logger.Warn("Debounced flush failed", "error", err)
		// The state is still unsaved; the next trigger or Close retries.
		d.mu.Lock()
		d.pending = true
		d.mu.Unlock()
	}
}

func (d *Debouncer) safeCall(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return d.fn(ctx)
}
