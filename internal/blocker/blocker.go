// Package blocker is the coordinator: the single long-lived owner of the
// pattern store, stats ledger, request interceptor and persisted settings.
//
// Every state mutation is serialised behind the coordinator's mutex and is
// written back to storage. Block counters and the request log change on the
// hot path and are persisted through a debouncer instead.
package blocker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jroosing/hydrablock/internal/filtering"
	"github.com/jroosing/hydrablock/internal/interceptor"
	"github.com/jroosing/hydrablock/internal/messaging"
	"github.com/jroosing/hydrablock/internal/metrics"
	"github.com/jroosing/hydrablock/internal/scheduler"
	"github.com/jroosing/hydrablock/internal/stats"
	"github.com/jroosing/hydrablock/internal/storage"
)

// reloadWindow coalesces bursts of list file changes.
const reloadWindow = 500 * time.Millisecond

// Config configures a Blocker.
type Config struct {
	Filtering filtering.Config

	// Enabled is the interceptor state used when nothing is persisted.
	Enabled bool

	// LogRequests is the request-log state used when nothing is persisted.
	LogRequests bool

	// LogCapacity bounds the request log. Default: 1000.
	LogCapacity int

	// PersistWindow is the stats persistence debounce window. Default: 1s.
	PersistWindow time.Duration
}

// Options carries the collaborators of a Blocker. Every field is optional.
type Options struct {
	Logger  *slog.Logger
	DB      *storage.DB
	Metrics *metrics.Metrics
}

// Blocker is the coordinator.
//
// Thread-safe for concurrent use.
type Blocker struct {
	cfg     Config
	logger  *slog.Logger
	db      *storage.DB
	metrics *metrics.Metrics

	store       *filtering.Store
	ledger      *stats.Ledger
	interceptor *interceptor.Interceptor
	persist     *scheduler.Debouncer
	reload      *scheduler.Debouncer

	// mu serialises mutations of the settings below and of the store.
	mu      sync.Mutex
	blocked map[string]messaging.BlockedDomain
	picker  PickerHost

	cancel  context.CancelFunc
	watcher *filtering.Watcher
	wg      sync.WaitGroup
}

// New builds a Blocker. Call Start to restore persisted state and load the
// filter lists.
func New(cfg Config, opts Options) (*Blocker, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "blocker")

	store, err := filtering.NewStore(cfg.Filtering.ToStoreConfig(logger.With("component", "filtering")))
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern store: %w", err)
	}

	b := &Blocker{
		cfg:     cfg,
		logger:  logger,
		db:      opts.DB,
		metrics: opts.Metrics,
		store:   store,
		ledger:  stats.NewLedger(cfg.LogCapacity),
		blocked: make(map[string]messaging.BlockedDomain),
	}

	b.persist = scheduler.New(scheduler.Config{Window: cfg.PersistWindow, Logger: logger}, b.flushStats)
	b.reload = scheduler.New(scheduler.Config{Window: reloadWindow, Logger: logger}, func(ctx context.Context) error {
		b.loadLists(ctx)
		return nil
	})

	icCfg := interceptor.Config{
		Matcher:     store,
		Ledger:      b.ledger,
		Logger:      logger.With("component", "interceptor"),
		OnBlock:     b.persist.Trigger,
		Enabled:     cfg.Enabled,
		LogRequests: cfg.LogRequests,
	}
	if opts.Metrics != nil {
		icCfg.Observer = opts.Metrics
	}
	b.interceptor = interceptor.New(icCfg)

	return b, nil
}

// Start restores persisted state, loads the filter lists and starts the list
// watcher and refresher when configured. Start returns once the first load
// completes; a failing list never fails Start.
func (b *Blocker) Start(ctx context.Context) error {
	b.restore()

	b.loadLists(ctx)

	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	if b.cfg.Filtering.Watch {
		w, err := filtering.NewWatcher(b.cfg.Filtering.ListsDir, b.logger, b.reload.Trigger)
		if err != nil {
			b.logger.Warn("Filter list watcher disabled", "error", err)
		} else {
			b.watcher = w
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				w.Run(runCtx)
			}()
		}
	}

	if b.cfg.Filtering.Refresh.Enabled && b.cfg.Filtering.Refresh.Interval > 0 {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.refreshLoop(runCtx, b.cfg.Filtering.Refresh.Interval)
		}()
	}

	return nil
}

// Close stops background work and flushes pending state.
func (b *Blocker) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	var errs []error
	if b.watcher != nil {
		errs = append(errs, b.watcher.Close())
	}
	b.wg.Wait()
	errs = append(errs, b.reload.Close(), b.persist.Close(), b.store.Close())
	return errors.Join(errs...)
}

func (b *Blocker) refreshLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.reload.Trigger()
		}
	}
}

// Reload re-reads every filter list now.
func (b *Blocker) Reload(ctx context.Context) filtering.LoadResult {
	return b.loadLists(ctx)
}

func (b *Blocker) loadLists(ctx context.Context) filtering.LoadResult {
	sources := b.cfg.Filtering.ToSources()
	if dir := b.cfg.Filtering.ListsDir; dir != "" {
		local, err := filtering.DirSources(dir)
		if err != nil {
			b.logger.Warn("Failed to read lists dir", "dir", dir, "error", err)
		}
		sources = append(sources, local...)
	}

	res := b.store.Load(ctx, sources)
	b.logger.Info("Filter lists loaded",
		"rules", res.Rules,
		"cosmetic", res.Cosmetic,
		"skipped", res.Skipped,
		"failed", len(res.Failed))
	b.publishRuleCounts()
	return res
}

func (b *Blocker) publishRuleCounts() {
	if b.metrics == nil {
		return
	}
	st := b.store.Stats()
	b.metrics.SetRules("static", st.StaticRules)
	b.metrics.SetRules("allow", st.AllowRules)
	b.metrics.SetRules("custom", st.CustomRules)
	b.metrics.SetRules("cosmetic", st.CosmeticRules)
	b.metrics.SetRules("dynamic", len(b.interceptor.DynamicRules()))
}

// =============================================================================
// Accessors
// =============================================================================

// Store returns the pattern store.
func (b *Blocker) Store() *filtering.Store { return b.store }

// Ledger returns the stats ledger.
func (b *Blocker) Ledger() *stats.Ledger { return b.ledger }

// Interceptor returns the request interceptor.
func (b *Blocker) Interceptor() *interceptor.Interceptor { return b.interceptor }

// Intercept decides one outbound request. It is the hot path used by
// browser hosts.
func (b *Blocker) Intercept(req interceptor.Request) interceptor.Result {
	return b.interceptor.Intercept(req)
}

// FlushStats persists the counters and request log now.
func (b *Blocker) FlushStats() {
	b.persist.Trigger()
	b.persist.Flush()
}
