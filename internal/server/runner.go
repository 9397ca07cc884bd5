// Package server wires the hydrablock components together and runs them
// until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jroosing/hydrablock/internal/api"
	"github.com/jroosing/hydrablock/internal/blocker"
	"github.com/jroosing/hydrablock/internal/browser"
	"github.com/jroosing/hydrablock/internal/config"
	"github.com/jroosing/hydrablock/internal/cosmetic"
	"github.com/jroosing/hydrablock/internal/logging"
	"github.com/jroosing/hydrablock/internal/messaging"
	"github.com/jroosing/hydrablock/internal/metrics"
	"github.com/jroosing/hydrablock/internal/storage"
)

// shutdownTimeout bounds the graceful stop of the API server.
const shutdownTimeout = 5 * time.Second

// Agent is the set of running components.
type Agent struct {
	DB         *storage.DB // nil when state is kept in memory
	Metrics    *metrics.Metrics
	Blocker    *blocker.Blocker
	Dispatcher *messaging.Dispatcher
	API        *api.Server   // nil when the API is disabled
	Browser    *browser.Host // nil when the browser host is disabled

	apiListener net.Listener
}

// Channel returns an in-process channel to the agent's dispatcher.
func (a *Agent) Channel() messaging.Channel {
	return messaging.Local{Dispatcher: a.Dispatcher}
}

// APIAddr returns the address the API listens on, or "".
func (a *Agent) APIAddr() string {
	if a.apiListener == nil {
		return ""
	}
	return a.apiListener.Addr().String()
}

// Close stops every component in reverse start order. Stats are flushed by
// the blocker before the database closes.
func (a *Agent) Close() error {
	var errs []error
	if a.API != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, a.API.Shutdown(ctx))
		cancel()
	} else if a.apiListener != nil {
		errs = append(errs, a.apiListener.Close())
	}
	if a.Browser != nil {
		errs = append(errs, a.Browser.Close())
	}
	if a.Blocker != nil {
		errs = append(errs, a.Blocker.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// Runner orchestrates agent startup, configuration, and shutdown.
type Runner struct {
	logger    *slog.Logger
	onStarted func(*Agent)
}

// NewRunner creates a new runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// OnStarted registers fn to be called once every component is running.
func (r *Runner) OnStarted(fn func(*Agent)) {
	r.onStarted = fn
}

// Run starts the agent with the given configuration and blocks until SIGINT
// or SIGTERM.
//
// Agent lifecycle:
//  1. Open the settings database (if a path is configured)
//  2. Start the blocker: restore persisted state and load the filter lists
//  3. Register the message handlers
//  4. Start the management API and, when enabled, the browser host
//  5. Wait for shutdown signal (SIGINT/SIGTERM) or a server error
//  6. Stop components, flushing pending stats
func (r *Runner) Run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return r.RunWithContext(ctx, cfg)
}

// RunWithContext starts the agent and blocks until ctx is canceled or the API
// server fails.
func (r *Runner) RunWithContext(ctx context.Context, cfg *config.Config) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	agent, err := r.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := agent.Close(); err != nil {
			r.logger.Warn("shutdown incomplete", "err", err)
		}
	}()

	errCh := make(chan error, 1)
	if agent.API != nil {
		go func() {
			if err := agent.API.Serve(agent.apiListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("api server failed: %w", err)
			}
		}()
	}

	if agent.Browser != nil {
		r.openStartURLs(ctx, agent.Browser, cfg.Browser.StartURLs)
	}

	r.logStartup(cfg, agent)
	if r.onStarted != nil {
		r.onStarted(agent)
	}

	select {
	case <-ctx.Done():
		r.logger.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

// Build starts the components cfg enables and returns them without serving
// the API. The caller must Close the agent.
func (r *Runner) Build(ctx context.Context, cfg *config.Config) (*Agent, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	agent := &Agent{Metrics: metrics.New()}

	if cfg.Storage.Path != "" {
		db, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		agent.DB = db
	}

	b, err := blocker.New(blocker.Config{
		Filtering:     cfg.Filtering,
		Enabled:       cfg.Blocker.Enabled,
		LogRequests:   cfg.Blocker.LogRequests,
		LogCapacity:   cfg.Blocker.LogCapacity,
		PersistWindow: cfg.Blocker.PersistWindow,
	}, blocker.Options{
		Logger:  r.logger,
		DB:      agent.DB,
		Metrics: agent.Metrics,
	})
	if err != nil {
		_ = agent.Close()
		return nil, fmt.Errorf("failed to create blocker: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		_ = b.Close()
		_ = agent.Close()
		return nil, fmt.Errorf("failed to start blocker: %w", err)
	}
	agent.Blocker = b

	agent.Dispatcher = messaging.NewDispatcher(logging.Component(r.logger, "messaging"), agent.Metrics)
	b.Register(agent.Dispatcher)

	if cfg.Browser.Enabled {
		ch := agent.Channel()
		host := browser.NewHost(browser.Config{
			RemoteURL: cfg.Browser.RemoteURL,
			Headless:  cfg.Browser.Headless,
			Stealth:   cfg.Browser.Stealth,
			Logger:    logging.Component(r.logger, "browser"),
			Shim:      agent.Metrics,
		}, b, cosmetic.ChannelSource{Channel: ch}, cosmetic.ChannelBlocker{Channel: ch})
		if err := host.Start(ctx); err != nil {
			_ = agent.Close()
			return nil, fmt.Errorf("failed to start browser host: %w", err)
		}
		agent.Browser = host
		b.SetPickerHost(host)
	}

	if cfg.API.Enabled {
		srv := api.New(cfg, logging.Component(r.logger, "api"), api.Deps{
			Blocker:    b,
			Dispatcher: agent.Dispatcher,
			Metrics:    agent.Metrics,
		})
		ln, err := listenAPI(ctx, srv.Addr(), cfg.API.ReusePort)
		if err != nil {
			_ = agent.Close()
			return nil, fmt.Errorf("failed to listen on %s: %w", srv.Addr(), err)
		}
		agent.API = srv
		agent.apiListener = ln
	}

	return agent, nil
}

// openStartURLs opens one tab per configured URL. A failing URL is logged and
// skipped.
func (r *Runner) openStartURLs(ctx context.Context, host *browser.Host, urls []string) {
	for _, u := range urls {
		tab, err := host.Open(ctx, u)
		if err != nil {
			r.logger.Warn("failed to open start url", "url", u, "err", err)
			continue
		}
		r.logger.Info("opened tab", "url", u, "tab", tab.ID)
	}
}

// logStartup logs agent configuration at startup.
func (r *Runner) logStartup(cfg *config.Config, agent *Agent) {
	st := agent.Blocker.Store().Stats()
	r.logger.Info(
		"hydrablock running",
		"blocking", agent.Blocker.Enabled(),
		"static_rules", st.StaticRules,
		"custom_rules", st.CustomRules,
		"cosmetic_rules", st.CosmeticRules,
		"storage", cfg.Storage.Path,
		"api", agent.APIAddr(),
		"browser", agent.Browser != nil,
	)
}
