// Package runtime assembles the contractbot components from configuration
// and serves them over HTTP.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/szaher/contractbot/internal/auth"
	"github.com/szaher/contractbot/internal/config"
	"github.com/szaher/contractbot/internal/dictionary"
	"github.com/szaher/contractbot/internal/engine"
	"github.com/szaher/contractbot/internal/extract"
	"github.com/szaher/contractbot/internal/flow"
	"github.com/szaher/contractbot/internal/normalize"
	"github.com/szaher/contractbot/internal/session"
	"github.com/szaher/contractbot/internal/store"
	"github.com/szaher/contractbot/internal/telemetry"
	"github.com/szaher/contractbot/internal/validation"
)

const shutdownTimeout = 10 * time.Second

// Runtime owns every long-lived component.
type Runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	store    store.Store
	dict     *dictionary.Dictionary
	watcher  *dictionary.Watcher
	registry *session.Registry
	engine   *engine.Engine
	server   *Server
}

// Options configures the runtime.
type Options struct {
	Logger  *slog.Logger
	Version string
	// Store replaces the configured backend, mainly for tests.
	Store store.Store
	// Clock replaces time.Now for field validation and session expiry.
	Clock func() time.Time
}

// New builds a runtime from cfg. The caller must Close it.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := telemetry.NewMetrics()

	st := opts.Store
	if st == nil {
		var err error
		st, err = store.Open(ctx, cfg.StoreOptions(logger))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	rt := &Runtime{cfg: cfg, logger: logger, metrics: metrics, store: st}
	if err := rt.build(opts); err != nil {
		st.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(opts Options) error {
	cfg, logger := rt.cfg, rt.logger

	var err error
	if cfg.Dictionary != "" {
		rt.dict, err = dictionary.Open(cfg.Dictionary)
		if err != nil {
			return fmt.Errorf("load dictionary: %w", err)
		}
		rt.watcher = dictionary.NewWatcher(rt.dict, cfg.Dictionary,
			dictionary.WithWatchLogger(logger),
			dictionary.WithReloadHook(rt.metrics.RecordDictionaryReload),
		)
	} else {
		rt.dict, err = dictionary.Default()
		if err != nil {
			return fmt.Errorf("load default dictionary: %w", err)
		}
	}

	var vopts []validation.Option
	regOpts := append(cfg.RegistryOptions(), session.WithLogger(logger), session.WithObserver(rt.metrics))
	if opts.Clock != nil {
		vopts = append(vopts, validation.WithClock(opts.Clock))
		regOpts = append(regOpts, session.WithClock(opts.Clock))
	}

	flows, err := flow.Defaults(validation.New(vopts...), rt.store)
	if err != nil {
		return fmt.Errorf("build flows: %w", err)
	}

	var ids extract.IdentifierValidator = rt.store
	if cfg.IdentifierCacheTTL > 0 {
		ids = store.NewCachedValidator(rt.store, cfg.IdentifierCacheTTL, store.WithCacheMetrics(rt.metrics))
	}
	norm := normalize.New(rt.dict, rt.dict, normalize.WithLogger(logger))
	extractor := extract.New(norm, ids, extract.WithLogger(logger))

	rt.registry = session.NewRegistry(regOpts...)
	rt.engine, err = engine.New(rt.registry, flows, extractor,
		engine.WithLogger(logger),
		engine.WithMetrics(rt.metrics),
		engine.WithTracer(telemetry.NewTracer(telemetry.LogExporter(logger))),
		engine.WithRetry(cfg.Retry()),
		engine.WithCorrector(norm),
	)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if cfg.APIKey == "" {
		logger.Warn("no API key configured, /v1/ routes are unauthenticated; set CONTRACTBOT_API_KEY to require one")
	}
	rt.server = NewServer(rt.engine, rt.store,
		WithAPIKey(cfg.APIKey),
		WithLogger(logger),
		WithMetrics(rt.metrics),
		WithRateLimiter(auth.NewRateLimiter(cfg.RateLimit)),
		WithVersion(opts.Version),
	)
	return nil
}

// Engine returns the turn engine.
func (rt *Runtime) Engine() *engine.Engine {
	return rt.engine
}

// Handler returns the HTTP handler.
func (rt *Runtime) Handler() http.Handler {
	return rt.server.Handler()
}

// Run serves HTTP on the configured address and runs the session sweep and
// dictionary watcher until ctx is cancelled or one of them fails.
func (rt *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              rt.cfg.Addr,
		Handler:           rt.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		rt.logger.Info("contractbot server starting", "addr", rt.cfg.Addr, "store", rt.cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rt.logger.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return rt.registry.Start(ctx)
	})
	if rt.watcher != nil {
		g.Go(func() error {
			return rt.watcher.Run(ctx)
		})
	}
	return g.Wait()
}

// RunBackground runs the session sweep and dictionary watcher without the
// HTTP server, for the interactive chat.
func (rt *Runtime) RunBackground(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.registry.Start(ctx) })
	if rt.watcher != nil {
		g.Go(func() error { return rt.watcher.Run(ctx) })
	}
	return g.Wait()
}

// Close releases the store.
func (rt *Runtime) Close() error {
	if err := rt.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
