package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"burnvault/internal/alerts"
	"burnvault/internal/config"
	"burnvault/internal/history"
	"burnvault/internal/journal"
	"burnvault/internal/keeper"
	"burnvault/internal/metrics"
	"burnvault/internal/server"
	"burnvault/internal/state/sqlite"
	"burnvault/internal/ticks"
	"burnvault/internal/vault"
	"burnvault/internal/venue"
)

const shutdownTimeout = 10 * time.Second

// App owns the daemon's components: the state store, the vault engine and
// its event sinks, the venue integrations, and the serving surfaces. New
// wires everything from configuration; Run owns the lifecycle.
type App struct {
	cfg        *config.Config
	log        *zap.Logger
	store      *sqlite.Store
	journal    *journal.Journal
	history    *history.Writer
	prom       *metrics.Prometheus
	engine     *vault.Engine
	keeper     *keeper.Keeper
	feed       *venue.Feed
	api        *server.Server
	metricsSrv *http.Server
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	genesis, err := ticks.ResolveGenesis(ctx, store, cfg.Ticks.Genesis, log)
	if err != nil {
		return nil, err
	}
	clock, err := ticks.NewClock(genesis, cfg.Ticks.Interval)
	if err != nil {
		return nil, err
	}

	var router vault.Router
	switch cfg.Venue.RouterMode {
	case "http":
		router = venue.NewRouterClient(cfg.Venue.RouterURL, cfg.Venue.Timeout, store, log)
	default:
		router = venue.NewSimRouter(log)
	}
	var global vault.GlobalRegistry
	if cfg.Venue.RegistryURL != "" {
		global = venue.NewRegistry(cfg.Venue.RegistryURL, cfg.Venue.Timeout, log)
	}

	prom := metrics.NewPrometheus()

	var sinks []vault.EventSink
	var jnl *journal.Journal
	if cfg.Journal.EnabledValue() {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
			return nil, err
		}
		jnl, err = journal.Open(cfg.Journal.Path, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, jnl)
	}
	hist, err := history.New(cfg.History, log)
	if err != nil {
		return nil, err
	}
	if hist != nil {
		sinks = append(sinks, hist)
	}
	sinks = append(sinks, alerts.NewWebhook(cfg.Alerts, log))

	admin, err := vault.ParseAddress(cfg.Engine.Admin)
	if err != nil {
		return nil, fmt.Errorf("engine admin: %w", err)
	}
	authority, err := vault.ParseAddress(cfg.Engine.VenueAuthority)
	if err != nil {
		return nil, fmt.Errorf("engine venue authority: %w", err)
	}
	burnSink, err := vault.ParseAddress(cfg.Engine.BurnSink)
	if err != nil {
		return nil, fmt.Errorf("engine burn sink: %w", err)
	}
	buyIncrement, err := vault.ParseAmount(cfg.Engine.BuyIncrement)
	if err != nil {
		return nil, fmt.Errorf("engine buy increment: %w", err)
	}
	burnIncrement, err := vault.ParseAmount(cfg.Engine.BurnIncrement)
	if err != nil {
		return nil, fmt.Errorf("engine burn increment: %w", err)
	}
	shared, err := sharedFromConfig(cfg.Shared)
	if err != nil {
		return nil, err
	}

	engine, err := vault.New(ctx, vault.Options{
		Log:                log,
		Store:              store,
		Router:             router,
		Ticks:              clock,
		Global:             global,
		Metrics:            prom.Metrics,
		Sinks:              sinks,
		Admin:              admin,
		Shared:             shared,
		VenueAuthority:     authority,
		PriceMultiplierBps: cfg.Engine.PriceMultiplierBps,
		BuyIncrement:       buyIncrement,
		BurnIncrement:      burnIncrement,
		BurnDelayTicks:     cfg.Engine.BurnDelayTicks,
		BurnSink:           burnSink,
	})
	if err != nil {
		return nil, err
	}

	kpr, err := keeper.New(cfg.Keeper, engine, hist, log)
	if err != nil {
		return nil, err
	}

	var feed *venue.Feed
	if cfg.Feed.Enabled {
		wsClient := venue.NewWSClient(cfg.Feed.URL, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval, log)
		feed = venue.NewFeed(wsClient, engine, authority, store, prom.Metrics, log)
	}

	api := server.New(cfg.Server, engine, log)

	var metricsSrv *http.Server
	if cfg.Metrics.EnabledValue() {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, prom.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return &App{
		cfg:        cfg,
		log:        log,
		store:      store,
		journal:    jnl,
		history:    hist,
		prom:       prom,
		engine:     engine,
		keeper:     kpr,
		feed:       feed,
		api:        api,
		metricsSrv: metricsSrv,
	}, nil
}

func sharedFromConfig(cfg config.SharedConfig) (vault.SharedConfig, error) {
	var sc vault.SharedConfig
	var err error
	if cfg.Factory != "" {
		if sc.Factory, err = vault.ParseAddress(cfg.Factory); err != nil {
			return sc, fmt.Errorf("shared factory: %w", err)
		}
	}
	if cfg.SwapRouter != "" {
		if sc.SwapRouter, err = vault.ParseAddress(cfg.SwapRouter); err != nil {
			return sc, fmt.Errorf("shared swap router: %w", err)
		}
	}
	if sc.VenuePool, err = vault.ParseAddress(cfg.VenuePool); err != nil {
		return sc, fmt.Errorf("shared venue pool: %w", err)
	}
	return sc, nil
}

// Run starts every component and blocks until the context ends or a serving
// component fails. Shutdown drains the serving surfaces first, then stops
// the keeper, then closes the sinks and the store.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	a.history.Start(ctx)
	a.keeper.Start()

	errCh := make(chan error, 2)
	go func() {
		if err := a.api.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	if a.metricsSrv != nil {
		go func() {
			if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}
	if a.feed != nil {
		go a.runFeed(ctx)
	}

	a.log.Info("vault daemon started",
		zap.String("api_address", a.cfg.Server.Address),
		zap.String("router_mode", a.cfg.Venue.RouterMode),
		zap.Bool("feed_enabled", a.feed != nil),
		zap.Bool("keeper_enabled", a.keeper != nil),
	)

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-errCh:
		runErr = err
	}
	a.shutdown()
	return runErr
}

// runFeed keeps the revenue feed alive. A feed that stops for any reason
// other than shutdown is restarted after the reconnect delay; applied
// sequence numbers are persisted, so the restart never double-counts.
func (a *App) runFeed(ctx context.Context) {
	for {
		err := a.feed.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		a.log.Warn("venue feed stopped, restarting", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.cfg.Feed.ReconnectDelay):
		}
	}
}

func (a *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.api.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("api server shutdown failed", zap.Error(err))
	}
	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
	a.keeper.Stop()
}

func (a *App) close() {
	_ = a.history.Close()
	if a.journal != nil {
		_ = a.journal.Close()
	}
	_ = a.store.Close()
}
