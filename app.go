package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sdgateway/core"
	"sdgateway/gateway"
	"sdgateway/history"
	"sdgateway/logging"
	"sdgateway/metrics"
	"sdgateway/profile"
	"sdgateway/sdruntime"
	"sdgateway/server"
	"sdgateway/shutdown"
)

// historyQueueSize bounds pending history writes before Record falls back
// to synchronous inserts.
const historyQueueSize = 256

// app is the wired process: engine client, gateway service, HTTP server and
// the optional history store, all torn down by one shutdown manager.
type app struct {
	cfg     *core.Config
	logger  *logging.Logger
	manager *shutdown.Manager
	server  *server.Server
}

// newApp builds every component from cfg. Shutdown order is HTTP server,
// history writer, history database, then logger sync.
func newApp(cfg *core.Config, logger *logging.Logger) (*app, error) {
	client := sdruntime.NewClient(sdruntime.ClientConfig{
		BaseURL: cfg.EngineURL,
		Auth:    cfg.EngineAuth,
		Timeout: cfg.EngineTimeout,
	}, logger)

	var backend sdruntime.Backend = client
	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector()
		backend = metrics.InstrumentEngine(client, collector)
	}

	svc, err := gateway.NewService(gateway.Config{
		Engine:       backend,
		Upscaler:     backend,
		Registry:     backend,
		FaceRestorer: backend,
		Profiles:     profile.NewFileSource(cfg.ProfilePath),
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	storeCfg := metrics.DefaultStoreConfig()
	storeCfg.Version = version

	manager := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
	deps := server.Deps{
		Pipeline:  svc,
		Registry:  backend,
		Pinger:    client,
		Collector: collector,
		Store:     metrics.NewStore(storeCfg, time.Now()),
		Shutdown:  manager,
		Logger:    logger,
	}

	if cfg.HistoryEnabled() {
		repo, err := openHistory(cfg, logger, manager)
		if err != nil {
			return nil, err
		}
		deps.History = repo
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Host
	srvCfg.Port = cfg.Port
	srvCfg.RateLimitRPS = cfg.RateLimitRPS
	srvCfg.RateLimitBurst = cfg.RateLimitBurst

	srv, err := server.New(srvCfg, deps)
	if err != nil {
		return nil, err
	}
	manager.Register("http-server", shutdown.PriorityHTTPServer, srv.Shutdown)
	manager.Register("logger", shutdown.PriorityLogger, func(context.Context) error {
		// stdout/stderr sync fails on some platforms; nothing to recover
		_ = logger.Sync()
		return nil
	})

	return &app{cfg: cfg, logger: logger, manager: manager, server: srv}, nil
}

// openHistory opens the database, prunes old rows and starts the async
// writer. Both are registered for shutdown.
func openHistory(cfg *core.Config, logger *logging.Logger, manager *shutdown.Manager) (*history.Repository, error) {
	db, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	repo := history.NewRepository(db)

	if cfg.HistoryRetention > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		removed, err := repo.Cleanup(ctx, cfg.HistoryRetention)
		cancel()
		if err != nil {
			logger.Warn("history cleanup failed", zap.Error(err))
		} else if removed > 0 {
			logger.Infow("pruned generation history", "removed", removed, "retention", cfg.HistoryRetention.String())
		}
	}

	writer := history.NewAsyncWriter(repo.WriteHandler(), historyQueueSize, logger)
	writer.Start()
	repo.AttachWriter(writer)

	manager.Register("history-writer", shutdown.PriorityHistory, writer.Stop)
	manager.Register("history-db", shutdown.PriorityDatabase, func(context.Context) error {
		return db.Close()
	})
	return repo, nil
}

// run serves until a signal or stop, then shuts down.
func (a *app) run() error {
	a.manager.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start(a.manager.Context())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Join(err, a.manager.Shutdown())
		}
	case <-a.manager.Context().Done():
	}
	return a.manager.Shutdown()
}

// stop triggers a graceful shutdown; run returns once it completes.
func (a *app) stop() {
	a.manager.Trigger()
}
