// Package server exposes the gateway over HTTP.
//
// This file contains the Server organism that wires the router, the
// middleware chain and the endpoint handlers together.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"sdgateway/gateway"
	"sdgateway/history"
	"sdgateway/logging"
	"sdgateway/metrics"
	"sdgateway/profile"
	"sdgateway/sdruntime"
	"sdgateway/shutdown"
)

// Pipeline is the generation surface served over HTTP. *gateway.Service
// implements it.
type Pipeline interface {
	Snapshot() (*profile.Snapshot, error)
	Generate(ctx context.Context, req gateway.GenerateRequest) (*gateway.Result, error)
	Edit(ctx context.Context, req gateway.EditRequest) (*gateway.Result, error)
	Upscale(ctx context.Context, req gateway.UpscaleRequest) (*gateway.Result, error)
}

// HistoryStore records finished requests and lists recent ones.
// *history.Repository implements it.
type HistoryStore interface {
	Record(ctx context.Context, rec history.Record) error
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

// Config configures the Server.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// LogSkipPaths are not request-logged (scrapes, probes)
	LogSkipPaths []string

	// RateLimitRPS <= 0 disables per-client rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// /history paging
	HistoryDefaultLimit int
	HistoryMaxLimit     int

	// EngineProbeInterval is how often /health re-checks the engine
	EngineProbeInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults. Write timeout is
// zero because generation requests routinely take minutes.
func DefaultConfig() Config {
	return Config{
		Host:                "127.0.0.1",
		Port:                8000,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        0,
		IdleTimeout:         120 * time.Second,
		LogSkipPaths:        []string{"/health", "/metrics"},
		RateLimitBurst:      1,
		HistoryDefaultLimit: 20,
		HistoryMaxLimit:     200,
		EngineProbeInterval: 30 * time.Second,
	}
}

// Deps are the Server's collaborators. Collector, Store and History are
// optional; the matching endpoints are disabled when nil.
type Deps struct {
	Pipeline Pipeline

	// Registry supplies the upscaler names for /config
	Registry sdruntime.Registry

	// Pinger is probed for /health; nil skips probing
	Pinger interface {
		Ping(ctx context.Context) error
	}

	Collector *metrics.Collector
	Store     *metrics.Store
	History   HistoryStore
	Shutdown  *shutdown.Manager
	Logger    *logging.Logger

	// Now defaults to time.Now
	Now func() time.Time
}

// Server is the HTTP organism. It wires:
//   - request ID, request logging and panic recovery middleware
//   - a per-client token bucket in front of the generation routes
//   - the generation, info, health, history and metrics handlers
type Server struct {
	httpServer *http.Server
	router     chi.Router
	config     Config
	deps       Deps
	logger     *logging.Logger
	limiter    *RateLimiter
	now        func() time.Time
}

// New validates deps and builds the router.
func New(config Config, deps Deps) (*Server, error) {
	if deps.Pipeline == nil {
		return nil, errors.New("server: pipeline cannot be nil")
	}
	if deps.Registry == nil {
		return nil, errors.New("server: registry cannot be nil")
	}
	if deps.Shutdown == nil {
		return nil, errors.New("server: shutdown manager cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if config.HistoryDefaultLimit < 1 {
		config.HistoryDefaultLimit = 20
	}
	if config.HistoryMaxLimit < config.HistoryDefaultLimit {
		config.HistoryMaxLimit = config.HistoryDefaultLimit
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger.Named("server"),
		now:    deps.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if config.RateLimitRPS > 0 {
		s.limiter = NewRateLimiter(config.RateLimitRPS, config.RateLimitBurst)
	}

	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(s.logger, s.config.LogSkipPaths))
	r.Use(middleware.Recoverer)

	r.Get("/config", s.handleConfig)
	r.Get("/health", s.handleHealth)
	r.Get("/history", s.handleHistory)
	if s.deps.Collector != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Collector.Handler())
	}

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Post("/txt2img", s.handleTxt2Img)
		r.Post("/img2img", s.handleImg2Img)
		r.Post("/upscale", s.handleUpscale)
	})
	return r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start listens until Shutdown is called. Background helpers (engine
// probe, limiter cleanup) stop when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.deps.Pinger != nil && s.deps.Store != nil && s.config.EngineProbeInterval > 0 {
		go s.probeEngine(ctx, s.config.EngineProbeInterval)
	}
	if s.limiter != nil {
		go s.limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)
	}

	s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for open ones to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("stopping http server")
	return s.httpServer.Shutdown(ctx)
}

// probeEngine updates the metrics store with engine reachability.
func (s *Server) probeEngine(ctx context.Context, interval time.Duration) {
	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := s.deps.Pinger.Ping(probeCtx)
		if err != nil {
			s.logger.Debug("engine probe failed", zap.Error(err))
		}
		s.deps.Store.UpdateEngineStatus(err, s.now())
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
