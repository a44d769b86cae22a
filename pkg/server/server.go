// Package server serves published package-info over HTTP.
//
// Build hosts publish into a [pkginfo.Store]; consumers on other machines
// query the registry to locate a package's install root and components:
//
//	GET /v1/packages                                   list published packages
//	GET /v1/packages/{name}/{version}                  one package (?format=yaml)
//	GET /v1/packages/{name}/{version}/components/{id}  one component
//	GET /health, /ready                                probes
//	GET /metrics                                       Prometheus metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/matzehuels/stackforge/pkg/buildinfo"
	"github.com/matzehuels/stackforge/pkg/pkginfo"
)

const name = "stackforge-registry"

// Config holds server settings.
type Config struct {
	Addr            string
	RateLimit       rate.Limit // requests per second, 0 disables limiting
	RateLimitBurst  int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		RateLimit:       100,
		RateLimitBurst:  200,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server is the package-info registry.
type Server struct {
	config      *Config
	store       pkginfo.Store
	logger      *log.Logger
	registry    *prometheus.Registry
	metrics     *httpMetrics
	rateLimiter *rate.Limiter
	httpServer  *http.Server

	mu    sync.RWMutex
	ready bool
}

// New creates a server reading from store. A nil config uses DefaultConfig.
// The server owns a Prometheus registry; callers add collectors through
// Registry before Start.
func New(store pkginfo.Store, config *Config, logger *log.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		config:   config,
		store:    store,
		logger:   logger,
		registry: reg,
		metrics:  newHTTPMetrics(reg),
	}
	if config.RateLimit > 0 {
		s.rateLimiter = rate.NewLimiter(config.RateLimit, config.RateLimitBurst)
	}
	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Registry returns the server's Prometheus registry.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Server", buildinfo.UserAgent()))
	r.Use(s.logRequests)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/v1/packages", func(r chi.Router) {
		r.Use(s.limit)
		r.Use(s.instrument)
		r.Get("/", s.handleList)
		r.Get("/{name}/{version}", s.handleGet)
		r.Get("/{name}/{version}/components/{id}", s.handleComponent)
	})
	return r
}

// SetReady marks the server as ready to serve traffic.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

func (s *Server) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.SetReady(true)
	s.logger.Info("starting registry", "addr", s.httpServer.Addr, "version", buildinfo.Version)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetReady(false)
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down registry")
	return s.httpServer.Shutdown(ctx)
}
