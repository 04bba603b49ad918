// Package server exposes an experiment manager over HTTP for consumers that
// cannot link the Go package, plus token-protected analytics for operators.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/maintai/abtest/internal/abtest"
	"github.com/maintai/abtest/internal/experiment"
	"github.com/maintai/abtest/internal/metrics"
	"github.com/maintai/abtest/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// VisitorHeader selects a per-visitor storage scope. Without it requests
// share the server's own scope.
const VisitorHeader = "X-Visitor-ID"

const maxVisitorIDLength = 128

// DefaultMaxVisitors is the visitor registry size when Options leaves it unset.
const DefaultMaxVisitors = 10000

type Options struct {
	Addr string
	// Mode is the gin mode: debug or release. Anything else leaves the
	// current gin mode alone.
	Mode string
	// Token guards the admin routes. Empty generates a random one.
	Token     string
	TokenFile string
	// MaxVisitors bounds the per-visitor managers kept in memory. The least
	// recently used one is dropped first; it reloads from storage when the
	// visitor returns.
	MaxVisitors int
	Logger      *slog.Logger
	// ManagerOptions are applied to every manager the server creates.
	ManagerOptions []abtest.Option
}

type Server struct {
	Engine *gin.Engine

	addr      string
	token     string
	tokenFile string
	logger    *slog.Logger
	startTime time.Time

	catalog  *experiment.Catalog
	store    store.Store
	events   store.EventLog
	manager  *abtest.Manager
	registry *prometheus.Registry
	metrics  *metrics.Recorder
	mgrOpts  []abtest.Option

	mu       sync.Mutex
	visitors *simplelru.LRU[string, *abtest.Manager]
}

func New(catalog *experiment.Catalog, s store.Store, o Options) (*Server, error) {
	switch o.Mode {
	case gin.DebugMode:
		gin.SetMode(gin.DebugMode)
	case gin.ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	}

	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	token := o.Token
	if token == "" {
		var err error
		if token, err = generateToken(); err != nil {
			return nil, err
		}
	}

	maxVisitors := o.MaxVisitors
	if maxVisitors <= 0 {
		maxVisitors = DefaultMaxVisitors
	}
	visitors, err := simplelru.NewLRU[string, *abtest.Manager](maxVisitors, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create visitor registry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := &Server{
		Engine:    gin.New(),
		addr:      o.Addr,
		token:     token,
		tokenFile: o.TokenFile,
		logger:    logger,
		startTime: time.Now(),
		catalog:   catalog,
		store:     s,
		events:    store.LogFor(s),
		registry:  registry,
		metrics:   metrics.New(registry),
		visitors:  visitors,
	}
	srv.mgrOpts = append([]abtest.Option{
		abtest.WithEventLog(srv.events),
		abtest.WithMetrics(srv.metrics),
		abtest.WithLogger(logger),
	}, o.ManagerOptions...)
	srv.manager = abtest.New(catalog, s, srv.mgrOpts...)

	srv.Engine.Use(gin.Recovery(), requestLogger(logger))
	srv.setupRoutes()
	return srv, nil
}

func (s *Server) setupRoutes() {
	r := s.Engine
	r.SetHTMLTemplate(dashboardTemplate())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.GET("/abtest.js", s.handleClientScript)

	api := r.Group("/api", cors())
	api.OPTIONS("/*path", func(*gin.Context) {})
	api.GET("/experiments", s.handleExperiments)
	api.GET("/identity", s.handleIdentity)
	api.GET("/experiments/:id/variant", s.handleVariant)
	api.GET("/experiments/:id/config", s.handleVariantConfig)
	api.GET("/experiments/:id/variants/:variant", s.handleInVariant)
	api.POST("/experiments/:id/conversions", s.handleConversion)

	admin := api.Group("", s.authMiddleware())
	admin.GET("/analytics", s.handleAnalytics)
	admin.GET("/results/:id", s.handleResults)
	admin.POST("/reset", s.handleReset)

	r.GET("/dashboard", s.authMiddleware(), s.handleDashboard)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0o600); err != nil {
			s.logger.Warn("failed to write token file", "path", s.tokenFile, "error", err)
		}
	}

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.addr, "experiments", s.catalog.Len())

	go func() {
		<-ctx.Done()
		s.logger.Info("stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server forced to shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

func (s *Server) Token() string {
	return s.token
}

// Metrics returns the recorder shared by every manager of the server.
func (s *Server) Metrics() *metrics.Recorder {
	return s.metrics
}

// managerFor returns the manager of the request's scope.
func (s *Server) managerFor(c *gin.Context) (*abtest.Manager, bool) {
	visitor := c.GetHeader(VisitorHeader)
	if visitor == "" {
		return s.manager, true
	}
	if len(visitor) > maxVisitorIDLength {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.visitors.Get(visitor)
	if !ok {
		scope := store.WithPrefix(s.store, "visitor:"+visitor+":")
		opts := append(append([]abtest.Option{}, s.mgrOpts...), abtest.WithIdentifier(visitor))
		m = abtest.New(s.catalog, scope, opts...)
		s.visitors.Add(visitor, m)
	}
	return m, true
}

func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+VisitorHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
