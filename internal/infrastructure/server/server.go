package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adaptyst/adaptyst/internal/infrastructure/monitoring"
	"github.com/adaptyst/adaptyst/internal/infrastructure/tracing"
	"github.com/adaptyst/adaptyst/internal/system"
)

// ErrNotAttached is returned by /entities before a system is attached.
var ErrNotAttached = errors.New("no system attached yet")

// StatusSource is what the server reports on.
type StatusSource interface {
	Status() system.Status
}

// Config configures the status server.
type Config struct {
	// Address to listen on, e.g. "127.0.0.1:8765". Port 0 picks a free one.
	Address     string
	Metrics     *monitoring.Metrics
	Tracer      *tracing.Tracer
	CORS        CORSConfig
	RateLimit   RateLimitConfig
	Development bool
	Logger      *zap.Logger
}

// Server exposes the state of a running session over HTTP.
type Server struct {
	router *gin.Engine
	hub    *Hub
	tracer *tracing.Tracer
	logger *zap.Logger

	mu     sync.RWMutex
	source StatusSource

	httpSrv  *http.Server
	listener net.Listener
	served   chan error
}

// New creates a server instance. It does not listen until Start.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("server")

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	if cfg.Tracer != nil {
		router.Use(tracing.HTTPMiddleware(cfg.Tracer))
	}
	if cfg.Metrics != nil {
		router.Use(monitoring.Middleware(cfg.Metrics))
	}
	if cfg.CORS.AllowOrigins == nil {
		cfg.CORS = DefaultCORSConfig()
	}
	router.Use(CORS(cfg.CORS))
	if cfg.RateLimit.RequestsPerSecond > 0 {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(RateLimit(cfg.RateLimit))
	}

	s := &Server{
		router:  router,
		hub:     NewHub(logger),
		tracer:  cfg.Tracer,
		logger:  logger,
		httpSrv: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	router.GET("/health", s.health)
	router.GET("/entities", s.entities)
	router.GET("/trace", s.trace)
	router.GET("/events", s.hub.HandleConnection)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	return s
}

// Attach sets the system /entities reports on.
func (s *Server) Attach(src StatusSource) {
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
}

// Publish forwards a system event to every /events subscriber. It never
// blocks and can be used directly as system.Config.Events.
func (s *Server) Publish(ev system.Event) { s.hub.Broadcast(ev) }

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the address the server listens on, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.served = make(chan error, 1)

	s.logger.Info("Starting status server", zap.String("addr", ln.Addr().String()))
	go func() {
		err := s.httpSrv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.served <- err
	}()
	return nil
}

// Shutdown stops accepting requests, disconnects event subscribers and
// waits for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down status server")
	s.hub.Close()
	if s.served == nil {
		return nil
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.served
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"subscribers": s.hub.Len(),
	})
}

func (s *Server) entities(c *gin.Context) {
	s.mu.RLock()
	src := s.source
	s.mu.RUnlock()
	if src == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": ErrNotAttached.Error()})
		return
	}

	data, err := sonic.Marshal(src.Status())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) trace(c *gin.Context) {
	if s.tracer == nil {
		c.JSON(http.StatusOK, []tracing.Record{})
		return
	}
	data, err := sonic.Marshal(s.tracer.Recent())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}
