package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"LineGuard/pkg/http/middleware"
	applogger "LineGuard/pkg/logger"
)

// ServerOption configures Server.
type ServerOption func(*ServerConfig)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowOrigins    []string
	MetricsPath     string
	Gatherer        prometheus.Gatherer
	Registerer      prometheus.Registerer
	SlowThreshold   time.Duration
	Logger          *applogger.Logger
}

// Server wraps Echo HTTP server.
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	log    *applogger.Logger
}

// NewServer creates the Echo server with recovery, logging, metrics and
// CORS middleware, then lets each handler register its routes.
func NewServer(handlers []Handler, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		AllowOrigins:    []string{"*"},
		MetricsPath:     "/metrics",
		SlowThreshold:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	l := cfg.Logger
	if l == nil {
		l = applogger.Nop()
	}
	l = l.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	// Recover is innermost so the metrics and request log see the 500 it writes.
	e.Use(middleware.RequestLogging(l))
	e.Use(middleware.Metrics(cfg.Registerer, l, cfg.SlowThreshold))
	if len(cfg.AllowOrigins) > 0 {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: cfg.AllowOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{
				echo.HeaderOrigin,
				echo.HeaderContentType,
				echo.HeaderAccept,
				echo.HeaderAuthorization,
			},
		}))
	}
	e.Use(middleware.Recover(l))

	for _, h := range handlers {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}

	if cfg.MetricsPath != "" {
		g := cfg.Gatherer
		if g == nil {
			g = prometheus.DefaultGatherer
		}
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}

	return &Server{echo: e, config: cfg, log: l}
}

// Start listens in the background. Listener failures are sent on the
// returned channel.
func (s *Server) Start() <-chan error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", applogger.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("stopped gracefully")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// WithHost sets server host.
func WithHost(host string) ServerOption {
	return func(c *ServerConfig) {
		c.Host = host
	}
}

// WithPort sets server port.
func WithPort(port int) ServerOption {
	return func(c *ServerConfig) {
		c.Port = port
	}
}

// WithTimeouts sets read/write timeouts.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ReadTimeout = read
		c.WriteTimeout = write
		c.ShutdownTimeout = shutdown
	}
}

// WithAllowOrigins sets the CORS origins; none disables CORS.
func WithAllowOrigins(origins ...string) ServerOption {
	return func(c *ServerConfig) {
		c.AllowOrigins = origins
	}
}

// WithMetrics serves reg on path and registers HTTP metrics on it. An empty
// path disables the endpoint.
func WithMetrics(path string, reg *prometheus.Registry) ServerOption {
	return func(c *ServerConfig) {
		c.MetricsPath = path
		if reg != nil {
			c.Gatherer = reg
			c.Registerer = reg
		}
	}
}

func WithLogger(l *applogger.Logger) ServerOption {
	return func(c *ServerConfig) {
		c.Logger = l
	}
}
