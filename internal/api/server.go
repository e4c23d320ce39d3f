package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/crypto/acme/autocert"

	mw "github.com/mriscan/braintumor-go/internal/api/middleware"
	"github.com/mriscan/braintumor-go/internal/classifier"
	"github.com/mriscan/braintumor-go/internal/conf"
	"github.com/mriscan/braintumor-go/internal/datastore"
	"github.com/mriscan/braintumor-go/internal/errors"
	"github.com/mriscan/braintumor-go/internal/logger"
	"github.com/mriscan/braintumor-go/internal/observability"
	"github.com/mriscan/braintumor-go/internal/observability/metrics"
	"github.com/mriscan/braintumor-go/internal/upload"
)

// Server is the HTTP server for braintumor-go.
// It owns the Echo instance, the middleware stack and the routes.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	log      logger.Logger

	// Dependencies
	dataStore datastore.Interface
	model     *classifier.Handle
	uploads   *upload.Store
	events    EventPublisher
	metrics   *observability.Metrics

	controller *Controller

	startTime    time.Time
	shutdownOnce sync.Once
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithDataStore sets the datastore for the server.
func WithDataStore(ds datastore.Interface) ServerOption {
	return func(s *Server) {
		s.dataStore = ds
	}
}

// WithModel sets the classifier handle. It may be unloaded.
func WithModel(h *classifier.Handle) ServerOption {
	return func(s *Server) {
		s.model = h
	}
}

// WithUploadStore sets where uploaded images are written.
func WithUploadStore(store *upload.Store) ServerOption {
	return func(s *Server) {
		s.uploads = store
	}
}

// WithEventPublisher sets the receiver of prediction events.
func WithEventPublisher(p EventPublisher) ServerOption {
	return func(s *Server) {
		s.events = p
	}
}

// WithMetrics sets the observability metrics for the server.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a new HTTP server with the given settings and options.
// The datastore, model and upload store options are required.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		config:    config,
		settings:  settings,
		log:       GetLogger(),
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.dataStore == nil || s.model == nil || s.uploads == nil {
		return nil, errors.Newf("server requires a datastore, a model handle and an upload store").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	renderer, err := NewTemplateRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.Renderer = renderer
	if s.echo.IPExtractor, err = newIPExtractor(config.TrustedProxies); err != nil {
		return nil, err
	}

	// echo's internal logger only reports startup problems; requests go through ours
	if config.Debug {
		s.echo.Logger.SetLevel(log.DEBUG)
	} else {
		s.echo.Logger.SetLevel(log.ERROR)
	}

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	if config.AutoTLS {
		s.echo.AutoTLSManager.Cache = autocert.DirCache(config.CertsDir)
		s.echo.AutoTLSManager.HostPolicy = autocert.HostWhitelist(config.Host)
	}

	s.setupMiddleware()

	s.controller = newController(s)
	s.controller.initRoutes(s.echo)

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address),
		logger.Bool("auto_tls", config.AutoTLS),
		logger.Bool("debug", config.Debug),
		logger.Bool("rate_limit", config.RateLimit > 0),
		logger.Bool("metrics", config.MetricsEnabled && s.metrics != nil))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	s.echo.Use(mw.NewRequestID())

	var httpMetrics *metrics.HTTPMetrics
	if s.metrics != nil {
		httpMetrics = s.metrics.HTTP
	}
	s.echo.Use(mw.NewRequestLogger(s.log, httpMetrics))

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins
	if !s.config.AutoTLS {
		securityConfig.HSTSMaxAge = 0
	}

	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
}

// ListenAndServe serves HTTP requests until Shutdown is called.
func (s *Server) ListenAndServe() error {
	addr := s.config.Address
	s.log.Info("starting HTTP server",
		logger.String("address", addr),
		logger.Bool("auto_tls", s.config.AutoTLS))

	var err error
	if s.config.AutoTLS {
		err = s.echo.StartAutoTLS(addr)
	} else {
		err = s.echo.Start(addr)
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("address", addr).
			Build()
	}
	return nil
}

// Shutdown gracefully stops the server, waiting at most the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if shutdownErr := s.echo.Shutdown(shutdownCtx); shutdownErr != nil {
			s.log.Error("error during server shutdown", logger.Error(shutdownErr))
			err = fmt.Errorf("shutdown error: %w", shutdownErr)
		}
		s.controller.predictionCache.Flush()
		s.log.Info("server shutdown complete")
	})
	return err
}

// Echo returns the underlying Echo instance.
// This is useful for testing or advanced configuration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Controller returns the request handlers.
func (s *Server) Controller() *Controller {
	return s.controller
}
