package api

import (
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	mw "github.com/mriscan/braintumor-go/internal/api/middleware"
	"github.com/mriscan/braintumor-go/internal/classifier"
	"github.com/mriscan/braintumor-go/internal/datastore"
	"github.com/mriscan/braintumor-go/internal/logger"
	"github.com/mriscan/braintumor-go/internal/mqtt"
	"github.com/mriscan/braintumor-go/internal/observability"
	"github.com/mriscan/braintumor-go/internal/observability/metrics"
	"github.com/mriscan/braintumor-go/internal/upload"
)

// Prediction detail cache timings. Stored predictions never change.
const (
	predictionCacheTTL     = 5 * time.Minute
	predictionCacheCleanup = 10 * time.Minute
)

// EventPublisher receives an event for every stored prediction.
type EventPublisher interface {
	PublishPrediction(event mqtt.PredictionEvent)
}

// Controller holds the dependencies of the HTTP handlers.
type Controller struct {
	DS      datastore.Interface
	Model   *classifier.Handle
	Uploads *upload.Store
	Events  EventPublisher // optional

	config            *Config
	log               logger.Logger
	metrics           *observability.Metrics
	httpMetrics       *metrics.HTTPMetrics
	classifierMetrics *metrics.ClassifierMetrics
	predictionCache   *cache.Cache
	sessions          sessions.Store
	startTime         time.Time
}

func newController(s *Server) *Controller {
	c := &Controller{
		DS:              s.dataStore,
		Model:           s.model,
		Uploads:         s.uploads,
		config:          s.config,
		log:             GetLogger(),
		metrics:         s.metrics,
		predictionCache: cache.New(predictionCacheTTL, predictionCacheCleanup),
		sessions:        newSessionStore(s.settings.Main.SecretKey, s.config.AutoTLS),
		startTime:       s.startTime,
	}
	if s.events != nil {
		c.Events = s.events
	}
	if s.metrics != nil {
		c.httpMetrics = s.metrics.HTTP
		c.classifierMetrics = s.metrics.Classifier
	}
	return c
}

// initRoutes registers every endpoint on e.
func (c *Controller) initRoutes(e *echo.Echo) {
	e.GET("/", c.Index)
	e.GET("/upload", c.UploadPage)

	predict := []echo.MiddlewareFunc{}
	if c.config.RateLimit > 0 {
		predict = append(predict, mw.NewRateLimiter(c.config.RateLimit))
	}
	e.POST("/predict", c.Predict, predict...)

	e.GET("/results/:id", c.ResultPage)
	e.GET("/dashboard", c.DashboardPage)
	e.GET("/health", c.Health)

	// uploaded scans, for the result page
	e.Static("/uploads", c.Uploads.Dir())

	api := e.Group("/api")
	api.GET("/predictions", c.ListPredictions)
	api.GET("/predictions/:id", c.GetPrediction)
	api.GET("/dashboard", c.Dashboard)
	api.GET("/doctors", c.ListDoctors)
	api.POST("/doctors", c.CreateDoctor)

	if c.config.MetricsEnabled && c.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}
