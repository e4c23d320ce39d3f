// Package middleware provides HTTP middleware components for the braintumor-go server.
package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mriscan/braintumor-go/internal/logger"
	"github.com/mriscan/braintumor-go/internal/observability/metrics"
)

// NewRequestID tags every request with a uuid in X-Request-ID unless the
// client already sent one.
func NewRequestID() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	})
}

// NewRequestLogger creates a request logging middleware that also feeds the
// HTTP request metrics. Either argument may be nil.
func NewRequestLogger(log logger.Logger, m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return NewRequestLoggerWithSkipper(log, m, nil)
}

// NewRequestLoggerWithSkipper creates a request logging middleware with a custom skipper.
func NewRequestLoggerWithSkipper(log logger.Logger, m *metrics.HTTPMetrics, skipper middleware.Skipper) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:       skipper,
		LogStatus:     true,
		LogURI:        true,
		LogMethod:     true,
		LogLatency:    true,
		LogRemoteIP:   true,
		LogError:      true,
		LogRequestID:  true,
		LogRoutePath:  true,
		HandleError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			route := v.RoutePath
			if route == "" {
				route = "unmatched"
			}
			m.RecordRequest(v.Method, route, v.Status, v.Latency)

			if log == nil {
				return nil
			}

			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
				logger.String("request_id", v.RequestID),
			}

			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}

			if v.Status >= 500 {
				log.Warn("request", fields...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	})
}
