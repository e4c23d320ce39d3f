// Package api provides the HTTP server for braintumor-go: the upload and
// prediction endpoints, the server rendered pages and the JSON API.
package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mriscan/braintumor-go/internal/conf"
	"github.com/mriscan/braintumor-go/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second // inference on a large scan can take a while
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultRecentPredictions is how many rows the dashboard lists.
	DefaultRecentPredictions = 10

	// multipartOverhead is added to the upload cap for form fields and boundaries.
	multipartOverhead = 64 * 1024
)

// Config holds the HTTP server configuration derived from conf.Settings.
type Config struct {
	Address string // host:port to bind

	AutoTLS  bool   // Let's Encrypt via autocert
	Host     string // domain for AutoTLS
	CertsDir string // autocert cache directory

	AllowedOrigins []string
	RateLimit      float64  // requests per second per client on /predict, 0 disables
	TrustedProxies []string // proxies allowed to set X-Forwarded-For

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string // echo BodyLimit notation, e.g. "16M"

	Debug             bool
	MetricsEnabled    bool
	RecentPredictions int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":5000",
		CertsDir:          "certs",
		AllowedOrigins:    []string{"*"},
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		ShutdownTimeout:   DefaultShutdownTimeout,
		BodyLimit:         bodyLimit(conf.DefaultMaxUploadSize),
		RecentPredictions: DefaultRecentPredictions,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()

	if addr := settings.WebServer.ListenAddress(); addr != "" {
		cfg.Address = addr
	}
	cfg.AutoTLS = settings.WebServer.AutoTLS
	cfg.Host = settings.WebServer.Host
	cfg.RateLimit = settings.WebServer.RateLimit
	cfg.TrustedProxies = settings.WebServer.TrustedProxies
	if len(settings.WebServer.CORSOrigins) > 0 {
		cfg.AllowedOrigins = settings.WebServer.CORSOrigins
	}
	if settings.WebServer.ReadTimeout > 0 {
		cfg.ReadTimeout = settings.WebServer.ReadTimeout
	}
	if settings.Upload.MaxSize > 0 {
		cfg.BodyLimit = bodyLimit(settings.Upload.MaxSize)
	}

	cfg.Debug = settings.Main.Debug
	cfg.MetricsEnabled = settings.Telemetry.Enabled

	return cfg
}

// bodyLimit expresses the upload cap plus form overhead in bytes, which
// echo's BodyLimit accepts as a bare number followed by "B".
func bodyLimit(maxUpload int64) string {
	return strconv.FormatInt(maxUpload+multipartOverhead, 10) + "B"
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.AutoTLS && c.Host == "" {
		return fmt.Errorf("AutoTLS requires webserver.host")
	}
	for _, proxy := range c.TrustedProxies {
		if _, err := parseTrustedProxy(proxy); err != nil {
			return err
		}
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}
