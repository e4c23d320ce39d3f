// Package telemetry wires optional Sentry error reporting into the errors package.
package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/mriscan/braintumor-go/internal/buildinfo"
	"github.com/mriscan/braintumor-go/internal/conf"
	"github.com/mriscan/braintumor-go/internal/errors"
	"github.com/mriscan/braintumor-go/internal/logger"
)

var initialized atomic.Bool

// GetLogger returns the telemetry module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// Init configures the Sentry SDK and registers it as the reporter for
// EnhancedErrors. It does nothing when sentry.enabled is false.
func Init(settings *conf.Settings) error {
	return initWithTransport(settings, nil)
}

func initWithTransport(settings *conf.Settings, transport sentry.Transport) error {
	if !settings.Sentry.Enabled {
		errors.SetTelemetryReporter(nil)
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:        settings.Sentry.DSN,
		SampleRate: 1.0,
		Debug:      false,

		AttachStacktrace: false,
		Environment:      settings.Main.Profile,
		ServerName:       "",
		Release:          "braintumor-go@" + buildinfo.Current().GetVersion(),

		BeforeSend: beforeSend,
		Transport:  transport,
	})
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	errors.SetPrivacyScrubber(logger.RedactSensitiveData)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized.Store(true)

	GetLogger().Info("error reporting enabled",
		logger.String("environment", settings.Main.Profile))
	return nil
}

// Flush waits up to timeout for queued events. Safe to call when Init was skipped.
func Flush(timeout time.Duration) {
	if !initialized.Load() {
		return
	}
	if !sentry.Flush(timeout) {
		GetLogger().Warn("sentry flush timed out", logger.Duration("timeout", timeout))
	}
}

func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	return applyPrivacyFilters(event)
}

// applyPrivacyFilters strips host and user identification from an event.
// Patient data never belongs in a report.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Request = nil

	for _, key := range []string{"device", "os", "runtime"} {
		delete(event.Contexts, key)
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	delete(event.Tags, "server_name")
	delete(event.Tags, "hostname")

	event.Message = logger.RedactSensitiveData(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = logger.RedactSensitiveData(event.Exception[i].Value)
	}

	return event
}
