package conf

import "github.com/mriscan/braintumor-go/internal/logger"

// GetLogger returns the config package logger. It is fetched from the global
// logger on every call because configuration loads before logging is set up.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
