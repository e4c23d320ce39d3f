package imaging

import (
	"github.com/mriscan/braintumor-go/internal/logger"
)

// GetLogger returns the imaging module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("imaging")
}
