package notify

import "github.com/tphakala/hearken/internal/logger"

// GetLogger returns the notify logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("notify")
}
