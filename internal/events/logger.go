package events

import "github.com/tphakala/hearken/internal/logger"

// GetLogger returns the events logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("events")
}
