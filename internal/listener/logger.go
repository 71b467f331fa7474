package listener

import "github.com/tphakala/hearken/internal/logger"

// GetLogger returns the listener module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("listener")
}
