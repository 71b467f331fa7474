package conf

import "github.com/tphakala/hearken/internal/logger"

// GetLogger returns the config module logger from the current global logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
