package learning

import "github.com/tphakala/hearken/internal/logger"

// GetLogger returns the learning module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("learning")
}
