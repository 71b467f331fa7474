package health

import "github.com/tphakala/hearken/internal/logger"

// GetLogger returns the health module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("health")
}
