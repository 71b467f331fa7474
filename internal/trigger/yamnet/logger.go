package yamnet

import "github.com/tphakala/hearken/internal/logger"

// GetLogger returns the package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("trigger").Module("yamnet")
}
