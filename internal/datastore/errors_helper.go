package datastore

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tphakala/hearken/internal/errors"
)

// ErrNotConnected is returned while no database connection is open.
var ErrNotConnected = errors.NewStd("datastore is not connected")

// persistenceError wraps err with the operation that failed. Errors that
// already carry a category keep it.
func persistenceError(err error, operation, dbType string) error {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return err
	}
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryPersistence).
		Context("operation", operation).
		Context("db_type", dbType).
		Build()
}

// categorizeError labels err for the error metric.
func categorizeError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, gorm.ErrRecordNotFound), errors.IsNotFound(err):
		return "not_found"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "locked") || strings.Contains(msg, "busy"):
		return "locked"
	case strings.Contains(msg, "constraint") || strings.Contains(msg, "duplicate"):
		return "constraint"
	case strings.Contains(msg, "connection") || strings.Contains(msg, "refused") ||
		strings.Contains(msg, "broken pipe") || strings.Contains(msg, "bad connection"):
		return "connection"
	default:
		return "other"
	}
}
