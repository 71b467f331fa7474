// interfaces.go defines the persistence contract hearken depends on
package datastore

import (
	"context"

	"github.com/tphakala/hearken/internal/detection"
	"github.com/tphakala/hearken/internal/learning"
)

// Interface is the durable record store. Every method honors ctx and fails
// with a persistence-category error when the database cannot be reached.
type Interface interface {
	learning.Persister
	learning.History
	learning.SessionRecorder

	// AppendDetection stores an event with its audio and returns the row ID.
	AppendDetection(ctx context.Context, e *detection.Event) (uint, error)
	// AppendSystemLog stores an operational event.
	AppendSystemLog(ctx context.Context, level, category, message string, data map[string]any) error
	// AppendPerformanceMetric stores one health cycle sample.
	AppendPerformanceMetric(ctx context.Context, m *PerformanceMetric) error
	// MarkFalsePositive sets or clears the false-positive flag of a detection.
	MarkFalsePositive(ctx context.Context, id uint, flagged bool) error

	Ping(ctx context.Context) error
	Reconnect(ctx context.Context) error
	// Prune deletes the oldest rows beyond the limits.
	Prune(ctx context.Context, limits RetentionLimits) (PruneResult, error)
	Counts(ctx context.Context) (Counts, error)
	Close() error
}

var _ Interface = (*Store)(nil)
