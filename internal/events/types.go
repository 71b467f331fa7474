// Package events fans detection events out to consumers without ever
// blocking the producer. Consumers run on bus workers and are retried with
// exponential backoff.
package events

import (
	"context"

	"github.com/tphakala/hearken/internal/detection"
)

// Consumer processes published detections.
type Consumer interface {
	// Name identifies the consumer in logs and metrics.
	Name() string
	// Consume handles one event. A returned error is retried unless
	// IsPermanent reports it as permanent.
	Consume(ctx context.Context, e *detection.Event) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc struct {
	ID string
	Fn func(ctx context.Context, e *detection.Event) error
}

func (c ConsumerFunc) Name() string { return c.ID }

func (c ConsumerFunc) Consume(ctx context.Context, e *detection.Event) error { return c.Fn(ctx, e) }

// FailureHandler is called when a consumer gives up on an event.
type FailureHandler func(consumer string, e *detection.Event, err error)

// Stats contains runtime statistics for monitoring.
type Stats struct {
	Published          uint64
	Dropped            uint64
	Delivered          uint64
	Retries            uint64
	Failures           uint64
	ConsumerPanics     uint64
	QueueDepth         int
	QueueCapacity      int
	FailuresByConsumer map[string]uint64
}
