package events

import (
	"context"
	"time"

	"github.com/tphakala/hearken/internal/detection"
	"github.com/tphakala/hearken/internal/logger"
)

// DetectionStore persists detections.
type DetectionStore interface {
	AppendDetection(ctx context.Context, e *detection.Event) (uint, error)
}

// PersistenceConsumer writes every detection to the store.
type PersistenceConsumer struct {
	store   DetectionStore
	timeout time.Duration
}

// NewPersistenceConsumer returns a consumer bounding each write by timeout.
func NewPersistenceConsumer(store DetectionStore, timeout time.Duration) *PersistenceConsumer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PersistenceConsumer{store: store, timeout: timeout}
}

func (p *PersistenceConsumer) Name() string { return "persistence" }

// Consume implements Consumer.
func (p *PersistenceConsumer) Consume(ctx context.Context, e *detection.Event) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	id, err := p.store.AppendDetection(ctx, e)
	if err != nil {
		return err
	}
	GetLogger().WithContext(ctx).Debug("detection persisted", logger.Uint64("id", uint64(id)))
	return nil
}
