package notify

import (
	"context"
	"io"
	"log"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/hearken/internal/conf"
	"github.com/tphakala/hearken/internal/detection"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/observability/metrics"
)

const outletPush = "push"

// sender is the subset of the shoutrrr router the notifier uses.
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// Push sends detections to every configured shoutrrr URL.
type Push struct {
	node          string
	minConfidence float64
	metrics       *metrics.NotifyMetrics
	sender        sender
}

// NewPush validates the service URLs and builds the sender. m may be nil.
func NewPush(settings *conf.PushSettings, node string, m *metrics.NotifyMetrics) (*Push, error) {
	if len(settings.URLs) == 0 {
		return nil, notifyError(errors.NewStd("at least one push URL is required"), outletPush, "configure").
			Category(errors.CategoryConfiguration).
			Build()
	}
	router, err := shoutrrr.CreateSender(slices.Clone(settings.URLs)...)
	if err != nil {
		// shoutrrr errors can echo the URL, which carries tokens
		return nil, notifyError(errors.NewStd(logger.RedactSensitiveData(err.Error())), outletPush, "configure").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.TimeoutSeconds > 0 {
		router.Timeout = time.Duration(settings.TimeoutSeconds) * time.Second
	}
	router.SetLogger(log.New(io.Discard, "", 0))

	GetLogger().Info("push notifications enabled", logger.Int("services", len(settings.URLs)))
	return newPushWithSender(router, node, settings.MinConfidence, m), nil
}

func newPushWithSender(s sender, node string, minConfidence float64, m *metrics.NotifyMetrics) *Push {
	return &Push{node: node, minConfidence: minConfidence, metrics: m, sender: s}
}

func (p *Push) Name() string { return outletPush }

// Consume implements events.Consumer. Events under the minimum confidence
// are skipped.
func (p *Push) Consume(ctx context.Context, e *detection.Event) error {
	if e.Confidence < p.minConfidence {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	started := time.Now()
	params := stypes.Params{}
	params.SetTitle(Title(p.node, e))

	var err error
	for _, sendErr := range p.sender.Send(Message(e), &params) {
		if sendErr != nil {
			err = notifyError(errors.NewStd(logger.RedactSensitiveData(sendErr.Error())), outletPush, "send").Build()
			break
		}
	}
	if p.metrics != nil {
		p.metrics.ObserveDelivery(outletPush, started, err)
	}
	return err
}
