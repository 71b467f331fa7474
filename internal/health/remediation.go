package health

import (
	"context"
	"time"

	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/observability/metrics"
)

// Remediation action names.
const (
	ActionReconnect      = "reconnect"
	ActionResetPipeline  = "reset_pipeline"
	ActionRestartCapture = "restart_capture"
	ActionPrune          = "prune"
)

// Remediate runs the named action. Concurrent calls for the same action
// share a single run and its result. Every action is safe to repeat.
func (m *Monitor) Remediate(ctx context.Context, action string) error {
	_, err, shared := m.group.Do(action, func() (any, error) {
		return nil, m.runAction(ctx, action)
	})
	if shared {
		GetLogger().Debug("remediation shared with concurrent caller", logger.String("action", action))
	}
	return err
}

func (m *Monitor) runAction(ctx context.Context, action string) error {
	started := time.Now()
	var err error
	switch action {
	case ActionReconnect:
		err = m.reconnect(ctx)
	case ActionResetPipeline:
		err = m.pipeline.ResetPipeline(ctx)
	case ActionRestartCapture:
		err = m.pipeline.RestartCapture(ctx)
	case ActionPrune:
		err = m.prune(ctx)
	default:
		return errors.Newf("unknown remediation action %q", action).
			Component("health").
			Category(errors.CategoryValidation).
			Build()
	}

	m.remediationAttempts.Add(1)
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		err = errors.New(err).
			Component("health").
			Category(errors.CategoryRemediation).
			Context("action", action).
			Timing(action, time.Since(started)).
			Build()
	} else {
		m.remediationSuccesses.Add(1)
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.Remediations.WithLabelValues(action, status).Inc()
	}
	return err
}

// reconnect retries the store connection with exponential backoff.
func (m *Monitor) reconnect(ctx context.Context) error {
	if m.store == nil {
		return errors.NewStd("no persistence store configured")
	}
	delay := m.cfg.ReconnectDelay
	var err error
	for attempt := 1; attempt <= m.cfg.ReconnectAttempts; attempt++ {
		err = m.withTimeout(ctx, m.store.Reconnect)
		if err == nil {
			GetLogger().Info("reconnected to persistence store", logger.Int("attempt", attempt))
			return nil
		}
		GetLogger().Warn("reconnect attempt failed",
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", m.cfg.ReconnectAttempts),
			logger.Error(err))
		if attempt == m.cfg.ReconnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (m *Monitor) prune(ctx context.Context) error {
	if m.store == nil {
		return errors.NewStd("no persistence store configured")
	}
	tctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	res, err := m.store.Prune(tctx, m.cfg.Retention)
	if err != nil {
		return err
	}
	GetLogger().Info("pruned persisted rows",
		logger.Int64("system_logs", res.SystemLogs),
		logger.Int64("performance_metrics", res.PerformanceMetrics),
		logger.Int64("detections", res.Detections))
	return nil
}

func (m *Monitor) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	return fn(tctx)
}

// SelfFixRate returns successful remediations over attempted, 1 when none ran.
func (m *Monitor) SelfFixRate() float64 {
	attempts := m.remediationAttempts.Load()
	if attempts == 0 {
		return 1
	}
	return float64(m.remediationSuccesses.Load()) / float64(attempts)
}
