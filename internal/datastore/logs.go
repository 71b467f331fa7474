package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/hearken/internal/logger"
	"github.com/tphakala/hearken/internal/observability/metrics"
)

// AppendSystemLog stores an operational event.
func (s *Store) AppendSystemLog(ctx context.Context, level, category, message string, data map[string]any) error {
	row := &SystemLog{
		Level:    level,
		Category: category,
		Message:  message,
		Data:     data,
	}
	return s.do(ctx, metrics.OpAppendLog, func(db *gorm.DB) error {
		return db.Create(row).Error
	})
}

// RecentSystemLogs returns up to limit log rows, newest first.
func (s *Store) RecentSystemLogs(ctx context.Context, limit int) ([]SystemLog, error) {
	var rows []SystemLog
	err := s.do(ctx, "recent_logs", func(db *gorm.DB) error {
		return db.Order("id DESC").Limit(limit).Find(&rows).Error
	})
	return rows, err
}

// AppendPerformanceMetric stores one health cycle sample.
func (s *Store) AppendPerformanceMetric(ctx context.Context, m *PerformanceMetric) error {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now()
	}
	return s.do(ctx, metrics.OpAppendMetric, func(db *gorm.DB) error {
		return db.Create(m).Error
	})
}

// Prune keeps the newest rows of each capped table and deletes the rest.
func (s *Store) Prune(ctx context.Context, limits RetentionLimits) (PruneResult, error) {
	var res PruneResult
	err := s.do(ctx, metrics.OpPrune, func(db *gorm.DB) error {
		var err error
		if res.SystemLogs, err = keepNewest(db, &SystemLog{}, limits.SystemLogs); err != nil {
			return err
		}
		if res.PerformanceMetrics, err = keepNewest(db, &PerformanceMetric{}, limits.PerformanceMetrics); err != nil {
			return err
		}
		res.Detections, err = keepNewest(db, &Detection{}, limits.Detections)
		return err
	})
	if err != nil {
		return res, err
	}
	if res.Total() > 0 {
		GetLogger().Info("pruned old rows",
			logger.Int64("system_logs", res.SystemLogs),
			logger.Int64("performance_metrics", res.PerformanceMetrics),
			logger.Int64("detections", res.Detections))
	}
	return res, nil
}

// keepNewest deletes all but the keep highest-ID rows of model. The cutoff
// is read first because mysql cannot delete from a table it selects from.
func keepNewest(db *gorm.DB, model any, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	var ids []uint
	if err := db.Model(model).Order("id DESC").Offset(keep).Limit(1).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.Where("id <= ?", ids[0]).Delete(model)
	return res.RowsAffected, res.Error
}

// Counts returns the size of each table.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.do(ctx, metrics.OpCounts, func(db *gorm.DB) error {
		for _, t := range []struct {
			model any
			dst   *int64
		}{
			{&Detection{}, &c.Detections},
			{&SystemLog{}, &c.SystemLogs},
			{&LearningSession{}, &c.LearningSessions},
			{&PerformanceMetric{}, &c.PerformanceMetrics},
		} {
			if err := db.Model(t.model).Count(t.dst).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return c, err
}
