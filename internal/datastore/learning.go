package datastore

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/learning"
	"github.com/tphakala/hearken/internal/observability/metrics"
)

// learningStateID is the primary key of the single learning state row.
const learningStateID = 1

// LoadLearningState returns the saved state, or nil when none was saved.
func (s *Store) LoadLearningState(ctx context.Context) (*learning.State, error) {
	var row LearningState
	found := true
	err := s.do(ctx, metrics.OpLoadState, func(db *gorm.DB) error {
		err := db.First(&row, learningStateID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			found = false
			return nil
		}
		return err
	})
	if err != nil || !found {
		return nil, err
	}

	state := learning.NewState()
	if err := json.Unmarshal([]byte(row.Data), state); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryPersistence).
			Context("operation", metrics.OpLoadState).
			Context("version", row.Version).
			Build()
	}
	return state, nil
}

// SaveLearningState replaces the saved state.
func (s *Store) SaveLearningState(ctx context.Context, state *learning.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryPersistence).
			Context("operation", metrics.OpSaveState).
			Build()
	}
	row := LearningState{
		ID:        learningStateID,
		Version:   state.Version,
		Data:      string(data),
		UpdatedAt: time.Now(),
	}
	return s.do(ctx, metrics.OpSaveState, func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	})
}

// AppendLearningSession records a completed learning cycle.
func (s *Store) AppendLearningSession(ctx context.Context, session learning.Session) error {
	row := sessionFromLearning(&session)
	return s.do(ctx, metrics.OpAppendSession, func(db *gorm.DB) error {
		return db.Create(row).Error
	})
}

// RecentLearningSessions returns up to limit sessions, newest first.
func (s *Store) RecentLearningSessions(ctx context.Context, limit int) ([]LearningSession, error) {
	var rows []LearningSession
	err := s.do(ctx, "recent_sessions", func(db *gorm.DB) error {
		return db.Order("started_at DESC, id DESC").Limit(limit).Find(&rows).Error
	})
	return rows, err
}
