package datastore

import (
	"context"

	"gorm.io/gorm"

	"github.com/tphakala/hearken/internal/audiocore"
	"github.com/tphakala/hearken/internal/detection"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/observability/metrics"
)

// DefaultRecentLimit is used when QueryRecentDetections gets no limit.
const DefaultRecentLimit = 100

// AppendDetection stores e with its audio snapshot encoded as WAV.
func (s *Store) AppendDetection(ctx context.Context, e *detection.Event) (uint, error) {
	var audio []byte
	if len(e.Audio.Samples) > 0 {
		wav, err := audiocore.EncodeWAV(&e.Audio)
		if err != nil {
			return 0, err
		}
		audio = wav
	}

	rec := detection.NewRecord(e)
	row := detectionFromRecord(&rec, audio)
	err := s.do(ctx, metrics.OpAppendDetect, func(db *gorm.DB) error {
		return db.Create(row).Error
	})
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

// QueryRecentDetections returns up to limit detections, newest first,
// without their audio.
func (s *Store) QueryRecentDetections(ctx context.Context, limit int) ([]detection.Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	var rows []Detection
	err := s.do(ctx, metrics.OpQueryRecent, func(db *gorm.DB) error {
		return db.Omit("audio").
			Order("timestamp DESC, id DESC").
			Limit(limit).
			Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	records := make([]detection.Record, len(rows))
	for i := range rows {
		records[i] = rows[i].Record()
	}
	return records, nil
}

// DetectionAudio returns the WAV clip stored with a detection.
func (s *Store) DetectionAudio(ctx context.Context, id uint) ([]byte, error) {
	var row Detection
	err := s.do(ctx, "detection_audio", func(db *gorm.DB) error {
		return db.Select("id", "audio").First(&row, id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(id, err)
		}
		return nil, err
	}
	return row.Audio, nil
}

// MarkFalsePositive flags or unflags a detection.
func (s *Store) MarkFalsePositive(ctx context.Context, id uint, flagged bool) error {
	var affected int64
	err := s.do(ctx, metrics.OpMarkFalsePos, func(db *gorm.DB) error {
		res := db.Model(&Detection{}).Where("id = ?", id).Update("false_positive", flagged)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		// mysql reports zero rows when the value is unchanged
		var count int64
		if err := s.do(ctx, metrics.OpMarkFalsePos, func(db *gorm.DB) error {
			return db.Model(&Detection{}).Where("id = ?", id).Count(&count).Error
		}); err != nil {
			return err
		}
		if count == 0 {
			return notFound(id, gorm.ErrRecordNotFound)
		}
	}
	return nil
}

func notFound(id uint, err error) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("detection_id", id).
		Build()
}
