package store

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
)

func (s *Store) CreateSeries(ctx context.Context, series *models.Series) error {
	return s.conn(ctx).Create(series).Error
}

func (s *Store) GetSeries(ctx context.Context, id uint) (models.Series, error) {
	var series models.Series
	err := s.conn(ctx).Where("id = ?", id).First(&series).Error
	return series, translate(err, "series %d not found", id)
}

func (s *Store) ListActiveSeries(ctx context.Context) ([]models.Series, error) {
	var series []models.Series
	err := s.conn(ctx).Where("is_active = ?", true).Order("id ASC").Find(&series).Error
	return series, err
}

// SetSeriesActive is the only mutation a series accepts after creation.
func (s *Store) SetSeriesActive(ctx context.Context, id uint, active bool) error {
	res := s.conn(ctx).Model(&models.Series{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("series %d not found", id)
	}
	return nil
}

// CancelFutureSeriesSessions cancels the not yet started sessions of a series.
func (s *Store) CancelFutureSeriesSessions(ctx context.Context, seriesID uint, after time.Time) (int64, error) {
	res := s.conn(ctx).Model(&models.Session{}).
		Where("series_id = ? AND status = ? AND scheduled_at > ?", seriesID, models.SessionStatusScheduled, after.UTC()).
		Updates(map[string]any{
			"status":     models.SessionStatusCancelled,
			"updated_at": s.Now(),
		})
	return res.RowsAffected, res.Error
}
