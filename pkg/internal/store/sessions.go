package store

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	if len(session.Status) == 0 {
		session.Status = models.SessionStatusScheduled
	}
	session.ScheduledAt = session.ScheduledAt.UTC()
	return s.conn(ctx).Create(session).Error
}

// CreateSessions inserts generated sessions, skipping instants that already
// exist for the same series. It returns how many rows were new.
func (s *Store) CreateSessions(ctx context.Context, sessions []models.Session) (int64, error) {
	if len(sessions) == 0 {
		return 0, nil
	}
	for idx := range sessions {
		sessions[idx].ScheduledAt = sessions[idx].ScheduledAt.UTC()
		if len(sessions[idx].Status) == 0 {
			sessions[idx].Status = models.SessionStatusScheduled
		}
	}
	tx := s.conn(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&sessions)
	return tx.RowsAffected, tx.Error
}

func (s *Store) GetSession(ctx context.Context, id uint) (models.Session, error) {
	var session models.Session
	err := s.conn(ctx).Where("id = ?", id).First(&session).Error
	return session, translate(err, "session %d not found", id)
}

func (s *Store) FindSessionByChannel(ctx context.Context, channel string) (models.Session, error) {
	id, ok := models.ParseSessionChannel(channel)
	if !ok {
		return models.Session{}, errs.NotFound("channel %q does not belong to a session", channel)
	}
	return s.GetSession(ctx, id)
}

type SessionFilter struct {
	HostID   *uint
	SeriesID *uint
	Status   []models.SessionStatus
	After    *time.Time
	Take     int
	Offset   int
}

func (s *Store) ListSessions(ctx context.Context, filter SessionFilter) ([]models.Session, error) {
	tx := s.conn(ctx).Model(&models.Session{})
	if filter.HostID != nil {
		tx = tx.Where("host_id = ?", *filter.HostID)
	}
	if filter.SeriesID != nil {
		tx = tx.Where("series_id = ?", *filter.SeriesID)
	}
	if len(filter.Status) > 0 {
		tx = tx.Where("status IN ?", filter.Status)
	}
	if filter.After != nil {
		tx = tx.Where("scheduled_at >= ?", filter.After.UTC())
	}
	take := lo.Clamp(filter.Take, 1, 100)
	if filter.Take == 0 {
		take = 20
	}

	var sessions []models.Session
	err := tx.Order("scheduled_at ASC").
		Limit(take).
		Offset(filter.Offset).
		Find(&sessions).Error
	return sessions, err
}

// Transition moves a session out of one of the allowed states. The row is
// re-read under an exclusive lock, the precondition is checked again, and the
// write itself is conditional on the status that was observed. mutate sets the
// target status and any stamps on the locked copy.
func (s *Store) Transition(ctx context.Context, id uint, from []models.SessionStatus, mutate func(*models.Session)) (models.Session, error) {
	var session models.Session
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&session).Error; err != nil {
			return translate(err, "session %d not found", id)
		}

		if !lo.Contains(from, session.Status) {
			return errs.Conflict("%s", conflictMessage(session.Status))
		}

		observed := session.Status
		mutate(&session)

		updates := map[string]any{
			"status":     session.Status,
			"started_at": session.StartedAt,
			"ended_at":   session.EndedAt,
			"updated_at": s.Now(),
		}
		res := tx.Model(&models.Session{}).
			Where("id = ? AND status = ?", id, observed).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.RaceLost("session %d left status %s concurrently", id, observed)
		}
		return nil
	})
	return session, err
}

// CompareAndSwapStatus performs UPDATE ... WHERE status = expected without a
// lock. Zero affected rows surface as RaceLost.
func (s *Store) CompareAndSwapStatus(ctx context.Context, id uint, expected, next models.SessionStatus, fields map[string]any) error {
	updates := map[string]any{
		"status":     next,
		"updated_at": s.Now(),
	}
	for k, v := range fields {
		updates[k] = v
	}
	res := s.conn(ctx).Model(&models.Session{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.RaceLost("session %d is no longer %s", id, expected)
	}
	return nil
}

// ListStaleScheduled returns scheduled sessions whose window closed before the
// given instant.
func (s *Store) ListStaleScheduled(ctx context.Context, before time.Time, limit int) ([]models.Session, error) {
	var sessions []models.Session
	err := s.conn(ctx).
		Where("status = ? AND scheduled_at < ?", models.SessionStatusScheduled, before.UTC()).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

func conflictMessage(status models.SessionStatus) string {
	switch status {
	case models.SessionStatusLobby:
		return "this session already opened its lobby"
	case models.SessionStatusLive:
		return "this session already started"
	case models.SessionStatusEnded:
		return "this session already ended"
	case models.SessionStatusCancelled:
		return "this session was cancelled"
	default:
		return "this session has not started yet"
	}
}
