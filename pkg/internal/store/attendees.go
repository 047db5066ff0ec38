package store

import (
	"context"
	"errors"
	"fmt"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) GetAttendee(ctx context.Context, sessionID, userID uint) (models.Attendee, error) {
	var attendee models.Attendee
	err := s.conn(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		First(&attendee).Error
	return attendee, translate(err, "user %d is not an attendee of session %d", userID, sessionID)
}

func (s *Store) ListAttendees(ctx context.Context, sessionID uint, status ...models.AttendeeStatus) ([]models.Attendee, error) {
	tx := s.conn(ctx).Where("session_id = ?", sessionID)
	if len(status) > 0 {
		tx = tx.Where("status IN ?", status)
	}
	var attendees []models.Attendee
	err := tx.Order("created_at ASC").Find(&attendees).Error
	return attendees, err
}

// EnsureAttendee inserts the row unless one already exists for the pair. The
// insert is conflict-ignoring on the composite key, so concurrent callers
// cannot both observe created=true.
func (s *Store) EnsureAttendee(ctx context.Context, attendee *models.Attendee) (bool, error) {
	res := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(attendee)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateAttendee writes the given columns on an existing attendee row.
func (s *Store) UpdateAttendee(ctx context.Context, sessionID, userID uint, fields map[string]any) error {
	fields["updated_at"] = s.Now()
	res := s.conn(ctx).Model(&models.Attendee{}).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("user %d is not an attendee of session %d", userID, sessionID)
	}
	return nil
}

// RejoinAttendee moves a departed attendee back to rsvp.
func (s *Store) RejoinAttendee(ctx context.Context, sessionID, userID uint) error {
	res := s.conn(ctx).Model(&models.Attendee{}).
		Where("session_id = ? AND user_id = ? AND status = ?", sessionID, userID, models.AttendeeStatusLeft).
		Updates(map[string]any{
			"status":     models.AttendeeStatusRSVP,
			"left_at":    nil,
			"updated_at": s.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.RaceLost("attendee %d of session %d is not departed", userID, sessionID)
	}
	return nil
}

var errAlreadyAdmitted = errors.New("attendee already admitted")

// AdmitAttendee takes a seat and signs the user up in one transaction. The
// seat is claimed with an increment conditional on the capacity, so two
// callers racing for the last seat cannot both get it. When rejoin is set the
// departed row is restored, otherwise a new row is inserted. It reports false
// without taking a seat when the row was already present.
func (s *Store) AdmitAttendee(ctx context.Context, attendee *models.Attendee, rejoin bool) (bool, error) {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Session{}).
			Where("id = ? AND (capacity = 0 OR attendee_count < capacity)", attendee.SessionID).
			Update("attendee_count", gorm.Expr("attendee_count + 1"))
		if res.Error != nil {
			return res.Error
		} else if res.RowsAffected == 0 {
			return errs.Conflict("this session is full")
		}

		if rejoin {
			res = tx.Model(&models.Attendee{}).
				Where("session_id = ? AND user_id = ? AND status = ?", attendee.SessionID, attendee.UserID, models.AttendeeStatusLeft).
				Updates(map[string]any{
					"status":     models.AttendeeStatusRSVP,
					"left_at":    nil,
					"updated_at": s.Now(),
				})
			if res.Error != nil {
				return res.Error
			} else if res.RowsAffected == 0 {
				return errs.RaceLost("attendee %d of session %d is not departed", attendee.UserID, attendee.SessionID)
			}
			return nil
		}

		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(attendee)
		if res.Error != nil {
			return res.Error
		} else if res.RowsAffected == 0 {
			return errAlreadyAdmitted
		}
		return nil
	})
	if errors.Is(err, errAlreadyAdmitted) {
		return false, nil
	}
	return err == nil, err
}

// MarkAttendeeLeft soft-removes an attendee. Only a present attendee can
// leave, which keeps the count decrement to one per departure.
func (s *Store) MarkAttendeeLeft(ctx context.Context, sessionID, userID uint) error {
	now := s.Now()
	res := s.conn(ctx).Model(&models.Attendee{}).
		Where("session_id = ? AND user_id = ? AND status <> ?", sessionID, userID, models.AttendeeStatusLeft).
		Updates(map[string]any{
			"status":     models.AttendeeStatusLeft,
			"left_at":    now,
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.RaceLost("attendee %d of session %d already left", userID, sessionID)
	}
	return nil
}

// MarkAttended flips an rsvp to attended; other states are left untouched.
func (s *Store) MarkAttended(ctx context.Context, sessionID, userID uint) error {
	return s.conn(ctx).Model(&models.Attendee{}).
		Where("session_id = ? AND user_id = ? AND status = ?", sessionID, userID, models.AttendeeStatusRSVP).
		Updates(map[string]any{
			"status":     models.AttendeeStatusAttended,
			"updated_at": s.Now(),
		}).Error
}

// AdjustAttendeeCount shifts the denormalized count. Decrements never take the
// count below zero.
func (s *Store) AdjustAttendeeCount(ctx context.Context, sessionID uint, delta int) error {
	tx := s.conn(ctx).Model(&models.Session{}).Where("id = ?", sessionID)
	if delta < 0 {
		tx = tx.Where("attendee_count >= ?", -delta)
	}
	res := tx.Update("attendee_count", gorm.Expr("attendee_count + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.RaceLost("attendee count of session %d cannot change by %d", sessionID, delta)
	}
	return nil
}

// ReconcileAttendeeCount recomputes the cached count from attendee rows.
func (s *Store) ReconcileAttendeeCount(ctx context.Context, sessionID uint) (int64, error) {
	var count int64
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Attendee{}).
			Where("session_id = ? AND status <> ?", sessionID, models.AttendeeStatusLeft).
			Count(&count).Error; err != nil {
			return err
		}
		return tx.Model(&models.Session{}).
			Where("id = ?", sessionID).
			Update("attendee_count", count).Error
	})
	return count, err
}

// ListDriftedCounts returns ids of open sessions whose cached count differs
// from the attendee rows.
func (s *Store) ListDriftedCounts(ctx context.Context, limit int) ([]uint, error) {
	table, err := s.tableOf(&models.Session{})
	if err != nil {
		return nil, err
	}

	var ids []uint
	present := s.conn(ctx).Model(&models.Attendee{}).
		Select("COUNT(*)").
		Where(fmt.Sprintf("session_id = %s.id AND status <> ?", table), models.AttendeeStatusLeft)
	err = s.conn(ctx).Table(table).
		Where("status IN ?", []models.SessionStatus{models.SessionStatusScheduled, models.SessionStatusLobby, models.SessionStatusLive}).
		Where("attendee_count <> (?)", present).
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
