package store

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SetRecordingHandle stores the vendor handles of a recording run. A session
// holds at most one handle, so the write only applies while none is set. The
// row is locked the same way lifecycle transitions lock it, and the reported
// status is the one the handle landed on: when it is no longer live, the end
// transition has already passed without seeing this run.
func (s *Store) SetRecordingHandle(ctx context.Context, id uint, resourceID, sid string) (models.SessionStatus, error) {
	var status models.SessionStatus
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&session).Error; err != nil {
			return translate(err, "session %d not found", id)
		}
		if session.HasRecordingHandle() {
			return errs.RaceLost("session %d already has a recording handle", id)
		}

		res := tx.Model(&models.Session{}).
			Where("id = ? AND recording_sid IS NULL", id).
			Updates(map[string]any{
				"recording_resource_id": resourceID,
				"recording_sid":         sid,
				"updated_at":            s.Now(),
			})
		if res.Error != nil {
			return res.Error
		} else if res.RowsAffected == 0 {
			return errs.RaceLost("session %d already has a recording handle", id)
		}
		status = session.Status
		return nil
	})
	return status, err
}

// AttachRecording materializes the catalog entry of a finished recording and
// writes its URL onto the session. Both writes are keyed so that replaying the
// same run is a no-op: the video is unique by source sid and the URL is only
// written while empty. It reports whether a new video was created.
func (s *Store) AttachRecording(ctx context.Context, sessionID uint, video *models.Video) (bool, error) {
	created := false
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", sessionID).
			First(&session).Error; err != nil {
			return translate(err, "session %d not found", sessionID)
		}
		if session.RecordingURL != nil && len(*session.RecordingURL) > 0 {
			return nil
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(video)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0

		return tx.Model(&models.Session{}).
			Where("id = ? AND recording_url IS NULL", sessionID).
			Updates(map[string]any{
				"recording_url": video.URL,
				"updated_at":    s.Now(),
			}).Error
	})
	return created, err
}

func (s *Store) GetVideoBySid(ctx context.Context, sid string) (models.Video, error) {
	var video models.Video
	err := s.conn(ctx).Where("source_sid = ?", sid).First(&video).Error
	return video, translate(err, "no video for recording %s", sid)
}

func (s *Store) CountVideosBySid(ctx context.Context, sid string) (int64, error) {
	var count int64
	err := s.conn(ctx).Model(&models.Video{}).Where("source_sid = ?", sid).Count(&count).Error
	return count, err
}

// ListUnfinishedRecordings returns ended sessions that hold a recording handle
// but never received a URL.
func (s *Store) ListUnfinishedRecordings(ctx context.Context, endedBefore time.Time, limit int) ([]models.Session, error) {
	var sessions []models.Session
	err := s.conn(ctx).
		Where("status = ? AND recording_sid IS NOT NULL AND recording_url IS NULL", models.SessionStatusEnded).
		Where("ended_at < ?", endedBefore.UTC()).
		Order("ended_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}
