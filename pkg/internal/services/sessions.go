package services

import (
	"context"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/realtime"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/store"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type SessionService struct {
	Deps
	config SessionConfig
}

func NewSessionService(deps Deps, config SessionConfig) *SessionService {
	if config.NoShowGrace <= 0 {
		config.NoShowGrace = 30 * time.Minute
	}
	return &SessionService{Deps: deps, config: config}
}

type ScheduleRequest struct {
	Title           string    `json:"title" validate:"required,max=256"`
	Description     string    `json:"description" validate:"max=4096"`
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=1,max=1440"`
	Capacity        int       `json:"capacity" validate:"min=0"`
	IsPrivate       bool      `json:"is_private"`
}

// Schedule creates a one-off session owned by the host.
func (v *SessionService) Schedule(ctx context.Context, host uint, req ScheduleRequest) (models.Session, error) {
	if !req.ScheduledAt.After(v.Store.Now()) {
		return models.Session{}, errs.Validation("a session must be scheduled in the future")
	}
	session := models.Session{
		Title:           req.Title,
		Description:     req.Description,
		HostID:          host,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		Capacity:        req.Capacity,
		IsPrivate:       req.IsPrivate,
		Status:          models.SessionStatusScheduled,
	}
	if err := v.Store.CreateSession(ctx, &session); err != nil {
		return session, err
	}
	return session, nil
}

func (v *SessionService) Get(ctx context.Context, user, id uint) (models.Session, error) {
	session, err := v.Store.GetSession(ctx, id)
	if err != nil {
		return session, err
	}
	if session.IsPrivate {
		who, err := accessOf(ctx, v.Store, session, user)
		if err != nil {
			return session, err
		}
		if !who.host && (who.attendee == nil || !who.attendee.IsPresent()) {
			// Private sessions stay invisible to outsiders.
			return models.Session{}, errs.NotFound("session %d not found", id)
		}
	}
	return session, nil
}

// ListUpcoming returns sessions that have not finished yet, soonest first.
func (v *SessionService) ListUpcoming(ctx context.Context, filter store.SessionFilter) ([]models.Session, error) {
	if len(filter.Status) == 0 {
		filter.Status = []models.SessionStatus{
			models.SessionStatusScheduled,
			models.SessionStatusLobby,
			models.SessionStatusLive,
		}
	}
	return v.Store.ListSessions(ctx, filter)
}

func (v *SessionService) loadWithAccess(ctx context.Context, user, id uint) (models.Session, access, error) {
	session, err := v.Store.GetSession(ctx, id)
	if err != nil {
		return session, access{}, err
	}
	who, err := accessOf(ctx, v.Store, session, user)
	return session, who, err
}

// OpenLobby lets participants gather before the host goes live.
func (v *SessionService) OpenLobby(ctx context.Context, user, id uint) (models.Session, error) {
	session, who, err := v.loadWithAccess(ctx, user, id)
	if err != nil {
		return session, err
	}
	if !who.manager() {
		return session, errs.Authorization("only the host or a co-host can open the lobby")
	}

	session, err = v.Store.Transition(ctx, id, []models.SessionStatus{models.SessionStatusScheduled}, func(item *models.Session) {
		item.Status = models.SessionStatusLobby
	})
	v.Metrics.Transition(models.SessionStatusLobby, err)
	if err != nil {
		return session, raceToConflict(err, "this session already opened its lobby")
	}

	v.broadcastState(session)
	return session, nil
}

// Start takes the session live. Only one of any number of concurrent callers
// gets through; recording, room setup and notifications follow after commit.
func (v *SessionService) Start(ctx context.Context, user, id uint) (models.Session, error) {
	session, err := v.Store.GetSession(ctx, id)
	if err != nil {
		return session, err
	}
	if session.HostID != user {
		return session, errs.Authorization("only the host can start this session")
	}

	now := v.Store.Now()
	session, err = v.Store.Transition(ctx, id, []models.SessionStatus{
		models.SessionStatusScheduled,
		models.SessionStatusLobby,
	}, func(item *models.Session) {
		item.Status = models.SessionStatusLive
		item.StartedAt = &now
	})
	v.Metrics.Transition(models.SessionStatusLive, err)
	if err != nil {
		return session, raceToConflict(err, "this session already started")
	}

	log.Info().Uint("session", session.ID).Uint("host", user).Msg("Session started.")

	started := session
	v.Supervisor.Go("session.start.media", func(ctx context.Context) error {
		if v.Calls != nil {
			if err := v.Calls.CreateRoom(ctx, started); err != nil {
				log.Warn().Err(err).Uint("session", started.ID).Msg("Unable to create call room.")
			}
		}
		if v.Recorder == nil {
			return nil
		}
		return v.Recorder.StartRecording(ctx, started)
	})
	v.broadcastState(session)
	v.notifyAttendees(session, Notification{
		Topic: "sessions.started",
		Title: session.Title,
		Body:  "The session you signed up for is live now.",
		Metadata: map[string]any{
			"session_id": session.ID,
			"host_id":    session.HostID,
		},
		Priority: 5,
	})

	return session, nil
}

// End finishes a live session and stops its recording.
func (v *SessionService) End(ctx context.Context, user, id uint) (models.Session, error) {
	session, who, err := v.loadWithAccess(ctx, user, id)
	if err != nil {
		return session, err
	}
	if !who.manager() {
		return session, errs.Authorization("only the host or a co-host can end this session")
	}

	now := v.Store.Now()
	session, err = v.Store.Transition(ctx, id, []models.SessionStatus{models.SessionStatusLive}, func(item *models.Session) {
		item.Status = models.SessionStatusEnded
		item.EndedAt = &now
	})
	v.Metrics.Transition(models.SessionStatusEnded, err)
	if err != nil {
		return session, raceToConflict(err, "this session already ended")
	}

	log.Info().Uint("session", session.ID).Uint("by", user).Msg("Session ended.")

	ended := session
	v.Supervisor.Go("session.end.media", func(ctx context.Context) error {
		var err error
		if v.Recorder != nil {
			err = v.Recorder.StopRecording(ctx, ended)
		}
		if v.Calls != nil {
			if dErr := v.Calls.DeleteRoom(ctx, ended); dErr != nil {
				log.Warn().Err(dErr).Uint("session", ended.ID).Msg("Unable to delete call room.")
			}
		}
		return err
	})
	v.broadcastState(session)
	if session.HasRecordingHandle() {
		v.Supervisor.Go("session.end.recording-pending", func(ctx context.Context) error {
			v.Hub.Broadcast(realtime.SessionRoom(ended.ID), realtime.Packet{
				Action:  realtime.ActionRecording,
				Payload: map[string]any{"session_id": ended.ID, "status": "pending"},
			})
			return v.Notifier.NotifyUserBatch(ctx, []uint{ended.HostID}, Notification{
				Topic:    "sessions.recordingPending",
				Title:    ended.Title,
				Body:     "Your session recording is being processed.",
				Metadata: map[string]any{"session_id": ended.ID},
				Priority: 3,
			})
		})
	}

	return session, nil
}

// Cancel retires a session that never went live.
func (v *SessionService) Cancel(ctx context.Context, user, id uint) (models.Session, error) {
	session, err := v.Store.GetSession(ctx, id)
	if err != nil {
		return session, err
	}
	if session.HostID != user {
		return session, errs.Authorization("only the host can cancel this session")
	}

	session, err = v.Store.Transition(ctx, id, []models.SessionStatus{
		models.SessionStatusScheduled,
		models.SessionStatusLobby,
	}, func(item *models.Session) {
		item.Status = models.SessionStatusCancelled
	})
	v.Metrics.Transition(models.SessionStatusCancelled, err)
	if err != nil {
		return session, raceToConflict(err, "this session already started")
	}

	v.broadcastState(session)
	v.notifyAttendees(session, Notification{
		Topic:    "sessions.cancelled",
		Title:    session.Title,
		Body:     fmt.Sprintf("The session planned at %s was cancelled.", session.ScheduledAt.Format(time.RFC1123)),
		Metadata: map[string]any{"session_id": session.ID},
		Priority: 3,
	})
	return session, nil
}

// JoinToken issues the call token for a participant of a lobby or live
// session. Joining a live session counts as attendance.
func (v *SessionService) JoinToken(ctx context.Context, user, id uint) (string, error) {
	session, who, err := v.loadWithAccess(ctx, user, id)
	if err != nil {
		return "", err
	}
	if !lo.Contains([]models.SessionStatus{models.SessionStatusLobby, models.SessionStatusLive}, session.Status) {
		return "", errs.Conflict("this session is not open for joining")
	}
	present := who.attendee != nil && who.attendee.IsPresent()
	if !who.host && !present {
		if session.IsPrivate {
			return "", errs.Authorization("you are not a participant of this session")
		}
		return "", errs.Authorization("you need to sign up for this session first")
	}
	if v.Calls == nil {
		return "", errs.ExternalService(nil, "calling is not configured")
	}

	canSpeak := who.host || who.cohost || (who.attendee != nil && who.attendee.CanSpeak)
	token, err := v.Calls.EncodeJoinToken(user, session, JoinGrant{
		Admin:      who.manager(),
		CanPublish: canSpeak,
	})
	if err != nil {
		return "", errs.ExternalService(err, "unable to issue call token")
	}

	if session.Status == models.SessionStatusLive && present {
		if err := v.Store.MarkAttended(ctx, session.ID, user); err != nil {
			log.Warn().Err(err).Uint("session", session.ID).Uint("user", user).Msg("Unable to mark attendance.")
		}
	}
	return token, nil
}

// SweepNoShows cancels scheduled sessions whose window closed without the
// host showing up. A host starting concurrently wins over the sweep.
func (v *SessionService) SweepNoShows(ctx context.Context) (int, error) {
	now := v.Store.Now()
	stale, err := v.Store.ListStaleScheduled(ctx, now.Add(-v.config.NoShowGrace), 100)
	if err != nil {
		return 0, err
	}

	var cancelled int
	for _, session := range stale {
		if session.ScheduledAt.Add(session.Duration() + v.config.NoShowGrace).After(now) {
			continue
		}
		err := v.Store.CompareAndSwapStatus(ctx, session.ID, models.SessionStatusScheduled, models.SessionStatusCancelled, nil)
		v.Metrics.Transition(models.SessionStatusCancelled, err)
		if errs.Is(err, errs.KindRaceLost) {
			continue
		} else if err != nil {
			return cancelled, err
		}
		cancelled++
		session.Status = models.SessionStatusCancelled
		v.broadcastState(session)
	}
	if cancelled > 0 {
		log.Info().Int("count", cancelled).Msg("Cancelled sessions the host never started.")
	}
	return cancelled, nil
}

func (v *SessionService) broadcastState(session models.Session) {
	v.Supervisor.Go("session.broadcast.state", func(ctx context.Context) error {
		v.Hub.Broadcast(realtime.SessionRoom(session.ID), realtime.Packet{
			Action: realtime.ActionStateChanged,
			Payload: map[string]any{
				"session_id": session.ID,
				"status":     session.Status,
				"started_at": session.StartedAt,
				"ended_at":   session.EndedAt,
			},
		})
		return nil
	})
}

func (v *SessionService) notifyAttendees(session models.Session, notification Notification) {
	v.Supervisor.Go("session.notify."+notification.Topic, func(ctx context.Context) error {
		attendees, err := v.Store.ListAttendees(ctx, session.ID, models.AttendeeStatusRSVP)
		if err != nil {
			return err
		}
		users := lo.FilterMap(attendees, func(item models.Attendee, _ int) (uint, bool) {
			return item.UserID, item.UserID != session.HostID
		})
		if len(users) == 0 {
			return nil
		}
		return v.Notifier.NotifyUserBatch(ctx, users, notification)
	})
}
