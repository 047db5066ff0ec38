package services

import (
	"context"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/realtime"
	"github.com/rs/zerolog/log"
)

type AttendeeService struct {
	Deps
}

func NewAttendeeService(deps Deps) *AttendeeService {
	return &AttendeeService{Deps: deps}
}

func (v *AttendeeService) List(ctx context.Context, sessionID uint, status ...models.AttendeeStatus) ([]models.Attendee, error) {
	if _, err := v.Store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return v.Store.ListAttendees(ctx, sessionID, status...)
}

// RSVP signs the user up. Signing up twice is a no-op; signing up again
// after leaving restores the row.
func (v *AttendeeService) RSVP(ctx context.Context, user, sessionID uint) (models.Attendee, error) {
	session, err := v.Store.GetSession(ctx, sessionID)
	if err != nil {
		return models.Attendee{}, err
	}
	if session.IsTerminal() {
		return models.Attendee{}, errs.Conflict("this session is already over")
	}
	if session.HostID == user {
		return models.Attendee{}, errs.Validation("the host does not need to sign up")
	}

	existing, err := v.Store.GetAttendee(ctx, sessionID, user)
	switch {
	case err == nil && existing.IsPresent():
		return existing, nil
	case err != nil && !errs.Is(err, errs.KindNotFound):
		return existing, err
	}

	if session.IsPrivate {
		return models.Attendee{}, errs.Authorization("this session is invite only")
	}

	created, err := v.Store.AdmitAttendee(ctx, &models.Attendee{
		SessionID: sessionID,
		UserID:    user,
		Role:      models.AttendeeRoleMember,
		Status:    models.AttendeeStatusRSVP,
	}, err == nil)
	if err != nil {
		return models.Attendee{}, raceToConflict(err, "your sign up changed concurrently, try again")
	} else if !created {
		return v.Store.GetAttendee(ctx, sessionID, user)
	}

	attendee, err := v.Store.GetAttendee(ctx, sessionID, user)
	if err != nil {
		return attendee, err
	}
	v.broadcast(sessionID, realtime.ActionAttendeeAdded, attendee)
	return attendee, nil
}

// Leave withdraws the user's own sign up.
func (v *AttendeeService) Leave(ctx context.Context, user, sessionID uint) error {
	session, err := v.Store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.HostID == user {
		return errs.Validation("the host cannot leave their own session")
	}
	return v.depart(ctx, sessionID, user)
}

// PromoteCohost grants co-host rights. A user without an attendee row gets
// one provisioned, and the count moves by exactly one however many
// promotions race for the same user.
func (v *AttendeeService) PromoteCohost(ctx context.Context, actor, sessionID, target uint) (models.Attendee, error) {
	session, err := v.Store.GetSession(ctx, sessionID)
	if err != nil {
		return models.Attendee{}, err
	}
	if session.HostID != actor {
		return models.Attendee{}, errs.Authorization("only the host can promote co-hosts")
	}
	if target == session.HostID {
		return models.Attendee{}, errs.Validation("the host is already in charge")
	}
	if session.IsTerminal() {
		return models.Attendee{}, errs.Conflict("this session is already over")
	}

	created, err := v.Store.EnsureAttendee(ctx, &models.Attendee{
		SessionID: sessionID,
		UserID:    target,
		Role:      models.AttendeeRoleCohost,
		CanSpeak:  true,
		Status:    models.AttendeeStatusRSVP,
	})
	if err != nil {
		return models.Attendee{}, err
	}

	if created {
		if err := v.Store.AdjustAttendeeCount(ctx, sessionID, 1); err != nil {
			log.Warn().Err(err).Uint("session", sessionID).Msg("Unable to increase attendee count.")
		}
	} else {
		existing, err := v.Store.GetAttendee(ctx, sessionID, target)
		if err != nil {
			return existing, err
		}
		if !existing.IsPresent() {
			if err := v.Store.RejoinAttendee(ctx, sessionID, target); err == nil {
				if err := v.Store.AdjustAttendeeCount(ctx, sessionID, 1); err != nil {
					log.Warn().Err(err).Uint("session", sessionID).Msg("Unable to increase attendee count.")
				}
			} else if !errs.Is(err, errs.KindRaceLost) {
				return existing, err
			}
		}
		if err := v.Store.UpdateAttendee(ctx, sessionID, target, map[string]any{
			"role":      models.AttendeeRoleCohost,
			"can_speak": true,
		}); err != nil {
			return existing, err
		}
	}

	attendee, err := v.Store.GetAttendee(ctx, sessionID, target)
	if err != nil {
		return attendee, err
	}
	v.broadcast(sessionID, realtime.ActionAttendeeAdded, attendee)
	return attendee, nil
}

// SetSpeaking toggles whether an attendee may publish audio.
func (v *AttendeeService) SetSpeaking(ctx context.Context, actor, sessionID, target uint, canSpeak bool) (models.Attendee, error) {
	session, err := v.Store.GetSession(ctx, sessionID)
	if err != nil {
		return models.Attendee{}, err
	}
	who, err := accessOf(ctx, v.Store, session, actor)
	if err != nil {
		return models.Attendee{}, err
	}
	if !who.manager() {
		return models.Attendee{}, errs.Authorization("only the host or a co-host can change speaking rights")
	}

	if err := v.Store.UpdateAttendee(ctx, sessionID, target, map[string]any{
		"can_speak": canSpeak,
	}); err != nil {
		return models.Attendee{}, err
	}

	attendee, err := v.Store.GetAttendee(ctx, sessionID, target)
	if err != nil {
		return attendee, err
	}
	v.broadcast(sessionID, realtime.ActionAttendeeUpdated, attendee)
	return attendee, nil
}

// Remove takes an attendee out of the session. Co-hosts may remove members,
// only the host may remove co-hosts, and nobody removes the host.
func (v *AttendeeService) Remove(ctx context.Context, actor, sessionID, target uint) error {
	session, err := v.Store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if target == session.HostID {
		return errs.Authorization("the host cannot be removed")
	}
	who, err := accessOf(ctx, v.Store, session, actor)
	if err != nil {
		return err
	}
	if !who.manager() {
		return errs.Authorization("only the host or a co-host can remove attendees")
	}

	attendee, err := v.Store.GetAttendee(ctx, sessionID, target)
	if err != nil {
		return err
	}
	if attendee.IsCohost() && !who.host {
		return errs.Authorization("only the host can remove a co-host")
	}

	return v.depart(ctx, sessionID, target)
}

func (v *AttendeeService) depart(ctx context.Context, sessionID, user uint) error {
	if err := v.Store.MarkAttendeeLeft(ctx, sessionID, user); err != nil {
		if errs.Is(err, errs.KindRaceLost) {
			return nil
		}
		return err
	}

	v.Supervisor.Go("attendee.count.decrement", func(ctx context.Context) error {
		return v.Store.AdjustAttendeeCount(ctx, sessionID, -1)
	})
	v.broadcast(sessionID, realtime.ActionAttendeeRemoved, map[string]any{
		"session_id": sessionID,
		"user_id":    user,
	})
	return nil
}

// ReconcileCounts rewrites drifted attendee counts from the attendee rows.
func (v *AttendeeService) ReconcileCounts(ctx context.Context) (int, error) {
	drifted, err := v.Store.ListDriftedCounts(ctx, 100)
	if err != nil {
		return 0, err
	}
	for _, id := range drifted {
		if _, err := v.Store.ReconcileAttendeeCount(ctx, id); err != nil {
			return 0, err
		}
	}
	if len(drifted) > 0 {
		log.Info().Int("count", len(drifted)).Msg("Reconciled drifted attendee counts.")
	}
	return len(drifted), nil
}

func (v *AttendeeService) broadcast(sessionID uint, action string, payload any) {
	v.Supervisor.Go("attendee.broadcast", func(ctx context.Context) error {
		v.Hub.Broadcast(realtime.SessionRoom(sessionID), realtime.Packet{Action: action, Payload: payload})
		return nil
	})
}
