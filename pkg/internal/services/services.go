// Package services holds the session lifecycle, attendee, series and
// conversation operations. Components are constructed once at startup from
// Deps and never reach for process globals.
package services

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/metrics"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/realtime"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/store"
)

// Recorder is the part of the recording orchestrator the lifecycle uses.
type Recorder interface {
	StartRecording(ctx context.Context, session models.Session) error
	StopRecording(ctx context.Context, session models.Session) error
}

type Deps struct {
	Store      *store.Store
	Hub        *realtime.Hub
	Recorder   Recorder
	Calls      CallProvider
	Notifier   Notifier
	Supervisor *Supervisor
	Metrics    *metrics.Collector
}

type SessionConfig struct {
	HorizonDays int
	NoShowGrace time.Duration
}

type access struct {
	host     bool
	cohost   bool
	attendee *models.Attendee
}

func (v access) manager() bool {
	return v.host || v.cohost
}

// accessOf resolves what the user is to the session.
func accessOf(ctx context.Context, st *store.Store, session models.Session, user uint) (access, error) {
	out := access{host: session.HostID == user}
	attendee, err := st.GetAttendee(ctx, session.ID, user)
	switch {
	case err == nil:
		out.attendee = &attendee
		out.cohost = attendee.IsCohost()
	case !errs.Is(err, errs.KindNotFound):
		return out, err
	}
	return out, nil
}

// raceToConflict reports a lost race on a lifecycle write the way callers
// see any other conflicting transition.
func raceToConflict(err error, message string) error {
	if errs.Is(err, errs.KindRaceLost) {
		return errs.Conflict("%s", message)
	}
	return err
}
