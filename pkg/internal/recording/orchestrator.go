// Package recording drives the external recording vendor through acquire,
// start, stop and completion reconciliation. Every vendor failure is
// returned to the caller for logging only; the session lifecycle never
// depends on a recording outcome.
package recording

import (
	"context"
	"errors"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/metrics"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// TokenMinter issues the short-lived token the recorder joins with.
type TokenMinter interface {
	MintRecorderToken(channel string, uid uint32, ttl time.Duration) (string, error)
}

// SizeProbe looks up the stored size of an uploaded object.
type SizeProbe interface {
	ObjectSize(ctx context.Context, key string) (int64, error)
}

type Orchestrator struct {
	store   *store.Store
	vendor  Vendor
	tokens  TokenMinter
	probe   SizeProbe
	metrics *metrics.Collector
	config  Config
	now     func() time.Time
}

func NewOrchestrator(st *store.Store, vendor Vendor, tokens TokenMinter, config Config) *Orchestrator {
	return &Orchestrator{
		store:  st,
		vendor: vendor,
		tokens: tokens,
		config: config.withDefaults(),
		now:    time.Now,
	}
}

func (v *Orchestrator) WithProbe(probe SizeProbe) *Orchestrator {
	v.probe = probe
	return v
}

func (v *Orchestrator) WithMetrics(collector *metrics.Collector) *Orchestrator {
	v.metrics = collector
	return v
}

func (v *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	v.now = now
	return v
}

// StartRecording runs acquire and start for a live session and persists the
// handles right away. A session that already holds a handle is left alone.
func (v *Orchestrator) StartRecording(ctx context.Context, session models.Session) error {
	if session.HasRecordingHandle() {
		log.Debug().Uint("session", session.ID).Msg("Recording already started, skipped.")
		return nil
	}

	channel := session.ChannelName()
	uid := RecorderUID(session.ID)

	var resourceID, sid string
	for attempt := 0; attempt < 2; attempt++ {
		var err error
		resourceID, sid, err = v.acquireAndStart(ctx, channel, uid)
		if err == nil {
			break
		}
		var vendorErr *VendorError
		if attempt == 0 && errors.As(err, &vendorErr) && vendorErr.IsResourceExpired() {
			log.Warn().Err(err).Str("channel", channel).Msg("Recording resource expired before start, acquiring again...")
			continue
		}
		return errs.ExternalService(err, "unable to start recording of session %d", session.ID)
	}

	status, err := v.store.SetRecordingHandle(ctx, session.ID, resourceID, sid)
	if err != nil {
		if errs.Is(err, errs.KindRaceLost) {
			// Another run got persisted first, this one would be orphaned.
			_, stopErr := v.vendor.Stop(ctx, resourceID, sid, channel, uid)
			v.metrics.VendorCall("stop", stopErr)
			if stopErr != nil {
				log.Warn().Err(stopErr).Str("sid", sid).Msg("Unable to stop duplicated recording run.")
			}
		}
		return err
	}

	log.Info().Uint("session", session.ID).Str("sid", sid).Msg("Recording started.")

	if status != models.SessionStatusLive {
		// The session ended while the run was starting and the end transition
		// saw no handle to stop.
		log.Info().Uint("session", session.ID).Str("sid", sid).Msg("Session ended during recording start, stopping...")
		ended := session
		ended.Status = status
		ended.RecordingResourceID = &resourceID
		ended.RecordingSid = &sid
		return v.StopRecording(ctx, ended)
	}
	return nil
}

func (v *Orchestrator) acquireAndStart(ctx context.Context, channel string, uid uint32) (string, string, error) {
	resourceID, err := v.vendor.Acquire(ctx, channel, uid)
	v.metrics.VendorCall("acquire", err)
	if err != nil {
		return "", "", err
	}
	acquiredAt := v.now()

	token, err := v.tokens.MintRecorderToken(channel, uid, v.config.TokenDuration)
	if err != nil {
		return "", "", err
	}

	if v.now().Sub(acquiredAt) > v.config.ResourceTTL {
		resourceID, err = v.vendor.Acquire(ctx, channel, uid)
		v.metrics.VendorCall("acquire", err)
		if err != nil {
			return "", "", err
		}
	}

	sid, err := v.vendor.Start(ctx, StartRequest{
		ResourceID: resourceID,
		Channel:    channel,
		UID:        uid,
		Token:      token,
		Transcode:  v.config.Transcode,
		Storage:    v.config.Storage,
	})
	v.metrics.VendorCall("start", err)
	return resourceID, sid, err
}

// StopRecording stops the run held by the session. When the vendor reports
// the upload as finished already, the recording is reconciled in place.
func (v *Orchestrator) StopRecording(ctx context.Context, session models.Session) error {
	if !session.HasRecordingHandle() || session.RecordingResourceID == nil {
		return nil
	}

	channel := session.ChannelName()
	sid := *session.RecordingSid
	manifest, err := v.vendor.Stop(ctx, *session.RecordingResourceID, sid, channel, RecorderUID(session.ID))
	v.metrics.VendorCall("stop", err)
	if err != nil {
		return errs.ExternalService(err, "unable to stop recording of session %d", session.ID)
	}

	log.Info().Uint("session", session.ID).Str("sid", sid).Str("upload", manifest.UploadingStatus).Msg("Recording stopped.")

	if manifest.Uploaded() {
		if _, ok := manifest.Compiled(); ok {
			_, err = v.Reconcile(ctx, channel, sid, manifest.Files)
			return err
		}
	}
	return nil
}

// HandleNotification dispatches a vendor callback by event type.
func (v *Orchestrator) HandleNotification(ctx context.Context, notification Notification) error {
	payload := notification.Payload
	switch notification.EventType {
	case EventUploaded:
		_, err := v.Reconcile(ctx, payload.Channel(), payload.Sid, payload.Details.FileList)
		return err
	case EventServiceError:
		log.Warn().
			Str("channel", payload.Channel()).
			Str("sid", payload.Sid).
			Str("message", payload.Details.Message).
			Msg("Recording vendor reported a service error.")
		return nil
	default:
		log.Debug().Int("event", notification.EventType).Str("sid", payload.Sid).Msg("Ignored recording notification.")
		return nil
	}
}

// Reconcile turns a finished upload into the session's recording URL and a
// catalog video. Running it again for the same sid changes nothing.
func (v *Orchestrator) Reconcile(ctx context.Context, channel, sid string, files []models.RecordedFile) (bool, error) {
	if len(sid) == 0 {
		return false, errs.Validation("recording notification has no sid")
	}

	session, err := v.store.FindSessionByChannel(ctx, channel)
	if err != nil {
		return false, err
	}
	if session.RecordingURL != nil {
		return false, nil
	}
	if session.RecordingSid != nil && *session.RecordingSid != sid {
		log.Warn().Uint("session", session.ID).Str("sid", sid).Str("expected", *session.RecordingSid).Msg("Recording sid does not match the session, skipped.")
		return false, nil
	}

	compiled, ok := CompiledFile(files)
	if !ok {
		return false, errs.Validation("recording %s has no compiled file", sid)
	}

	video := models.Video{
		Uuid:        uuid.NewString(),
		Title:       session.Title,
		Description: session.Description,
		OwnerID:     session.HostID,
		SessionID:   &session.ID,
		SourceSid:   lo.ToPtr(sid),
		URL:         v.config.Storage.PublicURL(compiled.FileName),
		Files:       files,
		Visibility:  lo.Ternary(session.IsPrivate, models.VideoVisibilityPrivate, models.VideoVisibilityPublic),
	}
	if session.StartedAt != nil && session.EndedAt != nil {
		video.DurationSeconds = int(session.EndedAt.Sub(*session.StartedAt).Seconds())
	}
	if v.probe != nil {
		if size, err := v.probe.ObjectSize(ctx, compiled.FileName); err != nil {
			log.Warn().Err(err).Str("file", compiled.FileName).Msg("Unable to probe recording size.")
		} else {
			video.SizeBytes = size
		}
	}

	created, err := v.store.AttachRecording(ctx, session.ID, &video)
	if err != nil {
		return false, err
	}
	if created {
		v.metrics.Reconciled()
		log.Info().Uint("session", session.ID).Str("sid", sid).Str("url", video.URL).Msg("Recording attached.")
	}
	return created, nil
}

// SweepUnfinished polls the vendor for ended sessions whose upload callback
// never arrived.
func (v *Orchestrator) SweepUnfinished(ctx context.Context) (int, error) {
	sessions, err := v.store.ListUnfinishedRecordings(ctx, v.now().Add(-v.config.ReconcileAfter), 50)
	if err != nil {
		return 0, err
	}

	var reconciled int
	for _, session := range sessions {
		if session.RecordingResourceID == nil {
			continue
		}
		result, err := v.vendor.Query(ctx, *session.RecordingResourceID, *session.RecordingSid)
		v.metrics.VendorCall("query", err)
		if err != nil {
			log.Warn().Err(err).Uint("session", session.ID).Msg("Unable to query recording status.")
			continue
		}
		if _, ok := result.Compiled(); !ok {
			continue
		}
		created, err := v.Reconcile(ctx, session.ChannelName(), *session.RecordingSid, result.Files)
		if err != nil {
			log.Warn().Err(err).Uint("session", session.ID).Msg("Unable to reconcile recording.")
			continue
		}
		if created {
			reconciled++
		}
	}
	return reconciled, nil
}
