package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/testfixtures"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(testfixtures.NewDatabase(t))
}

func seedSession(t *testing.T, s *Store, status models.SessionStatus) models.Session {
	t.Helper()
	session := models.Session{
		Title:           "Evening prayer",
		HostID:          1,
		ScheduledAt:     time.Now().Add(time.Hour),
		DurationMinutes: 60,
		Status:          status,
		Capacity:        10,
	}
	require.NoError(t, s.CreateSession(context.Background(), &session))
	return session
}

func goLive(session *models.Session) {
	session.Status = models.SessionStatusLive
	session.StartedAt = lo.ToPtr(time.Now().UTC())
}

func TestTransitionAppliesOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	session := seedSession(t, s, models.SessionStatusScheduled)

	from := []models.SessionStatus{models.SessionStatusScheduled, models.SessionStatusLobby}
	updated, err := s.Transition(ctx, session.ID, from, goLive)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusLive, updated.Status)
	assert.NotNil(t, updated.StartedAt)

	_, err = s.Transition(ctx, session.ID, from, goLive)
	assert.True(t, errs.Is(err, errs.KindConflict))

	reloaded, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusLive, reloaded.Status)
}

func TestTransitionConcurrentCallers(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	session := seedSession(t, s, models.SessionStatusLobby)

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transition(ctx, session.ID, []models.SessionStatus{models.SessionStatusScheduled, models.SessionStatusLobby}, goLive)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errs.Is(err, errs.KindConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, racers-1, conflicted)
}

func TestTransitionMissingSession(t *testing.T) {
	s := newStore(t)
	_, err := s.Transition(context.Background(), 404, []models.SessionStatus{models.SessionStatusLive}, goLive)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestCompareAndSwapStatus(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	session := seedSession(t, s, models.SessionStatusScheduled)

	require.NoError(t, s.CompareAndSwapStatus(ctx, session.ID, models.SessionStatusScheduled, models.SessionStatusCancelled, nil))

	err := s.CompareAndSwapStatus(ctx, session.ID, models.SessionStatusScheduled, models.SessionStatusCancelled, nil)
	assert.True(t, errs.Is(err, errs.KindRaceLost))
}

func TestCreateSessionsSkipsExistingInstants(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	series := models.Series{HostID: 1, Rule: "FREQ=DAILY", TimeOfDay: "19:00", Timezone: "UTC", IsActive: true}
	require.NoError(t, s.CreateSeries(ctx, &series))

	at := time.Date(2025, time.March, 1, 19, 0, 0, 0, time.UTC)
	build := func(instants ...time.Time) []models.Session {
		return lo.Map(instants, func(item time.Time, _ int) models.Session {
			return models.Session{HostID: 1, SeriesID: &series.ID, ScheduledAt: item, DurationMinutes: 30}
		})
	}

	created, err := s.CreateSessions(ctx, build(at, at.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.EqualValues(t, 2, created)

	created, err = s.CreateSessions(ctx, build(at.AddDate(0, 0, 1), at.AddDate(0, 0, 2)))
	require.NoError(t, err)
	assert.EqualValues(t, 1, created)

	sessions, err := s.ListSessions(ctx, SessionFilter{SeriesID: &series.ID})
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
}

func TestRecordingHandleIsSingular(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	session := seedSession(t, s, models.SessionStatusLive)

	status, err := s.SetRecordingHandle(ctx, session.ID, "res-1", "sid-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusLive, status)
	_, err = s.SetRecordingHandle(ctx, session.ID, "res-2", "sid-2")
	assert.True(t, errs.Is(err, errs.KindRaceLost))

	reloaded, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", *reloaded.RecordingSid)
}

func TestRecordingHandleReportsEndedSession(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	session := seedSession(t, s, models.SessionStatusEnded)

	status, err := s.SetRecordingHandle(ctx, session.ID, "res-1", "sid-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, status)

	_, err = s.SetRecordingHandle(ctx, 404, "res-1", "sid-1")
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestAttachRecordingIsIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	session := seedSession(t, s, models.SessionStatusEnded)

	build := func(uuid string) *models.Video {
		return &models.Video{
			Uuid:      uuid,
			OwnerID:   session.HostID,
			SessionID: &session.ID,
			SourceSid: lo.ToPtr("sid-1"),
			URL:       "https://cdn.example.com/rec/sid-1.mp4",
		}
	}

	created, err := s.AttachRecording(ctx, session.ID, build("6f1b7f1c-0000-4000-8000-000000000001"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.AttachRecording(ctx, session.ID, build("6f1b7f1c-0000-4000-8000-000000000002"))
	require.NoError(t, err)
	assert.False(t, created)

	count, err := s.CountVideosBySid(ctx, "sid-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	reloaded, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.RecordingURL)
	assert.Equal(t, "https://cdn.example.com/rec/sid-1.mp4", *reloaded.RecordingURL)
}

func TestAttendeeCountNeverNegative(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	session := seedSession(t, s, models.SessionStatusScheduled)

	require.NoError(t, s.AdjustAttendeeCount(ctx, session.ID, 1))
	require.NoError(t, s.AdjustAttendeeCount(ctx, session.ID, -1))
	err := s.AdjustAttendeeCount(ctx, session.ID, -1)
	assert.True(t, errs.Is(err, errs.KindRaceLost))

	reloaded, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.AttendeeCount)
}

func TestEnsureAttendeeAndLeave(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	session := seedSession(t, s, models.SessionStatusScheduled)

	row := func() *models.Attendee {
		return &models.Attendee{SessionID: session.ID, UserID: 7, Role: models.AttendeeRoleMember, Status: models.AttendeeStatusRSVP}
	}
	created, err := s.EnsureAttendee(ctx, row())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureAttendee(ctx, row())
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, s.MarkAttendeeLeft(ctx, session.ID, 7))
	err = s.MarkAttendeeLeft(ctx, session.ID, 7)
	assert.True(t, errs.Is(err, errs.KindRaceLost))

	attendee, err := s.GetAttendee(ctx, session.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, models.AttendeeStatusLeft, attendee.Status)
	assert.NotNil(t, attendee.LeftAt)

	require.NoError(t, s.RejoinAttendee(ctx, session.ID, 7))
	attendee, err = s.GetAttendee(ctx, session.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, models.AttendeeStatusRSVP, attendee.Status)
	assert.Nil(t, attendee.LeftAt)
}

func TestAdmitAttendeeClaimsSeatInTheWrite(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	session := seedSession(t, s, models.SessionStatusScheduled)
	require.NoError(t, s.DB().Model(&session).Update("capacity", 2).Error)

	row := func(user uint) *models.Attendee {
		return &models.Attendee{SessionID: session.ID, UserID: user, Role: models.AttendeeRoleMember, Status: models.AttendeeStatusRSVP}
	}
	created, err := s.AdmitAttendee(ctx, row(7), false)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.AdmitAttendee(ctx, row(7), false)
	require.NoError(t, err)
	assert.False(t, created, "a second admission takes no seat")

	// Another instance took the last seat after this caller read the row.
	require.NoError(t, s.AdjustAttendeeCount(ctx, session.ID, 1))
	_, err = s.AdmitAttendee(ctx, row(8), false)
	assert.True(t, errs.Is(err, errs.KindConflict))
	_, err = s.GetAttendee(ctx, session.ID, 8)
	assert.True(t, errs.Is(err, errs.KindNotFound), "the insert is rolled back with the seat")

	require.NoError(t, s.MarkAttendeeLeft(ctx, session.ID, 7))
	require.NoError(t, s.AdjustAttendeeCount(ctx, session.ID, -1))
	created, err = s.AdmitAttendee(ctx, row(7), true)
	require.NoError(t, err)
	assert.True(t, created)

	reloaded, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.AttendeeCount)
}

func TestReconcileAttendeeCount(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	session := seedSession(t, s, models.SessionStatusScheduled)

	for _, user := range []uint{2, 3, 4} {
		_, err := s.EnsureAttendee(ctx, &models.Attendee{SessionID: session.ID, UserID: user, Role: models.AttendeeRoleMember, Status: models.AttendeeStatusRSVP})
		require.NoError(t, err)
	}
	require.NoError(t, s.MarkAttendeeLeft(ctx, session.ID, 3))

	drifted, err := s.ListDriftedCounts(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{session.ID}, drifted)

	count, err := s.ReconcileAttendeeCount(ctx, session.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	drifted, err = s.ListDriftedCounts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, drifted)
}

func TestMarkConversationRead(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	conversation := models.Conversation{UserAID: 1, UserBID: 2}
	require.NoError(t, s.DB().Create(&conversation).Error)
	messages := []models.Message{
		{ConversationID: conversation.ID, SenderID: 2, Content: "peace", Status: models.MessageStatusDelivered},
		{ConversationID: conversation.ID, SenderID: 2, Content: "be with you", Status: models.MessageStatusDelivered},
		{ConversationID: conversation.ID, SenderID: 2, Content: "in flight", Status: models.MessageStatusSent},
		{ConversationID: conversation.ID, SenderID: 1, Content: "and also with you", Status: models.MessageStatusDelivered},
	}
	require.NoError(t, s.DB().Create(&messages).Error)

	changed, err := s.MarkConversationRead(ctx, conversation.ID, 2, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, changed)

	var unread int64
	require.NoError(t, s.DB().Model(&models.Message{}).Where("status = ?", models.MessageStatusDelivered).Count(&unread).Error)
	assert.EqualValues(t, 1, unread)
}
