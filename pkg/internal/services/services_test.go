package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/realtime"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/recording"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/rtc"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/store"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/testfixtures"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hostID   = uint(1)
	cohostID = uint(2)
	memberID = uint(3)
)

type fakeVendor struct {
	// gate holds Start until closed; entered signals that Start is waiting.
	gate    chan struct{}
	entered chan struct{}

	mu       sync.Mutex
	acquired int
	started  int
	stopped  int
	channels []string
}

func (f *fakeVendor) Acquire(_ context.Context, channel string, _ uint32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired++
	f.channels = append(f.channels, channel)
	return fmt.Sprintf("res-%d", f.acquired), nil
}

func (f *fakeVendor) Start(_ context.Context, req recording.StartRequest) (string, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return "sid-" + req.Channel, nil
}

func (f *fakeVendor) Stop(context.Context, string, string, string, uint32) (recording.FileManifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return recording.FileManifest{UploadingStatus: "backuped"}, nil
}

func (f *fakeVendor) Query(context.Context, string, string) (recording.QueryResult, error) {
	return recording.QueryResult{}, nil
}

func (f *fakeVendor) snapshot() (int, int, int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired, f.started, f.stopped, append([]string(nil), f.channels...)
}

type fakeMinter struct{}

func (fakeMinter) MintRecorderToken(channel string, _ uint32, _ time.Duration) (string, error) {
	return "recorder-" + channel, nil
}

type fakeCalls struct {
	mu      sync.Mutex
	created int
	deleted int
}

func (f *fakeCalls) CreateRoom(context.Context, models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return nil
}

func (f *fakeCalls) DeleteRoom(context.Context, models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	return nil
}

func (f *fakeCalls) EncodeJoinToken(user uint, session models.Session, grant JoinGrant) (string, error) {
	return fmt.Sprintf("%s/%d/admin=%v/publish=%v", session.ChannelName(), user, grant.Admin, grant.CanPublish), nil
}

type sentNotification struct {
	users []uint
	topic string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) NotifyUserBatch(_ context.Context, users []uint, notification Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{users: users, topic: notification.Topic})
	return nil
}

func (f *fakeNotifier) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo.Map(f.sent, func(item sentNotification, _ int) string { return item.topic })
}

type fakeConn struct {
	id   string
	user uint

	mu      sync.Mutex
	packets []realtime.Packet
}

func (c *fakeConn) ID() string   { return c.id }
func (c *fakeConn) UserID() uint { return c.user }

func (c *fakeConn) Send(data []byte) error {
	var packet realtime.Packet
	if err := jsoniter.Unmarshal(data, &packet); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, packet)
	return nil
}

func (c *fakeConn) TrySend(data []byte) bool {
	return c.Send(data) == nil
}

func (c *fakeConn) count(action string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.CountBy(c.packets, func(item realtime.Packet) bool { return item.Action == action })
}

type harness struct {
	deps       Deps
	clock      *testfixtures.Clock
	vendor     *fakeVendor
	calls      *fakeCalls
	notifier   *fakeNotifier
	sessions   *SessionService
	attendees  *AttendeeService
	series     *SeriesService
	chats      *ConversationService
	authorizer *RoomAuthorizer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := testfixtures.NewClock(time.Now().UTC().Truncate(time.Second))
	st := store.New(testfixtures.NewDatabase(t)).WithClock(clock.Now)
	vendor := &fakeVendor{}
	calls := &fakeCalls{}
	notifier := &fakeNotifier{}
	authorizer := NewRoomAuthorizer(st)

	deps := Deps{
		Store:      st,
		Hub:        realtime.NewHub(authorizer, realtime.Config{}),
		Recorder:   recording.NewOrchestrator(st, vendor, fakeMinter{}, recording.Config{}).WithClock(clock.Now),
		Calls:      calls,
		Notifier:   notifier,
		Supervisor: NewSupervisor(5*time.Second, nil),
	}
	config := SessionConfig{HorizonDays: 90, NoShowGrace: 30 * time.Minute}

	return &harness{
		deps:       deps,
		clock:      clock,
		vendor:     vendor,
		calls:      calls,
		notifier:   notifier,
		sessions:   NewSessionService(deps, config),
		attendees:  NewAttendeeService(deps),
		series:     NewSeriesService(deps, config),
		chats:      NewConversationService(deps),
		authorizer: authorizer,
	}
}

func (h *harness) settle() {
	h.deps.Supervisor.Wait(5 * time.Second)
}

// seed creates a session with a co-host and an ordinary member.
func (h *harness) seed(t *testing.T, status models.SessionStatus) models.Session {
	t.Helper()
	ctx := context.Background()
	session := models.Session{
		Title:           "Evening prayer",
		HostID:          hostID,
		ScheduledAt:     h.clock.Now().Add(time.Hour),
		DurationMinutes: 45,
		Status:          status,
		Capacity:        10,
	}
	require.NoError(t, h.deps.Store.CreateSession(ctx, &session))

	_, err := h.attendees.PromoteCohost(ctx, hostID, session.ID, cohostID)
	require.NoError(t, err)
	_, err = h.attendees.RSVP(ctx, memberID, session.ID)
	require.NoError(t, err)
	h.settle()

	session, err = h.deps.Store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	return session
}

func TestStartConcurrentCallersExactlyOneWins(t *testing.T) {
	h := newHarness(t)
	session := h.seed(t, models.SessionStatusLobby)

	const racers = 6
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.sessions.Start(context.Background(), hostID, session.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for err := range results {
		if err == nil {
			succeeded++
		} else if errs.Is(err, errs.KindConflict) {
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, racers-1, conflicted)

	h.settle()
	acquired, started, _, _ := h.vendor.snapshot()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, started)
}

func TestDuplicateStartIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.seed(t, models.SessionStatusScheduled)

	live, err := h.sessions.Start(ctx, hostID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusLive, live.Status)
	assert.NotNil(t, live.StartedAt)

	h.clock.Advance(50 * time.Millisecond)
	_, err = h.sessions.Start(ctx, hostID, session.ID)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindConflict))
	assert.Equal(t, "this session already started", err.Error())

	h.settle()
	acquired, started, _, channels := h.vendor.snapshot()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, started)
	assert.Equal(t, []string{session.ChannelName()}, channels)
	assert.Equal(t, 1, h.calls.created)

	reloaded, err := h.deps.Store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, reloaded.HasRecordingHandle())
	assert.Equal(t, "sid-"+session.ChannelName(), *reloaded.RecordingSid)

	assert.Contains(t, h.notifier.topics(), "sessions.started")
}

func TestStartIsHostOnly(t *testing.T) {
	h := newHarness(t)
	session := h.seed(t, models.SessionStatusScheduled)

	_, err := h.sessions.Start(context.Background(), cohostID, session.ID)
	assert.True(t, errs.Is(err, errs.KindAuthorization))
}

func TestEndByCohostStopsRecording(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.seed(t, models.SessionStatusScheduled)

	_, err := h.sessions.End(ctx, cohostID, session.ID)
	assert.True(t, errs.Is(err, errs.KindConflict))

	_, err = h.sessions.Start(ctx, hostID, session.ID)
	require.NoError(t, err)
	h.settle()

	_, err = h.sessions.End(ctx, memberID, session.ID)
	assert.True(t, errs.Is(err, errs.KindAuthorization))

	ended, err := h.sessions.End(ctx, cohostID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, ended.Status)
	assert.NotNil(t, ended.EndedAt)
	h.settle()

	_, _, stopped, _ := h.vendor.snapshot()
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 1, h.calls.deleted)
	assert.Contains(t, h.notifier.topics(), "sessions.recordingPending")

	_, err = h.sessions.End(ctx, hostID, session.ID)
	assert.True(t, errs.Is(err, errs.KindConflict))
	assert.Equal(t, "this session already ended", err.Error())
}

func TestEndDuringRecordingStartStopsTheRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.seed(t, models.SessionStatusLobby)
	h.vendor.gate = make(chan struct{})
	h.vendor.entered = make(chan struct{}, 1)

	_, err := h.sessions.Start(ctx, hostID, session.ID)
	require.NoError(t, err)
	<-h.vendor.entered

	ended, err := h.sessions.End(ctx, hostID, session.ID)
	require.NoError(t, err)
	assert.False(t, ended.HasRecordingHandle())

	close(h.vendor.gate)
	h.settle()

	_, started, stopped, _ := h.vendor.snapshot()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, stopped)

	reloaded, err := h.deps.Store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, reloaded.Status)
	assert.True(t, reloaded.HasRecordingHandle())
}

func TestCancelOnlyBeforeLive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	scheduled := h.seed(t, models.SessionStatusScheduled)
	cancelled, err := h.sessions.Cancel(ctx, hostID, scheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, cancelled.Status)

	_, err = h.sessions.Start(ctx, hostID, scheduled.ID)
	assert.True(t, errs.Is(err, errs.KindConflict))

	live := h.seed(t, models.SessionStatusLive)
	_, err = h.sessions.Cancel(ctx, hostID, live.ID)
	assert.True(t, errs.Is(err, errs.KindConflict))

	h.settle()
	acquired, _, _, _ := h.vendor.snapshot()
	assert.Zero(t, acquired)
}

func TestSweepNoShows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stale := h.seed(t, models.SessionStatusScheduled)
	fresh := models.Session{
		Title:           "Later",
		HostID:          hostID,
		ScheduledAt:     h.clock.Now().Add(4 * time.Hour),
		DurationMinutes: 45,
	}
	require.NoError(t, h.deps.Store.CreateSession(ctx, &fresh))

	h.clock.Advance(3 * time.Hour)
	cancelled, err := h.sessions.SweepNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	reloaded, err := h.deps.Store.GetSession(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, reloaded.Status)

	reloaded, err = h.deps.Store.GetSession(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusScheduled, reloaded.Status)
}

func TestConcurrentPromotionProvisionsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.seed(t, models.SessionStatusScheduled)
	before := session.AttendeeCount

	const target = uint(77)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.attendees.PromoteCohost(ctx, hostID, session.ID, target)
		}()
	}
	wg.Wait()
	h.settle()

	attendees, err := h.deps.Store.ListAttendees(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, lo.Filter(attendees, func(item models.Attendee, _ int) bool { return item.UserID == target }), 1)

	reloaded, err := h.deps.Store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, before+1, reloaded.AttendeeCount)

	promoted, err := h.deps.Store.GetAttendee(ctx, session.ID, target)
	require.NoError(t, err)
	assert.True(t, promoted.IsCohost())
	assert.Equal(t, models.AttendeeStatusRSVP, promoted.Status)
}

func TestPromotionIsHostOnly(t *testing.T) {
	h := newHarness(t)
	session := h.seed(t, models.SessionStatusScheduled)

	_, err := h.attendees.PromoteCohost(context.Background(), cohostID, session.ID, memberID)
	assert.True(t, errs.Is(err, errs.KindAuthorization))
}

func TestRemovalRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.seed(t, models.SessionStatusScheduled)
	_, err := h.attendees.PromoteCohost(ctx, hostID, session.ID, 4)
	require.NoError(t, err)

	err = h.attendees.Remove(ctx, cohostID, session.ID, hostID)
	assert.True(t, errs.Is(err, errs.KindAuthorization))
	err = h.attendees.Remove(ctx, cohostID, session.ID, 4)
	assert.True(t, errs.Is(err, errs.KindAuthorization))
	err = h.attendees.Remove(ctx, memberID, session.ID, cohostID)
	assert.True(t, errs.Is(err, errs.KindAuthorization))

	require.NoError(t, h.attendees.Remove(ctx, cohostID, session.ID, memberID))
	require.NoError(t, h.attendees.Remove(ctx, hostID, session.ID, 4))
	require.NoError(t, h.attendees.Remove(ctx, hostID, session.ID, 4))
	h.settle()

	removed, err := h.deps.Store.GetAttendee(ctx, session.ID, memberID)
	require.NoError(t, err)
	assert.Equal(t, models.AttendeeStatusLeft, removed.Status)
	assert.NotNil(t, removed.LeftAt)

	reloaded, err := h.deps.Store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.AttendeeCount)
}

func TestSpeakingToggle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.seed(t, models.SessionStatusScheduled)

	_, err := h.attendees.SetSpeaking(ctx, memberID, session.ID, memberID, true)
	assert.True(t, errs.Is(err, errs.KindAuthorization))

	attendee, err := h.attendees.SetSpeaking(ctx, cohostID, session.ID, memberID, true)
	require.NoError(t, err)
	assert.True(t, attendee.CanSpeak)

	_, err = h.attendees.SetSpeaking(ctx, hostID, session.ID, 404, true)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestRSVPCapacityAndRejoin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := models.Session{
		Title:           "Small group",
		HostID:          hostID,
		ScheduledAt:     h.clock.Now().Add(time.Hour),
		DurationMinutes: 30,
		Capacity:        1,
	}
	require.NoError(t, h.deps.Store.CreateSession(ctx, &session))

	_, err := h.attendees.RSVP(ctx, 10, session.ID)
	require.NoError(t, err)
	_, err = h.attendees.RSVP(ctx, 10, session.ID)
	require.NoError(t, err)

	_, err = h.attendees.RSVP(ctx, 11, session.ID)
	assert.True(t, errs.Is(err, errs.KindConflict))

	require.NoError(t, h.attendees.Leave(ctx, 10, session.ID))
	h.settle()

	_, err = h.attendees.RSVP(ctx, 11, session.ID)
	require.NoError(t, err)

	reloaded, err := h.deps.Store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.AttendeeCount)

	assert.True(t, errs.Is(h.attendees.Leave(ctx, hostID, session.ID), errs.KindValidation))
}

func TestConcurrentRSVPRespectsCapacity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := models.Session{
		Title:           "Last seat",
		HostID:          hostID,
		ScheduledAt:     h.clock.Now().Add(time.Hour),
		DurationMinutes: 30,
		Capacity:        1,
	}
	require.NoError(t, h.deps.Store.CreateSession(ctx, &session))

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(user uint) {
			defer wg.Done()
			_, err := h.attendees.RSVP(ctx, user, session.ID)
			results <- err
		}(uint(100 + i))
	}
	wg.Wait()
	close(results)

	var succeeded, full int
	for err := range results {
		if err == nil {
			succeeded++
		} else if errs.Is(err, errs.KindConflict) {
			full++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, racers-1, full)

	present, err := h.deps.Store.ListAttendees(ctx, session.ID, models.AttendeeStatusRSVP)
	require.NoError(t, err)
	assert.Len(t, present, 1)

	reloaded, err := h.deps.Store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.AttendeeCount)
}

func TestReconcileCounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.seed(t, models.SessionStatusScheduled)

	require.NoError(t, h.deps.Store.AdjustAttendeeCount(ctx, session.ID, 5))

	fixed, err := h.attendees.ReconcileCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)

	reloaded, err := h.deps.Store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.AttendeeCount)
}

func TestJoinToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.seed(t, models.SessionStatusScheduled)

	_, err := h.sessions.JoinToken(ctx, memberID, session.ID)
	assert.True(t, errs.Is(err, errs.KindConflict))

	_, err = h.sessions.Start(ctx, hostID, session.ID)
	require.NoError(t, err)

	token, err := h.sessions.JoinToken(ctx, memberID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ChannelName()+"/3/admin=false/publish=false", token)

	token, err = h.sessions.JoinToken(ctx, cohostID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ChannelName()+"/2/admin=true/publish=true", token)

	_, err = h.sessions.JoinToken(ctx, 99, session.ID)
	assert.True(t, errs.Is(err, errs.KindAuthorization))

	attendee, err := h.deps.Store.GetAttendee(ctx, session.ID, memberID)
	require.NoError(t, err)
	assert.Equal(t, models.AttendeeStatusAttended, attendee.Status)
	h.settle()
}

func TestSeriesLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	startsOn := h.clock.Now().AddDate(0, 0, 1)
	req := SeriesRequest{
		Title:           "Weekly study",
		Frequency:       "weekly",
		Days:            []int{int(startsOn.Weekday())},
		Count:           8,
		TimeOfDay:       "19:00",
		Timezone:        "America/New_York",
		StartsOn:        startsOn,
		DurationMinutes: 60,
	}

	preview, err := h.series.Preview(req)
	require.NoError(t, err)
	assert.Len(t, preview.Instants, 8)
	assert.NotEmpty(t, preview.Description)

	series, created, err := h.series.Create(ctx, hostID, req)
	require.NoError(t, err)
	assert.EqualValues(t, 8, created)
	assert.True(t, series.IsActive)

	extended, err := h.series.ExtendHorizons(ctx)
	require.NoError(t, err)
	assert.Zero(t, extended)

	_, err = h.series.Deactivate(ctx, cohostID, series.ID)
	assert.True(t, errs.Is(err, errs.KindAuthorization))

	cancelled, err := h.series.Deactivate(ctx, hostID, series.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 8, cancelled)

	_, _, err = h.series.Create(ctx, hostID, SeriesRequest{Frequency: "hourly", TimeOfDay: "19:00", Timezone: "UTC", StartsOn: startsOn})
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestHorizonSweepKeepsStartDateEastOfUTC(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	local := h.clock.Now().In(tokyo).AddDate(0, 0, 2)
	startsOn := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tokyo)

	series, created, err := h.series.Create(ctx, hostID, SeriesRequest{
		Title:           "Morning sitting",
		Frequency:       "weekly",
		Count:           4,
		TimeOfDay:       "10:00",
		Timezone:        "Asia/Tokyo",
		StartsOn:        startsOn,
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4, created)

	extended, err := h.series.ExtendHorizons(ctx)
	require.NoError(t, err)
	assert.Zero(t, extended)

	sessions, err := h.deps.Store.ListSessions(ctx, store.SessionFilter{SeriesID: &series.ID, Take: 100})
	require.NoError(t, err)
	require.Len(t, sessions, 4)
	for _, item := range sessions {
		at := item.ScheduledAt.In(tokyo)
		assert.Equal(t, startsOn.Weekday(), at.Weekday())
		assert.Equal(t, 10, at.Hour())
	}
	assert.Equal(t, startsOn.Day(), sessions[0].ScheduledAt.In(tokyo).Day())
}

func TestMarkReadBroadcastsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conversation := models.Conversation{UserAID: 5, UserBID: 6}
	require.NoError(t, h.deps.Store.DB().Create(&conversation).Error)
	require.NoError(t, h.deps.Store.DB().Create(&[]models.Message{
		{ConversationID: conversation.ID, SenderID: 6, Content: "a", Status: models.MessageStatusDelivered},
		{ConversationID: conversation.ID, SenderID: 6, Content: "b", Status: models.MessageStatusDelivered},
		{ConversationID: conversation.ID, SenderID: 6, Content: "c", Status: models.MessageStatusDelivered},
	}).Error)

	sender := &fakeConn{id: "sender", user: 6}
	outsider := &fakeConn{id: "outsider", user: 7}
	h.deps.Hub.Register(sender)
	h.deps.Hub.Register(outsider)
	room := realtime.ConversationRoom(conversation.ID)
	require.True(t, h.deps.Hub.Join(ctx, sender, room))
	require.False(t, h.deps.Hub.Join(ctx, outsider, room))

	changed, readAt, err := h.chats.MarkRead(ctx, 5, conversation.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, changed)
	assert.False(t, readAt.IsZero())
	assert.Equal(t, 1, sender.count(realtime.ActionRead))
	assert.Zero(t, outsider.count(realtime.ActionRead))

	changed, _, err = h.chats.MarkRead(ctx, 5, conversation.ID)
	require.NoError(t, err)
	assert.Zero(t, changed)
	assert.Equal(t, 1, sender.count(realtime.ActionRead))

	_, _, err = h.chats.MarkRead(ctx, 7, conversation.ID)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestRoomAuthorizer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.seed(t, models.SessionStatusScheduled)
	room := realtime.SessionRoom(session.ID)

	assert.True(t, h.authorizer.CanJoin(ctx, hostID, room))
	assert.True(t, h.authorizer.CanJoin(ctx, memberID, room))
	assert.False(t, h.authorizer.CanJoin(ctx, 99, room))
	assert.False(t, h.authorizer.CanJoin(ctx, hostID, realtime.SessionRoom(session.ID+100)))
}

func TestChannelsSignTokensForTheSessionChannel(t *testing.T) {
	calls := NewChannels(rtc.NewClient(rtc.Config{AppID: "app", AppCertificate: "certificate"}))
	session := models.Session{BaseModel: models.BaseModel{ID: 7}}

	token, err := calls.EncodeJoinToken(3, session, JoinGrant{CanPublish: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "007"))

	recorder, err := calls.MintRecorderToken(session.ChannelName(), 1<<31|7, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, token, recorder)

	_, err = NewChannels(rtc.NewClient(rtc.Config{})).EncodeJoinToken(3, session, JoinGrant{})
	assert.Error(t, err)
}
