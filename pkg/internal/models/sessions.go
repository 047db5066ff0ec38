package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

type SessionStatus = string

const (
	SessionStatusScheduled = SessionStatus("scheduled")
	SessionStatusLobby     = SessionStatus("lobby")
	SessionStatusLive      = SessionStatus("live")
	SessionStatusEnded     = SessionStatus("ended")
	SessionStatusCancelled = SessionStatus("cancelled")
)

// SessionChannelPrefix is the channel naming convention shared with the
// recording vendor and the realtime rooms.
const SessionChannelPrefix = "session-"

type Session struct {
	BaseModel

	Title           string        `json:"title"`
	Description     string        `json:"description"`
	HostID          uint          `json:"host_id" gorm:"index"`
	SeriesID        *uint         `json:"series_id" gorm:"uniqueIndex:idx_session_series_instant"`
	Series          *Series       `json:"series,omitempty"`
	ScheduledAt     time.Time     `json:"scheduled_at" gorm:"index;uniqueIndex:idx_session_series_instant"`
	DurationMinutes int           `json:"duration_minutes"`
	Status          SessionStatus `json:"status" gorm:"index;size:16"`
	StartedAt       *time.Time    `json:"started_at"`
	EndedAt         *time.Time    `json:"ended_at"`

	RecordingResourceID *string `json:"-"`
	RecordingSid        *string `json:"-" gorm:"index"`
	RecordingURL        *string `json:"recording_url"`

	AttendeeCount int  `json:"attendee_count"`
	Capacity      int  `json:"capacity"`
	IsPrivate     bool `json:"is_private"`

	Attendees []Attendee `json:"attendees,omitempty"`
}

func (v Session) ChannelName() string {
	return fmt.Sprintf("%s%d", SessionChannelPrefix, v.ID)
}

func (v Session) Duration() time.Duration {
	return time.Duration(v.DurationMinutes) * time.Minute
}

func (v Session) IsTerminal() bool {
	return lo.Contains([]SessionStatus{SessionStatusEnded, SessionStatusCancelled}, v.Status)
}

func (v Session) HasRecordingHandle() bool {
	return v.RecordingSid != nil && len(*v.RecordingSid) > 0
}

// ParseSessionChannel resolves a channel name back to its session id.
func ParseSessionChannel(channel string) (uint, bool) {
	if !strings.HasPrefix(channel, SessionChannelPrefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(channel, SessionChannelPrefix), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
