package models

import "time"

type AttendeeRole = string

const (
	AttendeeRoleMember = AttendeeRole("member")
	AttendeeRoleCohost = AttendeeRole("cohost")
)

type AttendeeStatus = string

const (
	AttendeeStatusRSVP     = AttendeeStatus("rsvp")
	AttendeeStatusAttended = AttendeeStatus("attended")
	AttendeeStatusLeft     = AttendeeStatus("left")
)

// Attendee rows are never deleted, only moved to AttendeeStatusLeft.
type Attendee struct {
	SessionID uint           `json:"session_id" gorm:"primaryKey;autoIncrement:false"`
	UserID    uint           `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	Role      AttendeeRole   `json:"role" gorm:"size:16"`
	CanSpeak  bool           `json:"can_speak"`
	Status    AttendeeStatus `json:"status" gorm:"index;size:16"`
	LeftAt    *time.Time     `json:"left_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (v Attendee) IsCohost() bool {
	return v.Role == AttendeeRoleCohost && v.Status != AttendeeStatusLeft
}

func (v Attendee) IsPresent() bool {
	return v.Status != AttendeeStatusLeft
}
