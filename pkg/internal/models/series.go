package models

import "time"

// Series is immutable once created, except for IsActive.
type Series struct {
	BaseModel

	Title           string    `json:"title"`
	Description     string    `json:"description"`
	HostID          uint      `json:"host_id" gorm:"index"`
	Rule            string    `json:"rule"`
	TimeOfDay       string    `json:"time_of_day" gorm:"size:8"`
	Timezone        string    `json:"timezone"`
	StartsOn        time.Time `json:"starts_on"`
	DurationMinutes int       `json:"duration_minutes"`
	Capacity        int       `json:"capacity"`
	IsPrivate       bool      `json:"is_private"`
	IsActive        bool      `json:"is_active" gorm:"index"`

	Sessions []Session `json:"sessions,omitempty"`
}
