package models

import "gorm.io/datatypes"

type VideoVisibility = string

const (
	VideoVisibilityPublic  = VideoVisibility("public")
	VideoVisibilityPrivate = VideoVisibility("private")
)

type RecordedFile struct {
	FileName       string `json:"fileName"`
	TrackType      string `json:"trackType,omitempty"`
	MixedAllUser   bool   `json:"mixedAllUser,omitempty"`
	IsPlayable     bool   `json:"isPlayable,omitempty"`
	SliceStartTime int64  `json:"sliceStartTime,omitempty"`
}

// Video is an on-demand catalog entry. Live recordings land here once the
// vendor reports a finished upload; SourceSid keeps that to one entry per run.
type Video struct {
	BaseModel

	Uuid            string                            `json:"uuid" gorm:"uniqueIndex;size:36"`
	Title           string                            `json:"title"`
	Description     string                            `json:"description"`
	OwnerID         uint                              `json:"owner_id" gorm:"index"`
	SessionID       *uint                             `json:"session_id" gorm:"index"`
	SourceSid       *string                           `json:"-" gorm:"uniqueIndex"`
	URL             string                            `json:"url"`
	Files           datatypes.JSONSlice[RecordedFile] `json:"files"`
	SizeBytes       int64                             `json:"size_bytes"`
	DurationSeconds int                               `json:"duration_seconds"`
	Visibility      VideoVisibility                   `json:"visibility" gorm:"size:16"`
}
