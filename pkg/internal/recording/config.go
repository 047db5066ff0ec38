package recording

import (
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/storage"
)

type Config struct {
	BaseURL        string
	AppID          string
	CustomerKey    string
	CustomerSecret string

	// ResourceTTL bounds how long an acquired resource may wait for start.
	ResourceTTL time.Duration
	// TokenDuration is the validity of the recorder's access token.
	TokenDuration time.Duration
	// ReconcileAfter is how long an ended session may wait for its upload
	// callback before the sweep polls the vendor.
	ReconcileAfter time.Duration
	RequestTimeout time.Duration

	Transcode TranscodeConfig
	Storage   StorageConfig
}

type TranscodeConfig struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	FPS         int `json:"fps"`
	Bitrate     int `json:"bitrate"`
	Layout      int `json:"mixedVideoLayout"`
	MaxIdleTime int `json:"-"`
}

// StorageConfig is the upload destination handed to the vendor.
type StorageConfig struct {
	storage.Config

	Vendor int
	Region int
	Prefix []string
}

func (c Config) withDefaults() Config {
	if c.ResourceTTL <= 0 {
		c.ResourceTTL = 24 * time.Hour
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = time.Hour
	}
	if c.ReconcileAfter <= 0 {
		c.ReconcileAfter = 30 * time.Minute
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.Transcode.Width == 0 {
		c.Transcode.Width, c.Transcode.Height = 1280, 720
	}
	if c.Transcode.FPS == 0 {
		c.Transcode.FPS = 15
	}
	if c.Transcode.Bitrate == 0 {
		c.Transcode.Bitrate = 1130
	}
	if c.Transcode.MaxIdleTime == 0 {
		c.Transcode.MaxIdleTime = 30
	}
	return c
}
