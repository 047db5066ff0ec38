package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicURL(t *testing.T) {
	key := "sessions/42/sid_session-42.mp4"

	assert.Equal(t,
		"https://cdn.example.com/sessions/42/sid_session-42.mp4",
		Config{CDNURL: "https://cdn.example.com/", Bucket: "rec"}.PublicURL(key),
	)
	assert.Equal(t,
		"http://minio.local:9000/rec/sessions/42/sid_session-42.mp4",
		Config{Endpoint: "http://minio.local:9000", Bucket: "rec"}.PublicURL("/"+key),
	)
	assert.Equal(t,
		"https://rec.s3.us-east-1.amazonaws.com/sessions/42/sid_session-42.mp4",
		Config{Bucket: "rec", RegionName: "us-east-1"}.PublicURL(key),
	)
}
