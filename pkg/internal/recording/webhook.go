package recording

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"github.com/samber/lo"
)

const (
	EventUploaded     = 31
	EventServiceError = 40
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw callback body.
const SignatureHeader = "Agora-Signature-V2"

type Notification struct {
	NoticeID  string              `json:"noticeId"`
	ProductID int                 `json:"productId"`
	EventType int                 `json:"eventType"`
	NotifyMs  int64               `json:"notifyMs"`
	Payload   NotificationPayload `json:"payload"`
}

type NotificationPayload struct {
	ChannelName string `json:"channelName"`
	Cname       string `json:"cname"`
	UID         string `json:"uid"`
	Sid         string `json:"sid"`
	Details     struct {
		Message  string                `json:"msg"`
		FileList []models.RecordedFile `json:"fileList"`
	} `json:"details"`
}

// Channel tolerates both spellings the vendor uses for the channel field.
func (v NotificationPayload) Channel() string {
	if len(v.ChannelName) > 0 {
		return v.ChannelName
	}
	return v.Cname
}

// VerifySignature checks a callback body against its signature header.
func VerifySignature(body []byte, signature, secret string) bool {
	expected, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(expected) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// CompiledFile picks the single-file rendition out of a manifest, preferring
// the mixed stream when several are present.
func CompiledFile(files []models.RecordedFile) (models.RecordedFile, bool) {
	compiled := lo.Filter(files, func(item models.RecordedFile, _ int) bool {
		return strings.EqualFold(path.Ext(item.FileName), ".mp4")
	})
	if len(compiled) == 0 {
		return models.RecordedFile{}, false
	}
	if mixed, ok := lo.Find(compiled, func(item models.RecordedFile) bool {
		return item.MixedAllUser
	}); ok {
		return mixed, true
	}
	return compiled[0], true
}
