package api

import (
	"git.solsynth.dev/hypernet/gathering/pkg/internal/recording"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

// recordingWebhook always acknowledges, the vendor retries anything else
// and failures here are not something a retry fixes.
func (v *Server) recordingWebhook(c *fiber.Ctx) error {
	body := c.Body()

	if len(v.WebhookSecret) > 0 {
		signature := c.Get(recording.SignatureHeader)
		if !recording.VerifySignature(body, signature, v.WebhookSecret) {
			log.Warn().Str("ip", c.IP()).Msg("Rejected recording notification with a bad signature.")
			return c.SendStatus(fiber.StatusOK)
		}
	}

	var notification recording.Notification
	if err := jsoniter.Unmarshal(body, &notification); err != nil {
		log.Warn().Err(err).Msg("Unable to parse recording notification.")
		return c.SendStatus(fiber.StatusOK)
	}

	if err := v.Recordings.HandleNotification(c.UserContext(), notification); err != nil {
		log.Error().Err(err).
			Int("event", notification.EventType).
			Str("notice", notification.NoticeID).
			Msg("Unable to handle recording notification.")
	}
	return c.SendStatus(fiber.StatusOK)
}
