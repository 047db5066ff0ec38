package api

import (
	"git.solsynth.dev/hypernet/gathering/pkg/internal/http/exts"
	"github.com/gofiber/fiber/v2"
)

func (v *Server) markConversationRead(c *fiber.Ctx) error {
	user, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}
	id, _ := c.ParamsInt("conversationId", 0)

	count, readAt, err := v.Conversations.MarkRead(c.UserContext(), user, uint(id))
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.JSON(fiber.Map{
		"count":   count,
		"read_at": readAt,
	})
}
