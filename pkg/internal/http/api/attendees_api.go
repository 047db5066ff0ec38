package api

import (
	"strings"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"github.com/gofiber/fiber/v2"
)

func (v *Server) listAttendees(c *fiber.Ctx) error {
	user, _ := c.Locals("user_id").(uint)
	id, _ := c.ParamsInt("sessionId", 0)

	if _, err := v.Sessions.Get(c.UserContext(), user, uint(id)); err != nil {
		return exts.ErrorResponse(err)
	}
	var status []models.AttendeeStatus
	if len(c.Query("status")) > 0 {
		status = strings.Split(c.Query("status"), ",")
	}
	attendees, err := v.Attendees.List(c.UserContext(), uint(id), status...)
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.JSON(attendees)
}

func (v *Server) rsvpSession(c *fiber.Ctx) error {
	user, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}
	id, _ := c.ParamsInt("sessionId", 0)

	attendee, err := v.Attendees.RSVP(c.UserContext(), user, uint(id))
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.JSON(attendee)
}

func (v *Server) leaveSession(c *fiber.Ctx) error {
	user, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}
	id, _ := c.ParamsInt("sessionId", 0)

	if err := v.Attendees.Leave(c.UserContext(), user, uint(id)); err != nil {
		return exts.ErrorResponse(err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (v *Server) promoteCohost(c *fiber.Ctx) error {
	user, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}
	id, _ := c.ParamsInt("sessionId", 0)
	target, _ := c.ParamsInt("userId", 0)

	attendee, err := v.Attendees.PromoteCohost(c.UserContext(), user, uint(id), uint(target))
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.JSON(attendee)
}

func (v *Server) setSpeaking(c *fiber.Ctx) error {
	user, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}
	id, _ := c.ParamsInt("sessionId", 0)
	target, _ := c.ParamsInt("userId", 0)

	var data struct {
		CanSpeak *bool `json:"can_speak" validate:"required"`
	}
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	attendee, err := v.Attendees.SetSpeaking(c.UserContext(), user, uint(id), uint(target), *data.CanSpeak)
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.JSON(attendee)
}

func (v *Server) removeAttendee(c *fiber.Ctx) error {
	user, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}
	id, _ := c.ParamsInt("sessionId", 0)
	target, _ := c.ParamsInt("userId", 0)

	if err := v.Attendees.Remove(c.UserContext(), user, uint(id), uint(target)); err != nil {
		return exts.ErrorResponse(err)
	}
	return c.SendStatus(fiber.StatusOK)
}
