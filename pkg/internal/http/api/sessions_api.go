package api

import (
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/services"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/store"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

func (v *Server) listSessions(c *fiber.Ctx) error {
	filter := store.SessionFilter{
		Take:   c.QueryInt("take", 20),
		Offset: c.QueryInt("offset", 0),
		After:  lo.ToPtr(time.Now().Add(-24 * time.Hour)),
	}
	if host := c.QueryInt("host", 0); host > 0 {
		filter.HostID = lo.ToPtr(uint(host))
	}
	if series := c.QueryInt("series", 0); series > 0 {
		filter.SeriesID = lo.ToPtr(uint(series))
	}

	sessions, err := v.Sessions.ListUpcoming(c.UserContext(), filter)
	if err != nil {
		return exts.ErrorResponse(err)
	}
	// Private sessions are only listed for their host.
	user, _ := c.Locals("user_id").(uint)
	sessions = lo.Filter(sessions, func(item models.Session, _ int) bool {
		return !item.IsPrivate || item.HostID == user
	})
	return c.JSON(sessions)
}

func (v *Server) getSession(c *fiber.Ctx) error {
	id, _ := c.ParamsInt("sessionId", 0)
	user, _ := c.Locals("user_id").(uint)

	session, err := v.Sessions.Get(c.UserContext(), user, uint(id))
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.JSON(session)
}

func (v *Server) scheduleSession(c *fiber.Ctx) error {
	user, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}

	var data services.ScheduleRequest
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	session, err := v.Sessions.Schedule(c.UserContext(), user, data)
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

func (v *Server) openLobby(c *fiber.Ctx) error {
	user, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}
	id, _ := c.ParamsInt("sessionId", 0)

	session, err := v.Sessions.OpenLobby(c.UserContext(), user, uint(id))
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.JSON(session)
}

func (v *Server) startSession(c *fiber.Ctx) error {
	user, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}
	id, _ := c.ParamsInt("sessionId", 0)

	session, err := v.Sessions.Start(c.UserContext(), user, uint(id))
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.JSON(session)
}

func (v *Server) endSession(c *fiber.Ctx) error {
	user, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}
	id, _ := c.ParamsInt("sessionId", 0)

	session, err := v.Sessions.End(c.UserContext(), user, uint(id))
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.JSON(session)
}

func (v *Server) cancelSession(c *fiber.Ctx) error {
	user, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}
	id, _ := c.ParamsInt("sessionId", 0)

	session, err := v.Sessions.Cancel(c.UserContext(), user, uint(id))
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.JSON(session)
}

func (v *Server) exchangeJoinToken(c *fiber.Ctx) error {
	user, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}
	id, _ := c.ParamsInt("sessionId", 0)

	tk, err := v.Sessions.JoinToken(c.UserContext(), user, uint(id))
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.JSON(fiber.Map{
		"token": tk,
	})
}
