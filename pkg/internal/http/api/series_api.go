package api

import (
	"git.solsynth.dev/hypernet/gathering/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

func (v *Server) previewSeries(c *fiber.Ctx) error {
	var data services.SeriesRequest
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	preview, err := v.Series.Preview(data)
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.JSON(preview)
}

func (v *Server) createSeries(c *fiber.Ctx) error {
	user, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}

	var data services.SeriesRequest
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	series, count, err := v.Series.Create(c.UserContext(), user, data)
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"series":   series,
		"sessions": count,
	})
}

func (v *Server) deactivateSeries(c *fiber.Ctx) error {
	user, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}
	id, _ := c.ParamsInt("seriesId", 0)

	count, err := v.Series.Deactivate(c.UserContext(), user, uint(id))
	if err != nil {
		return exts.ErrorResponse(err)
	}
	return c.JSON(fiber.Map{
		"cancelled": count,
	})
}
