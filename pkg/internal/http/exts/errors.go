package exts

import (
	"errors"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ErrorResponse turns a service error into the matching fiber error.
func ErrorResponse(err error) error {
	if err == nil {
		return nil
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr
	}

	switch errs.KindOf(err) {
	case errs.KindValidation:
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errs.KindAuthorization:
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errs.KindNotFound:
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errs.KindConflict, errs.KindRaceLost:
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errs.KindExternalService:
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		log.Error().Err(err).Msg("Unclassified error while handling request.")
		return fiber.NewError(fiber.StatusInternalServerError, "something went wrong")
	}
}
