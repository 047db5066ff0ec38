package api

import (
	"context"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/realtime"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/recording"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/services"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// NotificationHandler consumes recording vendor callbacks.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, notification recording.Notification) error
}

type Server struct {
	Sessions      *services.SessionService
	Attendees     *services.AttendeeService
	Series        *services.SeriesService
	Conversations *services.ConversationService
	Recordings    NotificationHandler
	Hub           *realtime.Hub

	// WebhookSecret enables signature checks on vendor callbacks when set.
	WebhookSecret string
}

func (v *Server) MapAPIs(app *fiber.App, baseURL string) {
	api := app.Group(baseURL).Name("API")
	{
		sessions := api.Group("/sessions").Name("Sessions API")
		{
			sessions.Get("/", v.listSessions)
			sessions.Post("/", v.scheduleSession)
			sessions.Get("/:sessionId", v.getSession)
			sessions.Post("/:sessionId/lobby", v.openLobby)
			sessions.Post("/:sessionId/start", v.startSession)
			sessions.Post("/:sessionId/end", v.endSession)
			sessions.Post("/:sessionId/cancel", v.cancelSession)
			sessions.Post("/:sessionId/token", v.exchangeJoinToken)

			sessions.Get("/:sessionId/attendees", v.listAttendees)
			sessions.Post("/:sessionId/rsvp", v.rsvpSession)
			sessions.Delete("/:sessionId/rsvp", v.leaveSession)
			sessions.Post("/:sessionId/attendees/:userId/cohost", v.promoteCohost)
			sessions.Put("/:sessionId/attendees/:userId/speaking", v.setSpeaking)
			sessions.Delete("/:sessionId/attendees/:userId", v.removeAttendee)
		}

		series := api.Group("/series").Name("Series API")
		{
			series.Post("/", v.createSeries)
			series.Post("/preview", v.previewSeries)
			series.Delete("/:seriesId", v.deactivateSeries)
		}

		api.Post("/conversations/:conversationId/read", v.markConversationRead)

		api.Get("/ws", v.upgradeGateway, websocket.New(v.gateway))
	}

	app.Post("/webhooks/recording", v.recordingWebhook)
}
