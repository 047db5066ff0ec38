package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/realtime"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/recording"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedNotifications struct {
	mu    sync.Mutex
	items []recording.Notification
	err   error
}

func (v *recordedNotifications) HandleNotification(_ context.Context, notification recording.Notification) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = append(v.items, notification)
	return v.err
}

func sign(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookApp(handler NotificationHandler, secret string) *fiber.App {
	app := fiber.New()
	server := &Server{Recordings: handler, WebhookSecret: secret}
	app.Post("/webhooks/recording", server.recordingWebhook)
	return app
}

const uploadedBody = `{"noticeId":"n-1","eventType":31,"payload":{"cname":"room-1","sid":"sid-1","details":{"fileList":[{"fileName":"a.mp4","isPlayable":true,"mixedAllUser":true}]}}}`

func postWebhook(t *testing.T, app *fiber.App, body, signature string) int {
	req := httptest.NewRequest(fiber.MethodPost, "/webhooks/recording", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if len(signature) > 0 {
		req.Header.Set(recording.SignatureHeader, signature)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRecordingWebhookDispatches(t *testing.T) {
	handler := &recordedNotifications{}
	app := webhookApp(handler, "")

	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, uploadedBody, ""))
	require.Len(t, handler.items, 1)
	assert.Equal(t, recording.EventUploaded, handler.items[0].EventType)
	assert.Equal(t, "room-1", handler.items[0].Payload.Channel())
	assert.Equal(t, "sid-1", handler.items[0].Payload.Sid)
}

func TestRecordingWebhookAlwaysAcknowledges(t *testing.T) {
	handler := &recordedNotifications{err: errors.New("database unavailable")}
	app := webhookApp(handler, "")

	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, "not json", ""))
	assert.Empty(t, handler.items)

	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, uploadedBody, ""))
	assert.Len(t, handler.items, 1)
}

func TestRecordingWebhookSignature(t *testing.T) {
	handler := &recordedNotifications{}
	app := webhookApp(handler, "hush")

	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, uploadedBody, sign(uploadedBody, "wrong")))
	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, uploadedBody, ""))
	assert.Empty(t, handler.items)

	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, uploadedBody, sign(uploadedBody, "hush")))
	assert.Len(t, handler.items, 1)
}

func TestGatewayConnBackpressure(t *testing.T) {
	conn := newGatewayConn(nil, 7)
	for i := 0; i < gatewayOutboxSize; i++ {
		require.True(t, conn.TrySend([]byte("x")))
	}
	assert.False(t, conn.TrySend([]byte("x")))

	conn.close()
	conn.close()
	assert.ErrorIs(t, conn.Send([]byte("x")), errConnClosed)
	assert.False(t, conn.TrySend([]byte("x")))
}

func TestDealCommandRejectsUnknown(t *testing.T) {
	server := &Server{}
	conn := newGatewayConn(nil, 7)

	reply := server.dealCommand(conn, realtime.Packet{Action: "messages.send"})
	require.NotNil(t, reply)
	assert.Equal(t, realtime.ActionError, reply.Action)
	assert.Equal(t, "command not found", reply.Message)

	reply = server.dealCommand(conn, realtime.Packet{Action: realtime.ActionRead, Room: realtime.SessionRoom(1)})
	require.NotNil(t, reply)
	assert.Equal(t, realtime.ActionError, reply.Action)
}

func TestDealCommandValidatesReaction(t *testing.T) {
	server := &Server{}
	conn := newGatewayConn(nil, 7)

	reply := server.dealCommand(conn, realtime.Packet{
		Action:  realtime.ActionReaction,
		Room:    realtime.SessionRoom(1),
		Payload: map[string]any{"emoji": ""},
	})
	require.NotNil(t, reply)
	assert.Equal(t, realtime.ActionError, reply.Action)
}
