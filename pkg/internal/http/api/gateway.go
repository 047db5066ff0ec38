package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/realtime"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	gatewayOutboxSize  = 64
	gatewaySendTimeout = 5 * time.Second
)

var errConnClosed = errors.New("connection closed")

func (v *Server) upgradeGateway(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if _, err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	return c.Next()
}

// gatewayConn adapts a websocket to realtime.Conn. Writes go through a
// bounded outbox drained by a single writer.
type gatewayConn struct {
	id     string
	user   uint
	ws     *websocket.Conn
	outbox chan []byte
	done   chan struct{}
	once   sync.Once
}

func newGatewayConn(ws *websocket.Conn, user uint) *gatewayConn {
	return &gatewayConn{
		id:     uuid.NewString(),
		user:   user,
		ws:     ws,
		outbox: make(chan []byte, gatewayOutboxSize),
		done:   make(chan struct{}),
	}
}

func (v *gatewayConn) ID() string {
	return v.id
}

func (v *gatewayConn) UserID() uint {
	return v.user
}

func (v *gatewayConn) Send(data []byte) error {
	select {
	case <-v.done:
		return errConnClosed
	default:
	}

	timer := time.NewTimer(gatewaySendTimeout)
	defer timer.Stop()
	select {
	case v.outbox <- data:
		return nil
	case <-v.done:
		return errConnClosed
	case <-timer.C:
		return errors.New("connection is not draining its outbox")
	}
}

func (v *gatewayConn) TrySend(data []byte) bool {
	select {
	case <-v.done:
		return false
	case v.outbox <- data:
		return true
	default:
		return false
	}
}

func (v *gatewayConn) close() {
	v.once.Do(func() {
		close(v.done)
	})
}

func (v *gatewayConn) pump() {
	for {
		select {
		case <-v.done:
			return
		case data := <-v.outbox:
			if err := v.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				v.close()
				return
			}
		}
	}
}

func (v *Server) gateway(c *websocket.Conn) {
	user, _ := c.Locals("user_id").(uint)
	conn := newGatewayConn(c, user)
	go conn.pump()

	v.Hub.Register(conn)
	defer func() {
		v.Hub.Unregister(conn)
		conn.close()
	}()

	var packet []byte
	var err error
	for {
		if _, packet, err = c.ReadMessage(); err != nil {
			break
		}

		var command realtime.Packet
		if err := jsoniter.Unmarshal(packet, &command); err != nil {
			_ = conn.Send(realtime.Packet{
				Action:  realtime.ActionError,
				Message: "unable to unmarshal your command, requires json request",
			}.Marshal())
			continue
		}

		if reply := v.dealCommand(conn, command); reply != nil {
			if err := conn.Send(reply.Marshal()); err != nil {
				break
			}
		}
	}
}

func (v *Server) dealCommand(conn *gatewayConn, command realtime.Packet) *realtime.Packet {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch command.Action {
	case realtime.ActionJoin:
		if !v.Hub.Join(ctx, conn, command.Room) {
			return nil
		}
		return &realtime.Packet{Action: realtime.ActionJoin, Room: command.Room}
	case realtime.ActionLeave:
		v.Hub.Leave(conn, command.Room)
		return &realtime.Packet{Action: realtime.ActionLeave, Room: command.Room}
	case realtime.ActionTypingStart, realtime.ActionTypingStop:
		v.Hub.Typing(conn, command.Room, command.Action == realtime.ActionTypingStart)
		return nil
	case realtime.ActionReaction:
		var req struct {
			Emoji string `json:"emoji" validate:"required,max=32"`
		}
		models.FitStruct(command.Payload, &req)
		if err := exts.ValidateStruct(req); err != nil {
			return lo.ToPtr(realtime.PacketFromError(err))
		}
		v.Hub.Reaction(conn, command.Room, req.Emoji)
		return nil
	case realtime.ActionRead:
		kind, id, ok := command.Room.Parse()
		if !ok || kind != realtime.RoomConversation {
			return &realtime.Packet{Action: realtime.ActionError, Message: "read receipts need a conversation room"}
		}
		if _, _, err := v.Conversations.MarkRead(ctx, conn.UserID(), id); err != nil {
			log.Debug().Err(err).Uint("user", conn.UserID()).Msg("Unable to mark conversation read over gateway.")
			return lo.ToPtr(realtime.PacketFromError(err))
		}
		return nil
	default:
		return &realtime.Packet{
			Action:  realtime.ActionError,
			Message: "command not found",
		}
	}
}
