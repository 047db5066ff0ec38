package realtime

import (
	"fmt"
	"strconv"
	"strings"
)

type RoomKind string

const (
	RoomSession      = RoomKind("session")
	RoomConversation = RoomKind("conversation")
)

// Room is a broadcast scope, either one session or one conversation.
type Room string

func SessionRoom(id uint) Room {
	return Room(fmt.Sprintf("%s:%d", RoomSession, id))
}

func ConversationRoom(id uint) Room {
	return Room(fmt.Sprintf("%s:%d", RoomConversation, id))
}

func (v Room) Parse() (RoomKind, uint, bool) {
	kind, raw, ok := strings.Cut(string(v), ":")
	if !ok {
		return "", 0, false
	}
	switch RoomKind(kind) {
	case RoomSession, RoomConversation:
	default:
		return "", 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return "", 0, false
	}
	return RoomKind(kind), uint(id), true
}
