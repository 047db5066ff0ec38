package realtime

import (
	jsoniter "github.com/json-iterator/go"
)

const (
	ActionJoin            = "join"
	ActionLeave           = "leave"
	ActionTypingStart     = "typing:start"
	ActionTypingStop      = "typing:stop"
	ActionRead            = "read"
	ActionReaction        = "reaction"
	ActionPresenceOnline  = "presence:online"
	ActionPresenceOffline = "presence:offline"
	ActionStateChanged    = "state-changed"
	ActionAttendeeAdded   = "attendee:added"
	ActionAttendeeRemoved = "attendee:removed"
	ActionAttendeeUpdated = "attendee:updated"
	ActionRecording       = "recording"
	ActionError           = "error"
)

type Packet struct {
	Action  string `json:"w"`
	Room    Room   `json:"r,omitempty"`
	Message string `json:"m,omitempty"`
	Payload any    `json:"p,omitempty"`
}

func (v Packet) Marshal() []byte {
	data, _ := jsoniter.Marshal(v)
	return data
}

func PacketFromError(err error) Packet {
	return Packet{Action: ActionError, Message: err.Error()}
}
