package services

import (
	"context"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/realtime"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/store"
	"github.com/rs/zerolog/log"
)

// RoomAuthorizer admits hosts and present attendees into session rooms and
// the two participants into conversation rooms.
type RoomAuthorizer struct {
	store *store.Store
}

func NewRoomAuthorizer(st *store.Store) *RoomAuthorizer {
	return &RoomAuthorizer{store: st}
}

func (v *RoomAuthorizer) CanJoin(ctx context.Context, user uint, room realtime.Room) bool {
	kind, id, ok := room.Parse()
	if !ok {
		return false
	}

	switch kind {
	case realtime.RoomSession:
		session, err := v.store.GetSession(ctx, id)
		if err != nil {
			return false
		}
		who, err := accessOf(ctx, v.store, session, user)
		if err != nil {
			log.Warn().Err(err).Uint("session", id).Msg("Unable to resolve room access.")
			return false
		}
		return who.host || (who.attendee != nil && who.attendee.IsPresent())
	case realtime.RoomConversation:
		conversation, err := v.store.GetConversation(ctx, id)
		if err != nil {
			return false
		}
		return conversation.HasParticipant(user)
	default:
		return false
	}
}
