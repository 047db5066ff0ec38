package services

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/realtime"
)

type ConversationService struct {
	Deps
}

func NewConversationService(deps Deps) *ConversationService {
	return &ConversationService{Deps: deps}
}

// MarkRead flips every delivered message from the counterpart to read in one
// write and announces it with a single event.
func (v *ConversationService) MarkRead(ctx context.Context, user, conversationID uint) (int64, time.Time, error) {
	conversation, err := v.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, time.Time{}, err
	}
	if !conversation.HasParticipant(user) {
		return 0, time.Time{}, errs.NotFound("conversation %d not found", conversationID)
	}

	readAt := v.Store.Now()
	changed, err := v.Store.MarkConversationRead(ctx, conversationID, conversation.Counterpart(user), readAt)
	if err != nil {
		return 0, readAt, err
	}
	if changed == 0 {
		return 0, readAt, nil
	}

	v.Hub.Broadcast(realtime.ConversationRoom(conversationID), realtime.Packet{
		Action: realtime.ActionRead,
		Payload: map[string]any{
			"conversation_id": conversationID,
			"reader_id":       user,
			"read_at":         readAt,
			"count":           changed,
		},
	})
	return changed, readAt, nil
}
