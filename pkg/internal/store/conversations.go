package store

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
)

func (s *Store) GetConversation(ctx context.Context, id uint) (models.Conversation, error) {
	var conversation models.Conversation
	err := s.conn(ctx).Where("id = ?", id).First(&conversation).Error
	return conversation, translate(err, "conversation %d not found", id)
}

// MarkConversationRead flips every delivered message from the sender to read
// in a single statement and returns how many changed.
func (s *Store) MarkConversationRead(ctx context.Context, conversationID, senderID uint, at time.Time) (int64, error) {
	res := s.conn(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id = ? AND status = ?", conversationID, senderID, models.MessageStatusDelivered).
		Updates(map[string]any{
			"status":     models.MessageStatusRead,
			"read_at":    at.UTC(),
			"updated_at": s.Now(),
		})
	return res.RowsAffected, res.Error
}
