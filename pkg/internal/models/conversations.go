package models

import "time"

type Conversation struct {
	BaseModel

	UserAID uint `json:"user_a_id" gorm:"index"`
	UserBID uint `json:"user_b_id" gorm:"index"`
}

func (v Conversation) HasParticipant(user uint) bool {
	return v.UserAID == user || v.UserBID == user
}

// Counterpart returns the other side of the conversation.
func (v Conversation) Counterpart(user uint) uint {
	if v.UserAID == user {
		return v.UserBID
	}
	return v.UserAID
}

type MessageStatus = string

const (
	MessageStatusSent      = MessageStatus("sent")
	MessageStatusDelivered = MessageStatus("delivered")
	MessageStatusRead      = MessageStatus("read")
)

type Message struct {
	BaseModel

	ConversationID uint          `json:"conversation_id" gorm:"index"`
	SenderID       uint          `json:"sender_id" gorm:"index"`
	Content        string        `json:"content"`
	Status         MessageStatus `json:"status" gorm:"index;size:16"`
	ReadAt         *time.Time    `json:"read_at"`
}
