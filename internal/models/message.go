package models

import "time"

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Message is a single chat message. Text and image are both optional but at
// least one must be present. DeletedFor holds the ids of users the message is
// soft-deleted for; the record itself stays until the sender deletes it for
// everyone.
type Message struct {
	ID             string        `bson:"_id" json:"id"`
	ConversationID string        `bson:"conversation_id" json:"conversation_id"`
	SenderID       string        `bson:"sender_id" json:"sender_id"`
	Text           string        `bson:"text,omitempty" json:"text,omitempty"`
	ImageURL       string        `bson:"image_url,omitempty" json:"image_url,omitempty"`
	ThumbnailURL   string        `bson:"thumbnail_url,omitempty" json:"thumbnail_url,omitempty"`
	Status         MessageStatus `bson:"status" json:"status"`
	DeletedFor     []string      `bson:"deleted_for,omitempty" json:"-"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updated_at"`
}

func (m *Message) IsDeletedFor(userID string) bool {
	for _, id := range m.DeletedFor {
		if id == userID {
			return true
		}
	}
	return false
}

// ReceiverIn returns the conversation participant who did not send m.
func (m *Message) ReceiverIn(c *Conversation) string {
	return c.OtherUser(m.SenderID)
}
