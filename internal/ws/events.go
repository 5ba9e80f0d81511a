package ws

import (
	"time"

	"github.com/ce-phus/atlas-path-relocation/internal/models"
)

// Close codes sent during the handshake. Distinct per cause so the client can
// react without guessing.
const (
	CloseNoToken      = 4000
	CloseInvalidToken = 4001
	CloseBadPeer      = 4002
	CloseInternal     = 4003
)

// inboundEvent is the tagged payload read from the client. Only the fields
// relevant to the given type are populated.
type inboundEvent struct {
	Type string `json:"type"`

	// message
	Text   string `json:"text,omitempty"`
	Image  string `json:"image,omitempty"`
	TempID string `json:"temp_id,omitempty"`

	// typing
	IsTyping bool `json:"is_typing,omitempty"`

	// read_receipt
	MessageIDs []string `json:"message_ids,omitempty"`

	// delete_message / update_message
	MessageID         string `json:"message_id,omitempty"`
	DeleteForEveryone bool   `json:"delete_for_everyone,omitempty"`
	NewText           string `json:"new_text,omitempty"`

	// load_more
	BeforeID string `json:"before_id,omitempty"`

	// update_status
	Status string `json:"status,omitempty"`
}

// MessageView is the denormalized message shape the client renders without a
// follow-up fetch.
type MessageView struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversation_id"`
	SenderID       string               `json:"sender_id"`
	Text           string               `json:"text,omitempty"`
	ImageURL       string               `json:"image_url,omitempty"`
	ThumbnailURL   string               `json:"thumbnail_url,omitempty"`
	Status         models.MessageStatus `json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

func viewOf(m *models.Message) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		ImageURL:       m.ImageURL,
		ThumbnailURL:   m.ThumbnailURL,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func viewsOf(msgs []*models.Message) []MessageView {
	out := make([]MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = viewOf(m)
	}
	return out
}

type messageEvent struct {
	Type    string      `json:"type"`
	Message MessageView `json:"message"`
	TempID  string      `json:"temp_id,omitempty"`
}

type recentMessagesEvent struct {
	Type           string        `json:"type"`
	Messages       []MessageView `json:"messages"`
	ConversationID string        `json:"conversation_id"`
}

type messagesLoadedEvent struct {
	Type     string        `json:"type"`
	Messages []MessageView `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

type typingEvent struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	IsTyping  bool      `json:"is_typing"`
	Timestamp time.Time `json:"timestamp"`
}

type readReceiptEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	MessageIDs []string  `json:"message_ids"`
	Timestamp  time.Time `json:"timestamp"`
}

type messageDeletedEvent struct {
	Type              string    `json:"type"`
	UserID            string    `json:"user_id"`
	MessageID         string    `json:"message_id"`
	DeleteForEveryone bool      `json:"delete_for_everyone"`
	Timestamp         time.Time `json:"timestamp"`
}

type messageUpdatedEvent struct {
	Type      string    `json:"type"`
	MessageID string    `json:"message_id"`
	NewText   string    `json:"new_text"`
	Timestamp time.Time `json:"timestamp"`
	UpdatedBy string    `json:"updated_by"`
}

type userStatusEvent struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	IsOnline  bool      `json:"is_online"`
	Timestamp time.Time `json:"timestamp"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
