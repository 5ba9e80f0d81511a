package notify

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ce-phus/atlas-path-relocation/internal/hub"
	"github.com/ce-phus/atlas-path-relocation/internal/models"
)

const previewLimit = 50

// ImagePlaceholder is shown in the sidebar for textless image messages.
const ImagePlaceholder = "📷 Image"

// LastMessage is the denormalized preview pushed with a chatlist update.
type LastMessage struct {
	Text      string    `json:"text"`
	SenderID  string    `json:"sender_id"`
	IsOwn     bool      `json:"is_own"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatListUpdate reorders a conversation to the top of the recipient's
// sidebar. unread_increment is 1 for the receiver, 0 for the sender.
type ChatListUpdate struct {
	Type            string      `json:"type"`
	ConversationID  string      `json:"conversation_id"`
	LastMessage     LastMessage `json:"last_message"`
	UpdatedAt       time.Time   `json:"updated_at"`
	Action          string      `json:"action"`
	UnreadIncrement int         `json:"unread_increment"`
}

// ListNotifier derives chatlist updates from new messages and pushes them to
// both participants' chat-list groups, whether or not either one is currently
// in the conversation room.
type ListNotifier struct {
	router *hub.Hub
	logger *zap.SugaredLogger
}

func NewListNotifier(router *hub.Hub, logger *zap.SugaredLogger) *ListNotifier {
	return &ListNotifier{router: router, logger: logger}
}

// NotifyNewMessage runs right after message creation + conversation touch.
func (n *ListNotifier) NotifyNewMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	receiverID := msg.ReceiverIn(conv)
	now := time.Now().UTC()

	base := ChatListUpdate{
		Type:           "chatlist_update",
		ConversationID: conv.ID,
		LastMessage: LastMessage{
			Text:      Preview(msg, previewLimit),
			SenderID:  msg.SenderID,
			CreatedAt: msg.CreatedAt,
		},
		UpdatedAt: now,
		Action:    "new_message",
	}

	forSender := base
	forSender.LastMessage.IsOwn = true
	n.send(ctx, hub.ChatListGroup(msg.SenderID), forSender)

	forReceiver := base
	forReceiver.UnreadIncrement = 1
	n.send(ctx, hub.ChatListGroup(receiverID), forReceiver)
}

func (n *ListNotifier) send(ctx context.Context, group string, ev ChatListUpdate) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Errorw("marshal chatlist update", "error", err)
		return
	}
	n.router.Send(ctx, group, payload)
}

// Preview truncates message text to limit runes with an ellipsis, falling
// back to the image placeholder for textless messages.
func Preview(msg *models.Message, limit int) string {
	if msg.Text == "" {
		return ImagePlaceholder
	}
	runes := []rune(msg.Text)
	if len(runes) <= limit {
		return msg.Text
	}
	return string(runes[:limit]) + "..."
}
